// Package app composes the workflow automation engine into a running
// application.
//
// The layout follows a composition-over-business-logic split:
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── workflow/       # Workflows, executions, conditions, events
//	│   └── crm/            # Clients, tasks, notes, communications
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (WorkflowStore, ClientStore, ...)
//	│   ├── memory/         # In-memory implementation for tests and dev
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── redisstore/     # Redis-backed webhook replay suppression
//	├── services/           # Business logic
//	│   ├── workflows/      # Matcher, orchestrator, executor, gatekeeper
//	│   └── crm/            # Entity writes that emit trigger events
//	├── httpapi/            # REST handlers and routing
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus collectors
//
// Dependency direction: cmd/server builds stores and config, hands them to
// app.New, which wires services and exposes them to httpapi. Services depend
// on storage interfaces only, never on concrete stores.
package app
