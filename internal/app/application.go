package app

import (
	"context"
	"fmt"
	"time"

	crmsvc "github.com/flowdesk/automation_layer/internal/app/services/crm"
	"github.com/flowdesk/automation_layer/internal/app/services/workflows"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/internal/app/storage/memory"
	"github.com/flowdesk/automation_layer/internal/app/system"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Workflows        storage.WorkflowStore
	Versions         storage.WorkflowVersionStore
	Executions       storage.ExecutionStore
	Replays          storage.ReplayStore
	Clients          storage.ClientStore
	Tasks            storage.TaskStore
	Notes            storage.NoteStore
	Communications   storage.CommunicationStore
	Notifications    storage.NotificationStore
	DocumentRequests storage.DocumentRequestStore
}

// Options tune engine behavior beyond storage wiring.
type Options struct {
	WebhookTolerance   time.Duration
	WebhookReplayTTL   time.Duration
	RunnerWakeInterval time.Duration
}

// Application ties the engine services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Workflows *workflows.Service
	CRM       *crmsvc.Service
	Runner    *workflows.Runner
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Workflows == nil {
		stores.Workflows = mem
	}
	if stores.Versions == nil {
		stores.Versions = mem
	}
	if stores.Executions == nil {
		stores.Executions = mem
	}
	if stores.Replays == nil {
		stores.Replays = mem
	}
	if stores.Clients == nil {
		stores.Clients = mem
	}
	if stores.Tasks == nil {
		stores.Tasks = mem
	}
	if stores.Notes == nil {
		stores.Notes = mem
	}
	if stores.Communications == nil {
		stores.Communications = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.DocumentRequests == nil {
		stores.DocumentRequests = mem
	}

	manager := system.NewManager()

	executor := workflows.NewExecutor(workflows.ExecutorStores{
		Clients:          stores.Clients,
		Tasks:            stores.Tasks,
		Notes:            stores.Notes,
		Communications:   stores.Communications,
		Notifications:    stores.Notifications,
		DocumentRequests: stores.DocumentRequests,
	}, workflows.NewWebhookCaller(log), log)

	orchestrator := workflows.NewOrchestrator(stores.Workflows, stores.Executions, stores.Clients, executor, log)
	matcher := workflows.NewMatcher(stores.Workflows, log)

	gateOpts := []workflows.GatekeeperOption{}
	if opts.WebhookTolerance > 0 {
		gateOpts = append(gateOpts, workflows.WithTolerance(opts.WebhookTolerance))
	}
	if opts.WebhookReplayTTL > 0 {
		gateOpts = append(gateOpts, workflows.WithReplayTTL(opts.WebhookReplayTTL))
	}
	gatekeeper := workflows.NewGatekeeper(stores.Workflows, stores.Replays, log, gateOpts...)

	workflowService := workflows.NewService(stores.Workflows, stores.Versions, stores.Executions, matcher, orchestrator, gatekeeper, log)
	crmService := crmsvc.NewService(stores.Clients, stores.Tasks, stores.Notes, stores.DocumentRequests, workflowService, log)

	runner := workflows.NewRunner(stores.Workflows, stores.Executions, orchestrator, opts.RunnerWakeInterval, log)
	if err := manager.Register(runner); err != nil {
		return nil, fmt.Errorf("register runner: %w", err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Workflows: workflowService,
		CRM:       crmService,
		Runner:    runner,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
