// Package storage defines the persistence interfaces the engine services
// depend on, with in-memory, PostgreSQL, and Redis-backed implementations in
// subpackages.
package storage

import (
	"context"
	"time"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
)

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error)
	// UpdateWorkflow persists non-definition changes (activation flips and
	// similar) without touching version history.
	UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error)
	// UpdateWorkflowWithSnapshot atomically appends the pre-update snapshot
	// and overwrites the live row. The snapshot append happens-before the
	// update inside one logical transaction so a crash between the two never
	// leaves version history missing a step.
	UpdateWorkflowWithSnapshot(ctx context.Context, wf workflow.Workflow, snapshot workflow.Version) (workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error)
	ListWorkflows(ctx context.Context) ([]workflow.Workflow, error)
	// ListActiveWorkflowsByTrigger returns active, non-template workflows
	// with the given trigger type.
	ListActiveWorkflowsByTrigger(ctx context.Context, t workflow.TriggerType) ([]workflow.Workflow, error)
	// DeleteWorkflow removes the workflow and cascades its versions and
	// executions.
	DeleteWorkflow(ctx context.Context, id string) error
}

// WorkflowVersionStore persists immutable definition snapshots. Rows are
// append-only; they are removed only by workflow deletion cascade.
type WorkflowVersionStore interface {
	AppendWorkflowVersion(ctx context.Context, ver workflow.Version) (workflow.Version, error)
	GetWorkflowVersion(ctx context.Context, workflowID string, version int) (workflow.Version, error)
	ListWorkflowVersions(ctx context.Context, workflowID string) ([]workflow.Version, error)
}

// ExecutionStore persists workflow execution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error)
	UpdateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error)
	GetExecution(ctx context.Context, id string) (workflow.Execution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error)
	// ListDueExecutions returns RUNNING executions whose wait deadline is at
	// or before now, for the runner to re-enter.
	ListDueExecutions(ctx context.Context, now time.Time) ([]workflow.Execution, error)
}

// ReplayStore de-duplicates webhook deliveries. CheckAndInsert must be atomic
// with respect to concurrent calls for the same key: exactly one caller
// observes seen == false within the TTL window.
type ReplayStore interface {
	CheckAndInsert(ctx context.Context, key string, ttl time.Duration) (seen bool, err error)
}

// ClientStore reads and mutates client records at the engine boundary.
type ClientStore interface {
	GetClient(ctx context.Context, id string) (crm.Client, error)
	UpdateClient(ctx context.Context, client crm.Client) (crm.Client, error)
	CreateClient(ctx context.Context, client crm.Client) (crm.Client, error)
}

// TaskStore persists tasks created by workflow actions.
type TaskStore interface {
	CreateTask(ctx context.Context, task crm.Task) (crm.Task, error)
	GetTask(ctx context.Context, id string) (crm.Task, error)
	UpdateTask(ctx context.Context, task crm.Task) (crm.Task, error)
	ListTasks(ctx context.Context, clientID string) ([]crm.Task, error)
}

// NoteStore persists notes created by workflow actions.
type NoteStore interface {
	CreateNote(ctx context.Context, note crm.Note) (crm.Note, error)
	ListNotes(ctx context.Context, clientID string) ([]crm.Note, error)
}

// CommunicationStore queues outbound messages.
type CommunicationStore interface {
	CreateCommunication(ctx context.Context, comm crm.Communication) (crm.Communication, error)
	ListCommunications(ctx context.Context, clientID string) ([]crm.Communication, error)
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, note crm.Notification) (crm.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]crm.Notification, error)
}

// DocumentRequestStore persists document requests.
type DocumentRequestStore interface {
	CreateDocumentRequest(ctx context.Context, req crm.DocumentRequest) (crm.DocumentRequest, error)
	UpdateDocumentRequest(ctx context.Context, req crm.DocumentRequest) (crm.DocumentRequest, error)
	ListDocumentRequests(ctx context.Context, clientID string) ([]crm.DocumentRequest, error)
}
