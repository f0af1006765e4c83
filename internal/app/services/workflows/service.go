package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/metrics"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// Service is the front door of the automation engine: workflow definition
// lifecycle, version history, manual and event-driven execution, and
// webhook ingestion.
type Service struct {
	store      storage.WorkflowStore
	versions   storage.WorkflowVersionStore
	executions storage.ExecutionStore
	matcher    *Matcher
	orch       *Orchestrator
	gatekeeper *Gatekeeper
	log        *logger.Logger
}

// NewService wires the engine components together.
func NewService(store storage.WorkflowStore, versions storage.WorkflowVersionStore, executions storage.ExecutionStore, matcher *Matcher, orch *Orchestrator, gatekeeper *Gatekeeper, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("workflow-service")
	}
	return &Service{
		store:      store,
		versions:   versions,
		executions: executions,
		matcher:    matcher,
		orch:       orch,
		gatekeeper: gatekeeper,
		log:        log,
	}
}

// --- definition lifecycle ----------------------------------------------------

// CreateWorkflow validates and persists a new workflow at version 1.
func (s *Service) CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	if err := ValidateWorkflow(wf); err != nil {
		return workflow.Workflow{}, err
	}
	wf.Version = 1
	created, err := s.store.CreateWorkflow(ctx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	s.log.WithField("workflow_id", created.ID).WithField("name", created.Name).Info("Workflow created")
	return created, nil
}

// UpdateWorkflow validates and applies an update. When the update changes
// the versioned definition (trigger config, conditions, or actions) the
// pre-update definition is snapshotted into version history first, within
// the same logical transaction, and the version counter increments.
func (s *Service) UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	if err := ValidateWorkflow(wf); err != nil {
		return workflow.Workflow{}, err
	}
	existing, err := s.store.GetWorkflow(ctx, wf.ID)
	if err != nil {
		return workflow.Workflow{}, err
	}
	wf.CreatedBy = existing.CreatedBy
	wf.CreatedAt = existing.CreatedAt

	if !definitionChanged(existing, wf) {
		wf.Version = existing.Version
		return s.store.UpdateWorkflow(ctx, wf)
	}

	snapshot := workflow.Version{
		WorkflowID: existing.ID,
		Version:    existing.Version,
		Definition: workflow.DefinitionOf(existing),
	}
	wf.Version = existing.Version + 1
	updated, err := s.store.UpdateWorkflowWithSnapshot(ctx, wf, snapshot)
	if err != nil {
		return workflow.Workflow{}, err
	}
	s.log.WithField("workflow_id", updated.ID).
		WithField("version", updated.Version).
		Info("Workflow definition updated")
	return updated, nil
}

// GetWorkflow fetches one workflow.
func (s *Service) GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	return s.store.GetWorkflow(ctx, id)
}

// ListWorkflows lists all workflows.
func (s *Service) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	return s.store.ListWorkflows(ctx)
}

// DeleteWorkflow removes a workflow along with its versions and executions.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	return s.store.DeleteWorkflow(ctx, id)
}

// SetActive toggles whether a workflow participates in trigger matching.
// Activation is not a definition change, so no version is cut.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (workflow.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return workflow.Workflow{}, err
	}
	wf.IsActive = active
	return s.store.UpdateWorkflow(ctx, wf)
}

// CloneTemplate copies a workflow (typically a template) into a fresh
// inactive workflow at version 1. Webhook clones get their own secret.
func (s *Service) CloneTemplate(ctx context.Context, id, name, createdBy string) (workflow.Workflow, error) {
	src, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return workflow.Workflow{}, err
	}
	clone := src
	clone.ID = ""
	clone.IsTemplate = false
	clone.IsActive = false
	clone.Version = 1
	clone.CreatedBy = createdBy
	if name != "" {
		clone.Name = name
	} else {
		clone.Name = src.Name + " (copy)"
	}
	if clone.TriggerType == workflow.TriggerWebhook {
		clone.TriggerConfig.Secret = uuid.NewString()
	}
	return s.store.CreateWorkflow(ctx, clone)
}

// --- version history ---------------------------------------------------------

// ListVersions returns a workflow's version history, newest first.
func (s *Service) ListVersions(ctx context.Context, workflowID string) ([]workflow.Version, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.versions.ListWorkflowVersions(ctx, workflowID)
}

// GetVersion returns one snapshot.
func (s *Service) GetVersion(ctx context.Context, workflowID string, version int) (workflow.Version, error) {
	return s.versions.GetWorkflowVersion(ctx, workflowID, version)
}

// Rollback restores the definition stored at version v. The current
// definition is snapshotted first so history stays totally ordered, and the
// workflow's version counter advances rather than reverting.
func (s *Service) Rollback(ctx context.Context, workflowID string, version int) (workflow.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return workflow.Workflow{}, err
	}
	target, err := s.versions.GetWorkflowVersion(ctx, workflowID, version)
	if err != nil {
		return workflow.Workflow{}, err
	}

	snapshot := workflow.Version{
		WorkflowID: wf.ID,
		Version:    wf.Version,
		Definition: workflow.DefinitionOf(wf),
	}
	restored := wf
	restored.ApplyDefinition(target.Definition)
	restored.Version = wf.Version + 1

	updated, err := s.store.UpdateWorkflowWithSnapshot(ctx, restored, snapshot)
	if err != nil {
		return workflow.Workflow{}, err
	}
	s.log.WithField("workflow_id", workflowID).
		WithField("restored_version", version).
		WithField("new_version", updated.Version).
		Info("Workflow rolled back")
	return updated, nil
}

// --- export / import ---------------------------------------------------------

// Export renders a workflow as a portable document. Webhook secrets never
// leave the system.
func (s *Service) Export(ctx context.Context, workflowID string) (workflow.ExportDocument, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return workflow.ExportDocument{}, err
	}
	def := workflow.DefinitionOf(wf)
	def.TriggerConfig.Secret = ""
	return workflow.ExportDocument{
		Version:    workflow.ExportFormatVersion,
		ExportedAt: time.Now().UTC(),
		Workflow:   def,
	}, nil
}

// Import creates a new inactive workflow at version 1 from an export
// document. Imported webhook workflows get a freshly generated secret since
// exports never carry one.
func (s *Service) Import(ctx context.Context, doc workflow.ExportDocument, createdBy string) (workflow.Workflow, error) {
	if doc.Version != workflow.ExportFormatVersion {
		return workflow.Workflow{}, apperrors.Validation("unsupported export format version %q", doc.Version)
	}
	wf := workflow.Workflow{
		IsActive:  false,
		CreatedBy: createdBy,
	}
	wf.ApplyDefinition(doc.Workflow)
	if wf.TriggerType == workflow.TriggerWebhook && wf.TriggerConfig.Secret == "" {
		wf.TriggerConfig.Secret = uuid.NewString()
	}
	return s.CreateWorkflow(ctx, wf)
}

// --- execution entry points --------------------------------------------------

// Execute runs a workflow manually and synchronously, as if triggered by a
// MANUAL event carrying the supplied data. Templates are blueprints and must
// be cloned into a real workflow before they can run.
func (s *Service) Execute(ctx context.Context, workflowID, clientID string, triggerData map[string]interface{}) (workflow.Execution, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return workflow.Execution{}, err
	}
	if wf.IsTemplate {
		return workflow.Execution{}, apperrors.BadRequest("workflow %s is a template; clone it before executing", workflowID)
	}
	if triggerData == nil {
		triggerData = map[string]interface{}{}
	}
	triggerData["triggerType"] = string(workflow.TriggerManual)
	exec, err := s.orch.CreateExecution(ctx, wf, clientID, triggerData)
	if err != nil {
		return workflow.Execution{}, err
	}
	return s.orch.Run(ctx, exec.ID)
}

// Test dry-runs a workflow against sample trigger data without side effects.
func (s *Service) Test(ctx context.Context, workflowID, clientID string, triggerData map[string]interface{}) ([]workflow.StepResult, error) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return s.orch.DryRun(ctx, wf, clientID, triggerData)
}

// GetExecution fetches one execution record.
func (s *Service) GetExecution(ctx context.Context, id string) (workflow.Execution, error) {
	return s.executions.GetExecution(ctx, id)
}

// ListExecutions lists executions, optionally filtered by workflow.
func (s *Service) ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error) {
	return s.executions.ListExecutions(ctx, workflowID)
}

// PauseExecution and ResumeExecution expose the orchestrator controls.
func (s *Service) PauseExecution(ctx context.Context, id string) (workflow.Execution, error) {
	return s.orch.Pause(ctx, id)
}

func (s *Service) ResumeExecution(ctx context.Context, id string) (workflow.Execution, error) {
	return s.orch.Resume(ctx, id)
}

// --- webhook ingestion -------------------------------------------------------

// HandleWebhook admits a delivery through the gatekeeper and, on success,
// runs the workflow with the request body as trigger data. Recognized body
// fields clientId and userId bind the execution to an entity context. The
// replay key is recorded only after the body parses, so a sender retrying a
// rejected malformed delivery gets the same 400 rather than a replay 409.
func (s *Service) HandleWebhook(ctx context.Context, workflowID, signature, timestamp string, body []byte) (workflow.Execution, error) {
	wf, err := s.gatekeeper.Verify(ctx, workflowID, signature, timestamp, body)
	if err != nil {
		return workflow.Execution{}, err
	}

	triggerData := map[string]interface{}{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &triggerData); err != nil {
			metrics.RecordWebhookDelivery("bad_body")
			return workflow.Execution{}, apperrors.BadRequest("webhook body is not valid JSON")
		}
	}
	if err := s.gatekeeper.Suppress(ctx, workflowID, signature, timestamp); err != nil {
		return workflow.Execution{}, err
	}
	triggerData["triggerType"] = string(workflow.TriggerWebhook)
	clientID, _ := triggerData["clientId"].(string)

	exec, err := s.orch.CreateExecution(ctx, wf, clientID, triggerData)
	if err != nil {
		return workflow.Execution{}, err
	}
	return s.orch.Run(ctx, exec.ID)
}

// --- event dispatch ----------------------------------------------------------

// HandleEvent matches a domain event against active workflows and runs each
// match. Failures of one workflow do not prevent the others from running.
func (s *Service) HandleEvent(ctx context.Context, event workflow.Event) error {
	matched, err := s.matcher.Match(ctx, event)
	if err != nil {
		return fmt.Errorf("match event %s: %w", event.Type, err)
	}
	for _, wf := range matched {
		metrics.RecordTriggerMatch(string(event.Type))
		exec, err := s.orch.CreateExecution(ctx, wf, event.ClientID, event.TriggerData())
		if err != nil {
			s.log.WithField("workflow_id", wf.ID).WithError(err).Error("Failed to create execution for event")
			continue
		}
		if _, err := s.orch.Run(ctx, exec.ID); err != nil {
			s.log.WithField("workflow_id", wf.ID).
				WithField("execution_id", exec.ID).
				WithError(err).
				Error("Event-triggered execution errored")
		}
	}
	return nil
}

// definitionChanged reports whether the versioned portion of the definition
// differs between two workflows. Name and description edits alone do not
// cut a new version.
func definitionChanged(a, b workflow.Workflow) bool {
	type versioned struct {
		TriggerType   workflow.TriggerType
		TriggerConfig workflow.TriggerConfig
		Conditions    *workflow.Condition
		Actions       []workflow.Action
	}
	av, err := json.Marshal(versioned{a.TriggerType, a.TriggerConfig, a.Conditions, a.Actions})
	if err != nil {
		return true
	}
	bv, err := json.Marshal(versioned{b.TriggerType, b.TriggerConfig, b.Conditions, b.Actions})
	if err != nil {
		return true
	}
	return !bytes.Equal(av, bv)
}
