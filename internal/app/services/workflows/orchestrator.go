package workflows

import (
	"context"
	"time"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/metrics"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// Orchestrator owns the execution state machine. The action list walk is an
// explicit cursor plus loop so pause is "stop after the current iteration"
// and resume is "continue the same loop", serializable to the persisted
// CurrentStep between calls.
type Orchestrator struct {
	workflows  storage.WorkflowStore
	executions storage.ExecutionStore
	clients    storage.ClientStore
	executor   *Executor
	log        *logger.Logger
}

// NewOrchestrator builds an orchestrator over the given stores and executor.
func NewOrchestrator(workflows storage.WorkflowStore, executions storage.ExecutionStore, clients storage.ClientStore, executor *Executor, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault("workflow-orchestrator")
	}
	return &Orchestrator{
		workflows:  workflows,
		executions: executions,
		clients:    clients,
		executor:   executor,
		log:        log,
	}
}

// CreateExecution persists a new PENDING execution for the workflow.
func (o *Orchestrator) CreateExecution(ctx context.Context, wf workflow.Workflow, clientID string, triggerData map[string]interface{}) (workflow.Execution, error) {
	exec := workflow.Execution{
		WorkflowID:  wf.ID,
		ClientID:    clientID,
		Status:      workflow.StatusPending,
		CurrentStep: 0,
		TriggerData: triggerData,
	}
	return o.executions.CreateExecution(ctx, exec)
}

// Run drives the execution's step loop until it reaches a resting state:
// COMPLETED, FAILED, PAUSED, or parked on a WAIT. Callable on a PENDING
// execution (initial start) or a RUNNING one whose wait has elapsed.
func (o *Orchestrator) Run(ctx context.Context, executionID string) (workflow.Execution, error) {
	exec, err := o.executions.GetExecution(ctx, executionID)
	if err != nil {
		return workflow.Execution{}, err
	}
	switch exec.Status {
	case workflow.StatusPending:
		now := time.Now().UTC()
		exec.Status = workflow.StatusRunning
		exec.StartedAt = &now
		if exec, err = o.executions.UpdateExecution(ctx, exec); err != nil {
			return workflow.Execution{}, err
		}
	case workflow.StatusRunning:
		if exec.WaitUntil != nil && time.Now().UTC().Before(*exec.WaitUntil) {
			return exec, nil
		}
		exec.WaitUntil = nil
		if exec, err = o.executions.UpdateExecution(ctx, exec); err != nil {
			return workflow.Execution{}, err
		}
	default:
		if exec.Status.Terminal() {
			return workflow.Execution{}, apperrors.BadRequest("execution %s already finished as %s", exec.ID, exec.Status)
		}
		return workflow.Execution{}, apperrors.BadRequest("cannot run execution in status %s", exec.Status)
	}
	return o.runLoop(ctx, exec, false)
}

// Pause marks a RUNNING execution PAUSED. The cursor is untouched, so a
// later resume continues at the same step.
func (o *Orchestrator) Pause(ctx context.Context, executionID string) (workflow.Execution, error) {
	exec, err := o.executions.GetExecution(ctx, executionID)
	if err != nil {
		return workflow.Execution{}, err
	}
	if !exec.Status.CanTransitionTo(workflow.StatusPaused) {
		return workflow.Execution{}, apperrors.BadRequest("cannot pause execution in status %s", exec.Status)
	}
	exec.Status = workflow.StatusPaused
	return o.executions.UpdateExecution(ctx, exec)
}

// Resume transitions a PAUSED execution back to RUNNING and re-enters the
// step loop at the unchanged cursor. If the first action after resumption
// fails again the execution reverts to PAUSED rather than FAILED, so an
// operator can remediate and retry.
func (o *Orchestrator) Resume(ctx context.Context, executionID string) (workflow.Execution, error) {
	exec, err := o.executions.GetExecution(ctx, executionID)
	if err != nil {
		return workflow.Execution{}, err
	}
	if exec.Status != workflow.StatusPaused {
		return workflow.Execution{}, apperrors.BadRequest("cannot resume execution in status %s", exec.Status)
	}
	exec.Status = workflow.StatusRunning
	exec.ErrorMessage = ""
	if exec, err = o.executions.UpdateExecution(ctx, exec); err != nil {
		return workflow.Execution{}, err
	}
	return o.runLoop(ctx, exec, true)
}

func (o *Orchestrator) runLoop(ctx context.Context, exec workflow.Execution, resumed bool) (workflow.Execution, error) {
	wf, err := o.workflows.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return workflow.Execution{}, err
	}

	client := o.loadClient(ctx, exec.ClientID)
	firstAfterResume := resumed

	for exec.CurrentStep < len(wf.Actions) {
		// Honor an operator pause before starting the next action.
		current, err := o.executions.GetExecution(ctx, exec.ID)
		if err != nil {
			return workflow.Execution{}, err
		}
		if current.Status == workflow.StatusPaused {
			return current, nil
		}
		exec = current

		action := wf.Actions[exec.CurrentStep]
		eval := NewEvalContext(wf, exec, client)

		if !EvaluateCondition(wf.Conditions, eval) || !EvaluateCondition(action.Condition, eval) {
			exec.CurrentStep++
			if exec, err = o.executions.UpdateExecution(ctx, exec); err != nil {
				return workflow.Execution{}, err
			}
			continue
		}

		run := &RunContext{Workflow: wf, Execution: &exec, Client: client, Eval: eval}
		result := o.executor.Execute(ctx, action, run)
		client = run.Client
		metrics.RecordActionRun(string(action.Type), result.Success)
		firstWasResume := firstAfterResume
		firstAfterResume = false

		if !result.Success {
			exec.ErrorMessage = result.Err.Error()
			if firstWasResume {
				exec.Status = workflow.StatusPaused
			} else {
				exec.Status = workflow.StatusFailed
				now := time.Now().UTC()
				exec.CompletedAt = &now
			}
			o.log.WithField("execution_id", exec.ID).
				WithField("workflow_id", wf.ID).
				WithField("step", exec.CurrentStep).
				WithError(result.Err).
				Warn("Workflow action failed")
			metrics.RecordExecutionFinished(string(exec.Status), o.elapsed(exec))
			return o.executions.UpdateExecution(ctx, exec)
		}

		exec.CurrentStep++
		if result.WaitFor > 0 {
			until := time.Now().UTC().Add(result.WaitFor)
			exec.WaitUntil = &until
			return o.executions.UpdateExecution(ctx, exec)
		}
		if exec, err = o.executions.UpdateExecution(ctx, exec); err != nil {
			return workflow.Execution{}, err
		}
	}

	now := time.Now().UTC()
	exec.Status = workflow.StatusCompleted
	exec.CompletedAt = &now
	metrics.RecordExecutionFinished(string(exec.Status), o.elapsed(exec))
	o.log.WithField("execution_id", exec.ID).
		WithField("workflow_id", wf.ID).
		Info("Workflow execution completed")
	return o.executions.UpdateExecution(ctx, exec)
}

func (o *Orchestrator) elapsed(exec workflow.Execution) time.Duration {
	if exec.StartedAt == nil {
		return 0
	}
	return time.Since(*exec.StartedAt)
}

func (o *Orchestrator) loadClient(ctx context.Context, clientID string) *crm.Client {
	if clientID == "" {
		return nil
	}
	client, err := o.clients.GetClient(ctx, clientID)
	if err != nil {
		o.log.WithField("client_id", clientID).WithError(err).Warn("Execution client not found, running without client context")
		return nil
	}
	return &client
}

// DryRun walks the action list evaluating conditions and computing each
// action's intended effect without side effects or persistence. Used to
// preview a workflow against sample trigger data.
func (o *Orchestrator) DryRun(ctx context.Context, wf workflow.Workflow, clientID string, triggerData map[string]interface{}) ([]workflow.StepResult, error) {
	client := o.loadClient(ctx, clientID)
	exec := workflow.Execution{
		ID:          "dry-run",
		WorkflowID:  wf.ID,
		ClientID:    clientID,
		Status:      workflow.StatusRunning,
		TriggerData: triggerData,
	}

	results := make([]workflow.StepResult, 0, len(wf.Actions))
	for i, action := range wf.Actions {
		exec.CurrentStep = i
		eval := NewEvalContext(wf, exec, client)
		step := workflow.StepResult{Index: i, Type: action.Type}
		if !EvaluateCondition(wf.Conditions, eval) || !EvaluateCondition(action.Condition, eval) {
			step.Skipped = true
			results = append(results, step)
			continue
		}
		run := &RunContext{Workflow: wf, Execution: &exec, Client: client, Eval: eval}
		step.Success = true
		step.Output = o.executor.Describe(action, run)
		results = append(results, step)
	}
	return results, nil
}
