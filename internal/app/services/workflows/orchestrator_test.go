package workflows

import (
	"context"
	"fmt"
	"strings"
	"testing"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage/memory"
)

func newTestOrchestrator(store *memory.Store) (*Orchestrator, *Executor) {
	executor := newTestExecutor(store)
	return NewOrchestrator(store, store, store, executor, nil), executor
}

func noteAction(content string) workflow.Action {
	return workflow.Action{Type: workflow.ActionAddNote, Config: workflow.ActionConfig{Content: content}}
}

func TestOrchestrator_RunToCompletion(t *testing.T) {
	store := memory.New()
	client, _ := store.CreateClient(context.Background(), crm.Client{FirstName: "Ada", Status: "LEAD"})
	orch, _ := newTestOrchestrator(store)

	wf := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerManual,
		Actions: []workflow.Action{
			noteAction("first"),
			{Type: workflow.ActionUpdateClientStatus, Config: workflow.ActionConfig{Status: "ACTIVE"}},
			noteAction("second"),
		},
	})

	exec, err := orch.CreateExecution(context.Background(), wf, client.ID, map[string]interface{}{"source": "test"})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if exec.Status != workflow.StatusPending || exec.CurrentStep != 0 {
		t.Fatalf("new execution should be PENDING at step 0: %+v", exec)
	}

	done, err := orch.Run(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.CurrentStep != 3 {
		t.Fatalf("cursor should pass the end, got %d", done.CurrentStep)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Fatalf("timestamps not set: %+v", done)
	}

	notes, _ := store.ListNotes(context.Background(), client.ID)
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	updated, _ := store.GetClient(context.Background(), client.ID)
	if updated.Status != "ACTIVE" {
		t.Fatalf("client status not updated: %s", updated.Status)
	}
}

func TestOrchestrator_FailureRecordsFailingIndex(t *testing.T) {
	store := memory.New()
	client, _ := store.CreateClient(context.Background(), crm.Client{FirstName: "Ada"})
	orch, executor := newTestOrchestrator(store)

	executor.Register(workflow.ActionSendNotification, HandlerFunc(func(context.Context, workflow.Action, *RunContext) ActionResult {
		return failure(fmt.Errorf("provider unavailable"))
	}))

	wf := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerManual,
		Actions: []workflow.Action{
			noteAction("before"),
			{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-1", Title: "t"}},
			noteAction("after"),
		},
	})

	exec, _ := orch.CreateExecution(context.Background(), wf, client.ID, nil)
	done, err := orch.Run(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != workflow.StatusFailed {
		t.Fatalf("expected FAILED, got %s", done.Status)
	}
	if done.CurrentStep != 1 {
		t.Fatalf("cursor should sit at the failing action index, got %d", done.CurrentStep)
	}
	if !strings.Contains(done.ErrorMessage, "provider unavailable") {
		t.Fatalf("error message not captured: %q", done.ErrorMessage)
	}

	notes, _ := store.ListNotes(context.Background(), client.ID)
	if len(notes) != 1 {
		t.Fatalf("action after the failure must not run, got %d notes", len(notes))
	}
}

func TestOrchestrator_SkipsActionsWithFalseConditions(t *testing.T) {
	store := memory.New()
	client, _ := store.CreateClient(context.Background(), crm.Client{FirstName: "Ada", Status: "LEAD"})
	orch, _ := newTestOrchestrator(store)

	skip := noteAction("skipped")
	skip.Condition = leaf("client_status", workflow.OpEquals, "ACTIVE")
	keep := noteAction("kept")
	keep.Condition = leaf("client_status", workflow.OpEquals, "LEAD")

	wf := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerManual,
		Actions:     []workflow.Action{skip, keep},
	})

	exec, _ := orch.CreateExecution(context.Background(), wf, client.ID, nil)
	done, err := orch.Run(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if done.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", done.Status)
	}

	notes, _ := store.ListNotes(context.Background(), client.ID)
	if len(notes) != 1 || notes[0].Content != "kept" {
		t.Fatalf("condition skip misbehaved: %+v", notes)
	}
}

func TestOrchestrator_PauseValidation(t *testing.T) {
	store := memory.New()
	orch, _ := newTestOrchestrator(store)

	wf := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerManual,
		Actions:     []workflow.Action{{Type: workflow.ActionWait, Config: workflow.ActionConfig{DurationSeconds: 3600}}},
	})

	exec, _ := orch.CreateExecution(context.Background(), wf, "", nil)
	parked, err := orch.Run(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if parked.Status != workflow.StatusRunning || parked.WaitUntil == nil {
		t.Fatalf("expected execution parked on WAIT: %+v", parked)
	}

	paused, err := orch.Pause(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.Status != workflow.StatusPaused {
		t.Fatalf("expected PAUSED, got %s", paused.Status)
	}

	_, err = orch.Pause(context.Background(), exec.ID)
	if err == nil {
		t.Fatalf("double pause must fail")
	}
	if apperrors.StatusOf(err) != 400 {
		t.Fatalf("double pause should be a bad request, got %d", apperrors.StatusOf(err))
	}
	if !strings.Contains(err.Error(), string(workflow.StatusPaused)) {
		t.Fatalf("error should name the current status: %v", err)
	}
}

func TestOrchestrator_ResumeContinuesAtCursor(t *testing.T) {
	store := memory.New()
	client, _ := store.CreateClient(context.Background(), crm.Client{FirstName: "Ada"})
	orch, executor := newTestOrchestrator(store)

	fail := true
	executor.Register(workflow.ActionSendNotification, HandlerFunc(func(context.Context, workflow.Action, *RunContext) ActionResult {
		if fail {
			return failure(fmt.Errorf("flaky downstream"))
		}
		return success("delivered")
	}))

	wf := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerManual,
		Actions: []workflow.Action{
			noteAction("first"),
			{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-1", Title: "t"}},
			noteAction("last"),
		},
	})

	exec, _ := orch.CreateExecution(context.Background(), wf, client.ID, nil)
	failed, _ := orch.Run(context.Background(), exec.ID)
	if failed.Status != workflow.StatusFailed || failed.CurrentStep != 1 {
		t.Fatalf("setup: expected FAILED at step 1, got %s at %d", failed.Status, failed.CurrentStep)
	}

	// Resume against a terminal execution is rejected.
	if _, err := orch.Resume(context.Background(), exec.ID); err == nil {
		t.Fatalf("resume of a FAILED execution must fail")
	}
}

func TestOrchestrator_ResumeRefailureRevertsToPaused(t *testing.T) {
	store := memory.New()
	client, _ := store.CreateClient(context.Background(), crm.Client{FirstName: "Ada"})
	orch, executor := newTestOrchestrator(store)

	attempts := 0
	executor.Register(workflow.ActionSendNotification, HandlerFunc(func(context.Context, workflow.Action, *RunContext) ActionResult {
		attempts++
		if attempts == 1 {
			return failure(fmt.Errorf("still down"))
		}
		return success("delivered")
	}))

	wf := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerManual,
		Actions: []workflow.Action{
			noteAction("first"),
			{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-1", Title: "t"}},
			noteAction("last"),
		},
	})

	// Build a paused execution sitting at the flaky action, as if an
	// operator paused after the first step.
	exec, _ := orch.CreateExecution(context.Background(), wf, client.ID, nil)
	record, _ := store.GetExecution(context.Background(), exec.ID)
	record.Status = workflow.StatusRunning
	record.CurrentStep = 1
	if _, err := store.UpdateExecution(context.Background(), record); err != nil {
		t.Fatalf("update execution: %v", err)
	}
	if _, err := orch.Pause(context.Background(), exec.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// Resume: the flaky action fails, so the execution must revert to
	// PAUSED rather than FAILED.
	resumed, err := orch.Resume(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != workflow.StatusPaused {
		t.Fatalf("re-failure after resume should yield PAUSED, got %s", resumed.Status)
	}
	if resumed.CurrentStep != 1 {
		t.Fatalf("cursor must stay at the failing index, got %d", resumed.CurrentStep)
	}

	// Second resume: the retry succeeds and the run completes.
	final, err := orch.Resume(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if final.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED after successful retry, got %s (%s)", final.Status, final.ErrorMessage)
	}
}

func TestOrchestrator_DryRun(t *testing.T) {
	store := memory.New()
	client, _ := store.CreateClient(context.Background(), crm.Client{FirstName: "Ada", Status: "LEAD"})
	orch, _ := newTestOrchestrator(store)

	gated := workflow.Action{
		Type:      workflow.ActionAddTag,
		Config:    workflow.ActionConfig{Tag: "vip"},
		Condition: leaf("client_status", workflow.OpEquals, "ACTIVE"),
	}
	wf := workflow.Workflow{
		ID:          "wf-dry",
		Name:        "preview",
		TriggerType: workflow.TriggerManual,
		Actions: []workflow.Action{
			noteAction("hello {{client_name}}"),
			gated,
		},
	}

	steps, err := orch.DryRun(context.Background(), wf, client.ID, map[string]interface{}{"k": "v"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(steps))
	}
	if steps[0].Skipped || !steps[0].Success {
		t.Fatalf("first step should be an intended action: %+v", steps[0])
	}
	if !strings.Contains(steps[0].Output, "hello Ada") {
		t.Fatalf("dry run should render templates: %q", steps[0].Output)
	}
	if !steps[1].Skipped {
		t.Fatalf("gated step should be skipped: %+v", steps[1])
	}

	// No side effects and no persisted execution.
	notes, _ := store.ListNotes(context.Background(), client.ID)
	if len(notes) != 0 {
		t.Fatalf("dry run must not create notes, got %d", len(notes))
	}
	execs, _ := store.ListExecutions(context.Background(), wf.ID)
	if len(execs) != 0 {
		t.Fatalf("dry run must not persist executions, got %d", len(execs))
	}
}
