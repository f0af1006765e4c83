package memory

import (
	"context"
	"net/http"
	"testing"
	"time"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
)

func seedWorkflow(t *testing.T, store *Store) workflow.Workflow {
	t.Helper()
	wf, err := store.CreateWorkflow(context.Background(), workflow.Workflow{
		Name:        "test",
		TriggerType: workflow.TriggerManual,
		Version:     1,
		Actions:     []workflow.Action{{Type: workflow.ActionAddNote, Config: workflow.ActionConfig{Content: "x"}}},
	})
	if err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return wf
}

func TestStore_UpdateWorkflowWithSnapshot(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := seedWorkflow(t, store)

	snapshot := workflow.Version{WorkflowID: wf.ID, Version: 1, Definition: workflow.DefinitionOf(wf)}
	updated := wf
	updated.Version = 2
	updated.Name = "test v2"

	if _, err := store.UpdateWorkflowWithSnapshot(ctx, updated, snapshot); err != nil {
		t.Fatalf("update with snapshot: %v", err)
	}

	got, _ := store.GetWorkflow(ctx, wf.ID)
	if got.Version != 2 || got.Name != "test v2" {
		t.Fatalf("live workflow not updated: %+v", got)
	}
	if _, err := store.GetWorkflowVersion(ctx, wf.ID, 1); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}

	// A duplicate version number is rejected and leaves the live row alone.
	again := updated
	again.Name = "should not land"
	if _, err := store.UpdateWorkflowWithSnapshot(ctx, again, snapshot); err == nil {
		t.Fatalf("duplicate snapshot version should fail")
	}
	got, _ = store.GetWorkflow(ctx, wf.ID)
	if got.Name != "test v2" {
		t.Fatalf("failed snapshot must not update the workflow: %q", got.Name)
	}

	// Unknown workflow.
	if _, err := store.UpdateWorkflowWithSnapshot(ctx, workflow.Workflow{ID: "nope"}, workflow.Version{WorkflowID: "nope", Version: 1}); apperrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_VersionsSortedAndIsolated(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := seedWorkflow(t, store)

	for _, v := range []int{3, 1, 2} {
		if _, err := store.AppendWorkflowVersion(ctx, workflow.Version{WorkflowID: wf.ID, Version: v}); err != nil {
			t.Fatalf("append version %d: %v", v, err)
		}
	}

	versions, err := store.ListWorkflowVersions(ctx, wf.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	for i, ver := range versions {
		if ver.Version != i+1 {
			t.Fatalf("versions out of order: %+v", versions)
		}
	}

	// Mutating a returned snapshot must not touch the stored copy.
	versions[0].Definition.Name = "mutated"
	fresh, _ := store.GetWorkflowVersion(ctx, wf.ID, 1)
	if fresh.Definition.Name == "mutated" {
		t.Fatalf("store returned a shared reference")
	}
}

func TestStore_DeleteWorkflowCascades(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := seedWorkflow(t, store)

	if _, err := store.AppendWorkflowVersion(ctx, workflow.Version{WorkflowID: wf.ID, Version: 1}); err != nil {
		t.Fatalf("append version: %v", err)
	}
	exec, err := store.CreateExecution(ctx, workflow.Execution{WorkflowID: wf.ID, Status: workflow.StatusPending})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	if err := store.DeleteWorkflow(ctx, wf.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.GetWorkflow(ctx, wf.ID); apperrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("workflow should be gone, got %v", err)
	}
	if versions, _ := store.ListWorkflowVersions(ctx, wf.ID); len(versions) != 0 {
		t.Fatalf("versions should cascade, got %d", len(versions))
	}
	if _, err := store.GetExecution(ctx, exec.ID); apperrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("executions should cascade, got %v", err)
	}
}

func TestStore_CheckAndInsert(t *testing.T) {
	store := New()
	ctx := context.Background()

	seen, err := store.CheckAndInsert(ctx, "wf-1:sig:ts", 50*time.Millisecond)
	if err != nil || seen {
		t.Fatalf("first insert should be unseen, got seen=%v err=%v", seen, err)
	}
	if seen, _ := store.CheckAndInsert(ctx, "wf-1:sig:ts", 50*time.Millisecond); !seen {
		t.Fatalf("second insert within ttl should be seen")
	}
	if seen, _ := store.CheckAndInsert(ctx, "wf-1:other:ts", 50*time.Millisecond); seen {
		t.Fatalf("different key should be unseen")
	}

	time.Sleep(60 * time.Millisecond)
	if seen, _ := store.CheckAndInsert(ctx, "wf-1:sig:ts", 50*time.Millisecond); seen {
		t.Fatalf("entry should expire after its ttl")
	}
}

func TestStore_ListDueExecutions(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := seedWorkflow(t, store)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due, _ := store.CreateExecution(ctx, workflow.Execution{WorkflowID: wf.ID, Status: workflow.StatusRunning, WaitUntil: &past})
	if _, err := store.CreateExecution(ctx, workflow.Execution{WorkflowID: wf.ID, Status: workflow.StatusRunning, WaitUntil: &future}); err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if _, err := store.CreateExecution(ctx, workflow.Execution{WorkflowID: wf.ID, Status: workflow.StatusPending}); err != nil {
		t.Fatalf("create execution: %v", err)
	}

	got, err := store.ListDueExecutions(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("expected only the elapsed execution, got %+v", got)
	}
}
