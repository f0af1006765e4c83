package workflows

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage/memory"
)

func newTestService(store *memory.Store) *Service {
	orch, _ := newTestOrchestrator(store)
	matcher := NewMatcher(store, nil)
	gate := NewGatekeeper(store, store, nil)
	return NewService(store, store, store, matcher, orch, gate, nil)
}

func validWorkflow() workflow.Workflow {
	return workflow.Workflow{
		Name:        "new lead outreach",
		IsActive:    true,
		TriggerType: workflow.TriggerClientCreated,
		Actions: []workflow.Action{
			{Type: workflow.ActionSendEmail, Config: workflow.ActionConfig{Subject: "Welcome", BodyTemplate: "Hi {{client_name}}"}},
			{Type: workflow.ActionCreateTask, Config: workflow.ActionConfig{Title: "Follow up", DueInDays: 2}},
		},
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := newTestService(memory.New())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*workflow.Workflow)
	}{
		{"missing name", func(wf *workflow.Workflow) { wf.Name = "" }},
		{"unknown trigger", func(wf *workflow.Workflow) { wf.TriggerType = "PHASE_OF_MOON" }},
		{"empty actions", func(wf *workflow.Workflow) { wf.Actions = nil }},
		{"unknown action type", func(wf *workflow.Workflow) { wf.Actions[0].Type = "TELEPORT" }},
		{"email without subject", func(wf *workflow.Workflow) { wf.Actions[0].Config.Subject = "" }},
		{"unknown operator", func(wf *workflow.Workflow) {
			wf.Conditions = &workflow.Condition{Field: "status", Operator: "matches", Value: "x"}
		}},
		{"composite with leaf fields", func(wf *workflow.Workflow) {
			wf.Conditions = &workflow.Condition{All: []workflow.Condition{}, Field: "status"}
		}},
		{"scheduled without cron", func(wf *workflow.Workflow) {
			wf.TriggerType = workflow.TriggerScheduled
		}},
		{"scheduled with bad cron", func(wf *workflow.Workflow) {
			wf.TriggerType = workflow.TriggerScheduled
			wf.TriggerConfig.Cron = "once in a blue moon"
		}},
		{"webhook without secret", func(wf *workflow.Workflow) {
			wf.TriggerType = workflow.TriggerWebhook
		}},
		{"wait without duration", func(wf *workflow.Workflow) {
			wf.Actions = []workflow.Action{{Type: workflow.ActionWait}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := validWorkflow()
			tc.mutate(&wf)
			_, err := svc.CreateWorkflow(ctx, wf)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if apperrors.CodeOf(err) != apperrors.CodeValidation {
				t.Fatalf("expected validation code, got %s (%v)", apperrors.CodeOf(err), err)
			}
		})
	}

	created, err := svc.CreateWorkflow(ctx, validWorkflow())
	if err != nil {
		t.Fatalf("valid workflow rejected: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("new workflow should start at version 1, got %d", created.Version)
	}
}

func TestService_UpdateVersioning(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	created, err := svc.CreateWorkflow(ctx, validWorkflow())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A rename alone does not cut a version.
	renamed := created
	renamed.Name = "renamed outreach"
	renamed, err = svc.UpdateWorkflow(ctx, renamed)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Version != 1 {
		t.Fatalf("rename should not bump version, got %d", renamed.Version)
	}
	if versions, _ := svc.ListVersions(ctx, created.ID); len(versions) != 0 {
		t.Fatalf("rename should not snapshot, got %d versions", len(versions))
	}

	// Changing the action list snapshots the pre-update definition.
	changed := renamed
	changed.Actions = append([]workflow.Action(nil), changed.Actions...)
	changed.Actions[0].Config.Subject = "Welcome aboard"
	changed, err = svc.UpdateWorkflow(ctx, changed)
	if err != nil {
		t.Fatalf("update actions: %v", err)
	}
	if changed.Version != 2 {
		t.Fatalf("definition change should bump version to 2, got %d", changed.Version)
	}

	versions, err := svc.ListVersions(ctx, created.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != 1 {
		t.Fatalf("expected snapshot of version 1, got %+v", versions)
	}
	if versions[0].Definition.Actions[0].Config.Subject != "Welcome" {
		t.Fatalf("snapshot should hold the pre-update definition")
	}
}

func TestService_RollbackRestoresDefinition(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	created, _ := svc.CreateWorkflow(ctx, validWorkflow())

	v2 := created
	v2.Actions = append([]workflow.Action(nil), v2.Actions...)
	v2.Actions[0].Config.Subject = "Updated subject"
	v2, err := svc.UpdateWorkflow(ctx, v2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	rolled, err := svc.Rollback(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rolled.Version != v2.Version+1 {
		t.Fatalf("rollback must advance the counter: was %d, now %d", v2.Version, rolled.Version)
	}

	// The live definition must equal the version 1 snapshot byte for byte.
	snapshot, err := svc.GetVersion(ctx, created.ID, 1)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	liveDef, _ := json.Marshal(workflow.DefinitionOf(rolled))
	snapDef, _ := json.Marshal(snapshot.Definition)
	if string(liveDef) != string(snapDef) {
		t.Fatalf("definitions differ after rollback:\nlive: %s\nsnap: %s", liveDef, snapDef)
	}

	// History preserved the pre-rollback state too.
	versions, _ := svc.ListVersions(ctx, created.ID)
	if len(versions) != 2 {
		t.Fatalf("expected 2 snapshots after rollback, got %d", len(versions))
	}

	if _, err := svc.Rollback(ctx, created.ID, 99); apperrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("rollback to a missing version should be not found, got %v", err)
	}
}

func TestService_ExportImportRoundTrip(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	src := validWorkflow()
	src.Conditions = &workflow.Condition{
		Any: []workflow.Condition{
			{Field: "trigger.status", Operator: workflow.OpEquals, Value: "LEAD"},
		},
	}
	created, err := svc.CreateWorkflow(ctx, src)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := svc.Export(ctx, created.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Version != workflow.ExportFormatVersion {
		t.Fatalf("export format version: %q", doc.Version)
	}

	// Round trip the document through JSON, as a real consumer would.
	raw, _ := json.Marshal(doc)
	var decoded workflow.ExportDocument
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode export: %v", err)
	}

	imported, err := svc.Import(ctx, decoded, "importer")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.Version != 1 {
		t.Fatalf("imported workflow should reset to version 1, got %d", imported.Version)
	}
	if imported.IsActive {
		t.Fatalf("imported workflow should start inactive")
	}

	wantActions, _ := json.Marshal(created.Actions)
	gotActions, _ := json.Marshal(imported.Actions)
	if string(wantActions) != string(gotActions) {
		t.Fatalf("actions did not survive the round trip:\nwant %s\ngot  %s", wantActions, gotActions)
	}

	wantCond, _ := json.Marshal(created.Conditions)
	gotCond, _ := json.Marshal(imported.Conditions)
	if string(wantCond) != string(gotCond) {
		t.Fatalf("conditions did not survive the round trip")
	}

	if _, err := svc.Import(ctx, workflow.ExportDocument{Version: "2.0"}, ""); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("unsupported format version should be a validation error, got %v", err)
	}
}

func TestService_ExportStripsWebhookSecret(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	wf := validWorkflow()
	wf.TriggerType = workflow.TriggerWebhook
	wf.TriggerConfig = workflow.TriggerConfig{Secret: "super-secret"}
	created, _ := svc.CreateWorkflow(ctx, wf)

	doc, err := svc.Export(ctx, created.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if doc.Workflow.TriggerConfig.Secret != "" {
		t.Fatalf("export must strip the webhook secret")
	}

	// Import regenerates a secret so the workflow still validates.
	imported, err := svc.Import(ctx, doc, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.TriggerConfig.Secret == "" || imported.TriggerConfig.Secret == "super-secret" {
		t.Fatalf("import should generate a fresh secret")
	}
}

func TestService_CloneTemplate(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	tmpl := validWorkflow()
	tmpl.IsTemplate = true
	created, _ := svc.CreateWorkflow(ctx, tmpl)

	clone, err := svc.CloneTemplate(ctx, created.ID, "my onboarding", "user-1")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.ID == created.ID {
		t.Fatalf("clone must get its own id")
	}
	if clone.IsTemplate || clone.IsActive {
		t.Fatalf("clone should be a plain inactive workflow: %+v", clone)
	}
	if clone.Name != "my onboarding" || clone.CreatedBy != "user-1" {
		t.Fatalf("clone metadata wrong: %+v", clone)
	}
	if len(clone.Actions) != len(created.Actions) {
		t.Fatalf("clone should copy actions")
	}
}

func TestService_ManualExecute(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	wf := workflow.Workflow{
		Name:        "manual run",
		TriggerType: workflow.TriggerManual,
		Actions:     []workflow.Action{{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-1", Title: "ping"}}},
	}
	created, _ := svc.CreateWorkflow(ctx, wf)

	exec, err := svc.Execute(ctx, created.ID, "", map[string]interface{}{"reason": "ops"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", exec.Status, exec.ErrorMessage)
	}
	if exec.TriggerData["triggerType"] != string(workflow.TriggerManual) {
		t.Fatalf("manual execute should stamp the trigger type: %+v", exec.TriggerData)
	}

	notifs, _ := store.ListNotifications(ctx, "u-1")
	if len(notifs) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifs))
	}
}

func TestService_ExecuteRejectsTemplates(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	tpl := workflow.Workflow{
		Name:        "onboarding blueprint",
		IsTemplate:  true,
		TriggerType: workflow.TriggerManual,
		Actions:     []workflow.Action{{Type: workflow.ActionCreateTask, Config: workflow.ActionConfig{Title: "kick off"}}},
	}
	created, err := svc.CreateWorkflow(ctx, tpl)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	if _, err := svc.Execute(ctx, created.ID, "", nil); apperrors.CodeOf(err) != apperrors.CodeBadRequest {
		t.Fatalf("template execute should be rejected, got %v", err)
	}
	execs, _ := store.ListExecutions(ctx, created.ID)
	if len(execs) != 0 {
		t.Fatalf("template execute must not create executions, got %d", len(execs))
	}

	// The clone runs fine.
	clone, err := svc.CloneTemplate(ctx, created.ID, "onboarding", "u-1")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	exec, err := svc.Execute(ctx, clone.ID, "", nil)
	if err != nil {
		t.Fatalf("execute clone: %v", err)
	}
	if exec.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", exec.Status, exec.ErrorMessage)
	}
}

func TestService_HandleWebhookRunsWorkflow(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	wf := validWorkflow()
	wf.TriggerType = workflow.TriggerWebhook
	wf.TriggerConfig = workflow.TriggerConfig{Secret: testSecret}
	wf.Actions = []workflow.Action{{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-1", Title: "hook"}}}
	created, _ := svc.CreateWorkflow(ctx, wf)

	body := []byte(`{"clientId":"","orderId":"o-42"}`)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := SignPayload(testSecret, ts, body)

	exec, err := svc.HandleWebhook(ctx, created.ID, sig, ts, body)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if exec.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", exec.Status, exec.ErrorMessage)
	}
	if exec.TriggerData["orderId"] != "o-42" {
		t.Fatalf("body should become trigger data: %+v", exec.TriggerData)
	}

	// Identical redelivery: conflict, and no second execution.
	_, err = svc.HandleWebhook(ctx, created.ID, sig, ts, body)
	if apperrors.StatusOf(err) != http.StatusConflict {
		t.Fatalf("redelivery should conflict, got %v", err)
	}
	execs, _ := store.ListExecutions(ctx, created.ID)
	if len(execs) != 1 {
		t.Fatalf("replay must not create a second execution, got %d", len(execs))
	}
}

func TestService_HandleWebhookMalformedBodyDoesNotBurnReplayKey(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	wf := validWorkflow()
	wf.TriggerType = workflow.TriggerWebhook
	wf.TriggerConfig = workflow.TriggerConfig{Secret: testSecret}
	wf.Actions = []workflow.Action{{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-1", Title: "hook"}}}
	created, _ := svc.CreateWorkflow(ctx, wf)

	body := []byte(`{"orderId":`)
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := SignPayload(testSecret, ts, body)

	// A correctly signed but malformed delivery gets 400.
	_, err := svc.HandleWebhook(ctx, created.ID, sig, ts, body)
	if apperrors.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("malformed body should be a bad request, got %v", err)
	}

	// The sender fixes nothing and retries the same delivery: still 400,
	// not a replay conflict.
	_, err = svc.HandleWebhook(ctx, created.ID, sig, ts, body)
	if apperrors.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("retry of a malformed delivery should stay a bad request, got %v", err)
	}

	// A corrected delivery under the same timestamp is admitted.
	fixed := []byte(`{"orderId":"o-42"}`)
	exec, err := svc.HandleWebhook(ctx, created.ID, SignPayload(testSecret, ts, fixed), ts, fixed)
	if err != nil {
		t.Fatalf("corrected delivery: %v", err)
	}
	if exec.Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", exec.Status, exec.ErrorMessage)
	}
}

func TestService_HandleEventRunsMatches(t *testing.T) {
	store := memory.New()
	svc := newTestService(store)
	ctx := context.Background()

	wf := validWorkflow()
	wf.Actions = []workflow.Action{{Type: workflow.ActionSendNotification, Config: workflow.ActionConfig{UserID: "u-9", Title: "new lead"}}}
	created, _ := svc.CreateWorkflow(ctx, wf)

	err := svc.HandleEvent(ctx, workflow.Event{Type: workflow.TriggerClientCreated, ClientID: "c-1", Status: "LEAD"})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	execs, _ := store.ListExecutions(ctx, created.ID)
	if len(execs) != 1 {
		t.Fatalf("expected one execution, got %d", len(execs))
	}
	if execs[0].Status != workflow.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", execs[0].Status)
	}
	if execs[0].TriggerData["status"] != "LEAD" {
		t.Fatalf("event fields should flow into trigger data: %+v", execs[0].TriggerData)
	}
}
