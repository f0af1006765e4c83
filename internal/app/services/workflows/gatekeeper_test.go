package workflows

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage/memory"
)

const testSecret = "wh-secret"

func seedWebhookWorkflow(t *testing.T, store *memory.Store) workflow.Workflow {
	t.Helper()
	return seedWorkflow(t, store, workflow.Workflow{
		IsActive:      true,
		TriggerType:   workflow.TriggerWebhook,
		TriggerConfig: workflow.TriggerConfig{Secret: testSecret},
	})
}

func stamp(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10)
}

func TestGatekeeper_AcceptsValidDelivery(t *testing.T) {
	store := memory.New()
	wf := seedWebhookWorkflow(t, store)
	gate := NewGatekeeper(store, store, nil)

	body := []byte(`{"clientId":"c-1"}`)
	ts := stamp(time.Now())
	sig := SignPayload(testSecret, ts, body)

	admitted, err := gate.Admit(context.Background(), wf.ID, sig, ts, body)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if admitted.ID != wf.ID {
		t.Fatalf("wrong workflow admitted: %s", admitted.ID)
	}
}

func TestGatekeeper_ReplayRejectedSecondTime(t *testing.T) {
	store := memory.New()
	wf := seedWebhookWorkflow(t, store)
	gate := NewGatekeeper(store, store, nil)

	body := []byte(`{"clientId":"c-1"}`)
	ts := stamp(time.Now())
	sig := SignPayload(testSecret, ts, body)

	if _, err := gate.Admit(context.Background(), wf.ID, sig, ts, body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	_, err := gate.Admit(context.Background(), wf.ID, sig, ts, body)
	if err == nil {
		t.Fatalf("identical redelivery must be rejected")
	}
	if apperrors.StatusOf(err) != http.StatusConflict {
		t.Fatalf("replay should be a conflict, got %d", apperrors.StatusOf(err))
	}
	if !strings.Contains(err.Error(), "replay detected") {
		t.Fatalf("unexpected replay error: %v", err)
	}
}

func TestGatekeeper_StaleTimestampSkipsSignatureCheck(t *testing.T) {
	store := memory.New()
	wf := seedWebhookWorkflow(t, store)

	verifierCalled := false
	gate := NewGatekeeper(store, store, nil, WithSignatureVerifier(func(string, string, []byte, string) bool {
		verifierCalled = true
		return true
	}))

	body := []byte(`{}`)
	ts := stamp(time.Now().Add(-5 * time.Minute))
	sig := SignPayload(testSecret, ts, body)

	_, err := gate.Admit(context.Background(), wf.ID, sig, ts, body)
	if err == nil {
		t.Fatalf("stale timestamp must be rejected")
	}
	if apperrors.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("stale timestamp should be unauthorized, got %d", apperrors.StatusOf(err))
	}
	if verifierCalled {
		t.Fatalf("signature verifier must not run for stale timestamps")
	}
}

func TestGatekeeper_MissingHeadersNameTheHeader(t *testing.T) {
	store := memory.New()
	wf := seedWebhookWorkflow(t, store)
	gate := NewGatekeeper(store, store, nil)

	_, err := gate.Admit(context.Background(), wf.ID, "", stamp(time.Now()), nil)
	if err == nil || !strings.Contains(err.Error(), HeaderSignature) {
		t.Fatalf("missing signature error should name the header: %v", err)
	}

	sig := SignPayload(testSecret, "", nil)
	_, err = gate.Admit(context.Background(), wf.ID, sig, "", nil)
	if err == nil || !strings.Contains(err.Error(), HeaderTimestamp) {
		t.Fatalf("missing timestamp error should name the header: %v", err)
	}
}

func TestGatekeeper_BadSignature(t *testing.T) {
	store := memory.New()
	wf := seedWebhookWorkflow(t, store)
	gate := NewGatekeeper(store, store, nil)

	body := []byte(`{}`)
	ts := stamp(time.Now())
	sig := SignPayload("wrong-secret", ts, body)

	_, err := gate.Admit(context.Background(), wf.ID, sig, ts, body)
	if err == nil {
		t.Fatalf("bad signature must be rejected")
	}
	if apperrors.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("bad signature should be unauthorized, got %d", apperrors.StatusOf(err))
	}
	if !strings.Contains(err.Error(), "invalid webhook signature") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGatekeeper_IneligibleWorkflows(t *testing.T) {
	store := memory.New()
	gate := NewGatekeeper(store, store, nil)
	ts := stamp(time.Now())

	if _, err := gate.Admit(context.Background(), "missing", "sig", ts, nil); apperrors.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("unknown workflow should be not found, got %v", err)
	}

	manual := seedWorkflow(t, store, workflow.Workflow{IsActive: true, TriggerType: workflow.TriggerManual})
	if _, err := gate.Admit(context.Background(), manual.ID, "sig", ts, nil); apperrors.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("non-webhook workflow should be a bad request, got %v", err)
	}

	inactive := seedWorkflow(t, store, workflow.Workflow{
		IsActive:      false,
		TriggerType:   workflow.TriggerWebhook,
		TriggerConfig: workflow.TriggerConfig{Secret: testSecret},
	})
	if _, err := gate.Admit(context.Background(), inactive.ID, "sig", ts, nil); apperrors.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("inactive workflow should be a bad request, got %v", err)
	}
}

func TestGatekeeper_ReplayKeyIsScopedToDelivery(t *testing.T) {
	store := memory.New()
	wf := seedWebhookWorkflow(t, store)
	gate := NewGatekeeper(store, store, nil)

	first := []byte(`{"clientId":"c-1"}`)
	ts1 := stamp(time.Now())
	if _, err := gate.Admit(context.Background(), wf.ID, SignPayload(testSecret, ts1, first), ts1, first); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// A different body at a different timestamp is a distinct delivery.
	second := []byte(`{"clientId":"c-2"}`)
	ts2 := stamp(time.Now().Add(time.Second))
	if _, err := gate.Admit(context.Background(), wf.ID, SignPayload(testSecret, ts2, second), ts2, second); err != nil {
		t.Fatalf("distinct delivery should be accepted: %v", err)
	}
}
