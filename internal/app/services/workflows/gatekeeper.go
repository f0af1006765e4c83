package workflows

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/metrics"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

const (
	// HeaderSignature carries the HMAC of the delivery.
	HeaderSignature = "X-Webhook-Signature"
	// HeaderTimestamp carries the delivery time in epoch milliseconds.
	HeaderTimestamp = "X-Webhook-Timestamp"

	// DefaultTimestampTolerance bounds the accepted clock skew.
	DefaultTimestampTolerance = 60 * time.Second
	// DefaultReplayTTL is how long a (signature, timestamp) pair is
	// remembered. It must cover the tolerance window on both sides.
	DefaultReplayTTL = 120 * time.Second
)

// SignatureVerifier checks a delivery's HMAC. Split out so the timestamp
// check can be shown to run first.
type SignatureVerifier func(secret, timestamp string, body []byte, signature string) bool

// Gatekeeper admits or rejects inbound webhook deliveries. Checks run in a
// fixed order: workflow lookup, trigger eligibility, header presence,
// timestamp freshness, signature, replay. The timestamp check precedes any
// signature computation so stale requests cost no crypto work.
type Gatekeeper struct {
	workflows storage.WorkflowStore
	replays   storage.ReplayStore
	tolerance time.Duration
	replayTTL time.Duration
	verify    SignatureVerifier
	now       func() time.Time
	log       *logger.Logger
}

// GatekeeperOption customizes a Gatekeeper.
type GatekeeperOption func(*Gatekeeper)

// WithTolerance overrides the accepted timestamp skew.
func WithTolerance(d time.Duration) GatekeeperOption {
	return func(g *Gatekeeper) { g.tolerance = d }
}

// WithReplayTTL overrides how long replay keys are remembered.
func WithReplayTTL(d time.Duration) GatekeeperOption {
	return func(g *Gatekeeper) { g.replayTTL = d }
}

// WithSignatureVerifier overrides the HMAC verifier.
func WithSignatureVerifier(v SignatureVerifier) GatekeeperOption {
	return func(g *Gatekeeper) { g.verify = v }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GatekeeperOption {
	return func(g *Gatekeeper) { g.now = now }
}

// NewGatekeeper builds a gatekeeper over the workflow and replay stores.
func NewGatekeeper(workflows storage.WorkflowStore, replays storage.ReplayStore, log *logger.Logger, opts ...GatekeeperOption) *Gatekeeper {
	if log == nil {
		log = logger.NewDefault("webhook-gatekeeper")
	}
	g := &Gatekeeper{
		workflows: workflows,
		replays:   replays,
		tolerance: DefaultTimestampTolerance,
		replayTTL: DefaultReplayTTL,
		verify:    VerifyHMAC,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit validates one delivery end to end and returns the target workflow.
// The returned error carries the HTTP status the transport layer should
// answer with.
func (g *Gatekeeper) Admit(ctx context.Context, workflowID, signature, timestamp string, body []byte) (workflow.Workflow, error) {
	wf, err := g.Verify(ctx, workflowID, signature, timestamp, body)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if err := g.Suppress(ctx, workflowID, signature, timestamp); err != nil {
		return workflow.Workflow{}, err
	}
	return wf, nil
}

// Verify runs every check except replay suppression. Callers that still need
// to reject the delivery on its content should do so between Verify and
// Suppress, so the rejected delivery's retry is not mistaken for a replay.
func (g *Gatekeeper) Verify(ctx context.Context, workflowID, signature, timestamp string, body []byte) (workflow.Workflow, error) {
	wf, err := g.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		g.reject("not_found")
		return workflow.Workflow{}, err
	}
	if wf.TriggerType != workflow.TriggerWebhook {
		g.reject("not_webhook")
		return workflow.Workflow{}, apperrors.BadRequest("workflow %s is not webhook-triggered", workflowID)
	}
	if !wf.IsActive {
		g.reject("inactive")
		return workflow.Workflow{}, apperrors.BadRequest("workflow %s is not active", workflowID)
	}
	if signature == "" {
		g.reject("missing_signature")
		return workflow.Workflow{}, apperrors.Unauthorized("missing %s header", HeaderSignature)
	}
	if timestamp == "" {
		g.reject("missing_timestamp")
		return workflow.Workflow{}, apperrors.Unauthorized("missing %s header", HeaderTimestamp)
	}

	millis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		g.reject("bad_timestamp")
		return workflow.Workflow{}, apperrors.Unauthorized("malformed %s header", HeaderTimestamp)
	}
	sent := time.UnixMilli(millis)
	if skew := g.now().Sub(sent); skew > g.tolerance || skew < -g.tolerance {
		g.reject("stale_timestamp")
		return workflow.Workflow{}, apperrors.Unauthorized("webhook timestamp outside tolerance")
	}

	if !g.verify(wf.TriggerConfig.Secret, timestamp, body, signature) {
		g.reject("bad_signature")
		return workflow.Workflow{}, apperrors.Unauthorized("invalid webhook signature")
	}
	return wf, nil
}

// Suppress records the delivery's replay key and rejects duplicates within
// the TTL atomically.
func (g *Gatekeeper) Suppress(ctx context.Context, workflowID, signature, timestamp string) error {
	key := fmt.Sprintf("%s:%s:%s", workflowID, signature, timestamp)
	seen, err := g.replays.CheckAndInsert(ctx, key, g.replayTTL)
	if err != nil {
		g.reject("replay_store_error")
		return apperrors.Internal("replay check failed: %v", err)
	}
	if seen {
		g.reject("replay")
		return apperrors.Conflict("replay detected")
	}
	metrics.RecordWebhookDelivery("accepted")
	return nil
}

func (g *Gatekeeper) reject(reason string) {
	metrics.RecordWebhookDelivery(reason)
}

// VerifyHMAC checks an HMAC-SHA256 over "timestamp.body". The signature may
// be hex or base64 encoded; comparison is constant time.
func VerifyHMAC(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		if provided, err = base64.StdEncoding.DecodeString(signature); err != nil {
			return false
		}
	}
	return hmac.Equal(expected, provided)
}

// SignPayload computes the hex HMAC a sender should attach. Exported for
// outbound tooling and tests.
func SignPayload(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
