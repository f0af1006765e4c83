package workflows

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultMaxRetries     = 3
	defaultRetryDelay     = 5 * time.Second
	maxResponseSnippet    = 512
)

// WebhookCaller performs outbound HTTP calls for CALL_WEBHOOK actions.
type WebhookCaller struct {
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
	log    *logger.Logger
}

// NewWebhookCaller builds a caller sharing one transport across actions.
// Per-attempt timeouts come from the action config, not the client.
func NewWebhookCaller(log *logger.Logger) *WebhookCaller {
	if log == nil {
		log = logger.NewDefault("webhook-caller")
	}
	return &WebhookCaller{
		client: &http.Client{},
		sleep:  sleepCtx,
		log:    log,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func webhookMethod(cfg workflow.ActionConfig) string {
	if cfg.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(cfg.Method)
}

// Call renders the body template against the evaluation context and issues
// the request. A non-2xx status counts as a failed attempt. When
// RetryOnFailure is set, failed attempts are repeated up to MaxRetries total
// attempts with RetryDelaySeconds between them; exhaustion reports failure
// without an extra attempt.
func (c *WebhookCaller) Call(ctx context.Context, cfg workflow.ActionConfig, eval EvalContext) ActionResult {
	if cfg.URL == "" {
		return failure(fmt.Errorf("call_webhook: url is required"))
	}
	attempts := 1
	if cfg.RetryOnFailure {
		attempts = cfg.MaxRetries
		if attempts <= 0 {
			attempts = defaultMaxRetries
		}
	}
	delay := defaultRetryDelay
	if cfg.RetryDelaySeconds > 0 {
		delay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	}
	timeout := defaultWebhookTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	body := eval.Render(cfg.BodyTemplate)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, snippet, err := c.attempt(ctx, cfg, body, timeout, eval)
		if err == nil {
			return success(fmt.Sprintf("webhook %s %s returned %d: %s", webhookMethod(cfg), cfg.URL, status, snippet))
		}
		lastErr = err
		c.log.WithField("url", cfg.URL).
			WithField("attempt", attempt).
			WithError(err).
			Warn("Webhook call attempt failed")
		if attempt < attempts {
			if serr := c.sleep(ctx, delay); serr != nil {
				return failure(fmt.Errorf("call_webhook: %w", serr))
			}
		}
	}
	return failure(fmt.Errorf("call_webhook: %d attempt(s) failed: %w", attempts, lastErr))
}

func (c *WebhookCaller) attempt(ctx context.Context, cfg workflow.ActionConfig, body string, timeout time.Duration, eval EvalContext) (int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, webhookMethod(cfg), cfg.URL, reader)
	if err != nil {
		return 0, "", err
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range cfg.Headers {
		req.Header.Set(name, eval.Render(value))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, strings.TrimSpace(string(snippet)), nil
}
