package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/use-agent/neardup/config"
	"github.com/use-agent/neardup/metrics"
)

// SignatureHeader carries the HMAC-SHA256 of the body: "sha256=<hex>".
const SignatureHeader = "X-Neardup-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"` // "dedupe.completed" or "dedupe.failed"
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// StatusError reports a non-2xx/3xx response from the endpoint.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: endpoint returned status %d", e.StatusCode)
}

// retryable reports whether another attempt could succeed.
func (e *StatusError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the valid signature of body.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Deliverer sends events with retries.
type Deliverer struct {
	client        *http.Client
	defaultSecret string
	maxRetries    uint64
	initial       time.Duration
	maxInterval   time.Duration
}

// New creates a Deliverer from cfg.
func New(cfg config.WebhookConfig) *Deliverer {
	return &Deliverer{
		client:        &http.Client{Timeout: cfg.Timeout},
		defaultSecret: cfg.Secret,
		maxRetries:    uint64(cfg.MaxRetries),
		initial:       time.Second,
		maxInterval:   30 * time.Second,
	}
}

// Deliver sends a webhook event once.
// The request body is signed with HMAC-SHA256 if the secret (or the
// configured default) is non-empty.
func (d *Deliverer) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Neardup-Webhook/1.0")

	if secret == "" {
		secret = d.defaultSecret
	}
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// DeliverWithRetry sends an event, retrying transport errors and retryable
// statuses with exponential backoff until the retry budget or ctx runs out.
func (d *Deliverer) DeliverWithRetry(ctx context.Context, url, secret string, event *Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initial
	bo.MaxInterval = d.maxInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := d.Deliver(ctx, url, secret, event)
		if se, ok := err.(*StatusError); ok && !se.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, d.maxRetries), ctx), func(err error, wait time.Duration) {
		metrics.WebhookDelivery("retry")
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	})
	if err != nil {
		metrics.WebhookDelivery("failed")
		slog.Error("webhook delivery gave up",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempts", attempt,
			"error", err,
		)
		return err
	}

	metrics.WebhookDelivery("delivered")
	slog.Info("webhook delivered",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
		"attempt", attempt,
	)
	return nil
}
