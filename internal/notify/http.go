package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC of the request body when a secret is set.
const SignatureHeader = "X-Console-Signature"

// HTTPDispatcher posts notices to {base}/notify.
type HTTPDispatcher struct {
	url        string
	secret     string
	httpClient *http.Client
	delays     []time.Duration
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewHTTPDispatcher creates an HTTPDispatcher. secret may be empty.
func NewHTTPDispatcher(base, secret string, logger *zap.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		url:        strings.TrimRight(base, "/") + "/notify",
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Attempts 2 and 3 wait 1s and 5s.
		delays: []time.Duration{0, time.Second, 5 * time.Second},
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *HTTPDispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// SetRetryDelays replaces the wait before each attempt; its length is the
// number of attempts.
func (d *HTTPDispatcher) SetRetryDelays(delays []time.Duration) {
	if len(delays) > 0 {
		d.delays = delays
	}
}

// Payload builds the request body: {type, <kind>Data: {...}, reason?}.
func Payload(n Notice) map[string]any {
	data := make(map[string]string, len(n.Data)+3)
	for k, v := range n.Data {
		data[k] = v
	}
	data["id"] = n.EntityID
	data["name"] = n.Recipient.Name
	data["email"] = n.Recipient.Email

	body := map[string]any{"type": string(n.Event)}
	body[string(n.Kind)+"Data"] = data
	if n.Reason != "" {
		body["reason"] = n.Reason
	}
	if !n.Timestamp.IsZero() {
		body["timestamp"] = n.Timestamp.UTC().Format(time.RFC3339)
	}
	return body
}

// Dispatch delivers n with retries and returns the last error if every
// attempt failed.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, n Notice) error {
	body, err := json.Marshal(Payload(n))
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	var signature string
	if d.secret != "" {
		signature = Sign(body, d.secret)
	}

	var lastErr error
	for attempt, delay := range d.delays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		lastErr = d.post(ctx, body, signature)
		if d.onMetrics != nil {
			d.onMetrics(n.Event, lastErr == nil)
		}
		if lastErr == nil {
			return nil
		}
		d.logger.Warn("notify: delivery failed",
			zap.String("event", string(n.Event)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return lastErr
}

func (d *HTTPDispatcher) post(ctx context.Context, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Ping checks that the notification endpoint's host answers.
func (d *HTTPDispatcher) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.url, nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the HMAC-SHA256 signature sent in SignatureHeader.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
