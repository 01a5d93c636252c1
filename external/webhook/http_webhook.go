package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/foxseedlab/voicememo/internal/webhook"
	"github.com/googleapis/gax-go/v2"
)

const (
	webhookRequestTimeout = 15 * time.Second
	webhookMaxAttempts    = 3

	HeaderSessionID     = "X-Voicememo-Session-Id"
	HeaderSchemaVersion = "X-Voicememo-Schema-Version"
)

// HTTPSender posts the session-closed summary as JSON. Transport errors,
// 429 and 5xx responses are retried with jittered backoff; other statuses
// fail immediately.
type HTTPSender struct {
	webhookURL  string
	client      *http.Client
	maxAttempts int
	backoff     gax.Backoff
}

func NewHTTPSender(webhookURL string) webhook.Sender {
	return newHTTPSender(webhookURL, gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	})
}

func newHTTPSender(webhookURL string, backoff gax.Backoff) *HTTPSender {
	return &HTTPSender{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: webhookRequestTimeout},
		maxAttempts: webhookMaxAttempts,
		backoff:     backoff,
	}
}

func (s *HTTPSender) SendSessionClosed(ctx context.Context, payload webhook.SessionClosedPayload) error {
	if s.webhookURL == "" {
		return nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal session-closed payload: %w", err)
	}

	bo := s.backoff
	for attempt := 1; ; attempt++ {
		retryable, err := s.post(ctx, payload, b)
		if err == nil {
			return nil
		}
		if !retryable || attempt >= s.maxAttempts {
			return fmt.Errorf("session %s webhook after %d attempt(s): %w", payload.SessionID, attempt, err)
		}
		if serr := gax.Sleep(ctx, bo.Pause()); serr != nil {
			return fmt.Errorf("session %s webhook: %w: %w", payload.SessionID, serr, err)
		}
	}
}

// post makes one delivery attempt and reports whether a failure may be retried.
func (s *HTTPSender) post(ctx context.Context, payload webhook.SessionClosedPayload, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSessionID, payload.SessionID)
	req.Header.Set(HeaderSchemaVersion, strconv.Itoa(payload.SchemaVersion))
	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return isRetryableStatus(resp.StatusCode), fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return false, nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
