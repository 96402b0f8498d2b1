package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Talej/lnurl-cypherapp/logger"
)

// Notifier delivers JSON notifications to operator-supplied webhook URLs.
// Delivery is at-least-once: the engines only flip their calledback flags
// when Post returns nil, so a failure here is retried on the next
// reconciliation pass. Receivers must be idempotent per record+event.
type Notifier interface {
	Post(ctx context.Context, url string, payload interface{}) error
}

type httpNotifier struct {
	httpClient *http.Client
}

func NewNotifier(timeout time.Duration) *httpNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpNotifier{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (n *httpNotifier) Post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		logger.Logger.Warn().Err(err).Str("url", url).Msg("Webhook delivery failed")
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		logger.Logger.Warn().
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Webhook receiver returned non-success status")
		return fmt.Errorf("webhook receiver returned status %d", resp.StatusCode)
	}

	logger.Logger.Debug().Str("url", url).Msg("Webhook delivered")
	return nil
}
