package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postpilot/internal/config"
	logx "postpilot/pkg/logx"
)

// Webhook POSTs each publish as JSON to an arbitrary HTTP endpoint, for
// platforms without a dedicated client.
type Webhook struct {
	url    string
	auth   string
	client *http.Client
	log    logx.Logger
}

func NewWebhook(cfg config.WebhookClientConfig, timeout time.Duration, log logx.Logger) (*Webhook, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: webhook url is empty", ErrUnavailable)
	}
	return &Webhook{
		url:    cfg.URL,
		auth:   cfg.AuthHeader,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

func (w *Webhook) Name() string { return "webhook" }

type webhookRequest struct {
	EntryID        string `json:"entry_id"`
	Content        string `json:"content"`
	ContentType    string `json:"content_type"`
	IdempotencyKey string `json:"idempotency_key"`
}

type webhookResponse struct {
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
}

func (w *Webhook) Publish(ctx context.Context, p Post) (Receipt, error) {
	body, err := json.Marshal(webhookRequest{
		EntryID:        p.EntryID,
		Content:        p.Content,
		ContentType:    p.ContentType,
		IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.IdempotencyKey)
	if w.auth != "" {
		req.Header.Set("Authorization", w.auth)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return Receipt{}, fmt.Errorf("webhook publish: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out webhookResponse
	_ = json.Unmarshal(raw, &out)
	id := out.ID
	if id == "" {
		// Endpoint returned no id; fall back to the idempotency key so the
		// entry still records something traceable.
		id = p.IdempotencyKey
	}
	if !w.log.IsZero() {
		w.log.Debug("webhook delivered",
			logx.String("entry", p.EntryID),
			logx.Int("status", resp.StatusCode),
		)
	}
	return Receipt{PlatformID: id, Response: strings.TrimSpace(string(raw))}, nil
}
