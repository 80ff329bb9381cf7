package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"payflow/internal/config"
	"payflow/internal/core/domain"
	"payflow/internal/observability"
)

// Store is the slice of the Entity Store the dispatcher needs.
type Store interface {
	GetMerchant(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	InsertWebhookLog(ctx context.Context, l *domain.WebhookLog) error
}

// Envelope is the JSON document POSTed to merchants.
type Envelope struct {
	Event     domain.EventType `json:"event"`
	CreatedAt string           `json:"created_at"`
	Payload   map[string]any   `json:"payload"`
}

// Dispatcher delivers signed events to merchant callback URLs. Delivery is a single attempt;
// failures end up in the webhook log and never reach the caller.
type Dispatcher struct {
	store  Store
	cfg    config.WebhookConfig
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(store Store, cfg config.WebhookConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store: store,
		cfg:   cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: observability.NewTracingTransport(nil),
		},
		logger: logger,
	}
}

// Notify delivers e in the background. The request context is detached so a finished
// HTTP response does not cancel delivery.
func (d *Dispatcher) Notify(ctx context.Context, e domain.Event) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("webhook delivery panicked", "event", e.Type, "panic", r)
			}
		}()
		d.Deliver(ctx, e)
	}()
}

// Wait blocks until every background delivery has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver performs one synchronous attempt and returns the log row it wrote, or nil when the
// merchant has no callback URL.
func (d *Dispatcher) Deliver(ctx context.Context, e domain.Event) *domain.WebhookLog {
	m, err := d.store.GetMerchant(ctx, e.MerchantID)
	if err != nil {
		d.logger.Warn("webhook skipped: merchant lookup failed", "merchant_id", e.MerchantID, "error", err)
		return nil
	}
	if m.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(Envelope{
		Event:     e.Type,
		CreatedAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
		Payload:   e.Data,
	})
	if err != nil {
		d.logger.Error("webhook payload encoding failed", "event", e.Type, "error", err)
		return nil
	}

	secret := m.WebhookSecret
	if secret == "" {
		secret = d.cfg.DefaultSecret
	}

	entry := &domain.WebhookLog{
		ID:         uuid.New(),
		MerchantID: m.ID,
		EventType:  e.Type,
		Payload:    string(body),
		TargetURL:  m.WebhookURL,
		CreatedAt:  time.Now().UTC(),
	}

	status, respBody, err := d.post(ctx, m.WebhookURL, e.Type, body, Sign(secret, body))
	if err != nil {
		entry.ResponseBody = d.truncate(err.Error())
		d.logger.Warn("webhook delivery failed", "event", e.Type, "url", m.WebhookURL, "error", err)
	} else {
		entry.ResponseStatus = &status
		entry.ResponseBody = d.truncate(respBody)
		entry.Success = status >= 200 && status < 300
		d.logger.Info("webhook delivered", "event", e.Type, "url", m.WebhookURL, "status", status)
	}
	observability.RecordWebhookDelivery(string(e.Type), entry.Success)

	if err := d.store.InsertWebhookLog(ctx, entry); err != nil {
		d.logger.Error("failed to record webhook log", "event", e.Type, "error", err)
	}
	return entry
}

func (d *Dispatcher) post(ctx context.Context, url string, event domain.EventType, body []byte, signature string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(EventHeader, string(event))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	limit := int64(d.cfg.MaxResponseLength)
	if limit <= 0 {
		limit = 500
	}
	// Read a little more than we keep so multi-byte runes can be cut cleanly.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit*4))
	if err != nil {
		// The status already arrived, so the attempt still counts; the note leads so
		// truncation keeps it.
		d.logger.Warn("webhook response read failed", "event", event, "url", url, "status", resp.StatusCode, "error", err)
		return resp.StatusCode, fmt.Sprintf("response body read failed: %v; partial body: %s", err, raw), nil
	}
	return resp.StatusCode, string(raw), nil
}

// truncate keeps at most MaxResponseLength characters.
func (d *Dispatcher) truncate(s string) string {
	limit := d.cfg.MaxResponseLength
	if limit <= 0 {
		limit = 500
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
