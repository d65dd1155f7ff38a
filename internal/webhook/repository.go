package webhook

import (
	"context"

	"github.com/Niiaks/Escrow/internal/database"
)

const (
	StatusReceived  = "received"
	StatusError     = "error"
	StatusProcessed = "processed"
)

type WebhookRepository interface {
	// Record stores the event on first sight and returns its current status.
	Record(ctx context.Context, q database.Querier, eventID string, payload []byte) (string, error)
	SetStatus(ctx context.Context, q database.Querier, eventID, status string) error
}

type WebhookRepo struct{}

func NewWebhookRepository() *WebhookRepo {
	return &WebhookRepo{}
}

func (r *WebhookRepo) Record(ctx context.Context, q database.Querier, eventID string, payload []byte) (string, error) {
	var status string
	err := q.QueryRow(ctx, `
		INSERT INTO psp_webhooks (event_id, payload)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET updated_at = NOW()
		RETURNING status
	`, eventID, payload).Scan(&status)
	return status, database.Wrap(err, "failed to record webhook")
}

func (r *WebhookRepo) SetStatus(ctx context.Context, q database.Querier, eventID, status string) error {
	_, err := q.Exec(ctx, `
		UPDATE psp_webhooks SET status = $2, updated_at = NOW()
		WHERE event_id = $1
	`, eventID, status)
	return database.Wrap(err, "failed to update webhook status")
}
