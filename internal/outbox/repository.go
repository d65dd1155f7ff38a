package outbox

import (
	"context"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type OutboxRepository interface {
	// FetchPending locks up to limit pending events, skipping rows other
	// relays already hold.
	FetchPending(ctx context.Context, q database.Querier, limit int) ([]model.TransactionOutbox, error)
	MarkProcessed(ctx context.Context, q database.Querier, ids []int64) error
	// RecordFailure bumps the retry count and parks the event as failed once
	// maxRetries is reached.
	RecordFailure(ctx context.Context, q database.Querier, id int64, lastErr string, maxRetries int) error
}

type OutboxRepo struct{}

func NewOutboxRepository() *OutboxRepo {
	return &OutboxRepo{}
}

func (r *OutboxRepo) FetchPending(ctx context.Context, q database.Querier, limit int) ([]model.TransactionOutbox, error) {
	rows, err := q.Query(ctx, `
		SELECT id, event_type, payload, partition_key, correlation_id, retry_count
		FROM transaction_outbox
		WHERE status = 'pending'
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, database.Wrap(err, "failed to fetch outbox events")
	}
	defer rows.Close()

	var events []model.TransactionOutbox
	for rows.Next() {
		var e model.TransactionOutbox
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.PartitionKey, &e.CorrelationID, &e.RetryCount); err != nil {
			return nil, database.Wrap(err, "failed to scan outbox event")
		}
		events = append(events, e)
	}
	return events, database.Wrap(rows.Err(), "failed to iterate outbox events")
}

func (r *OutboxRepo) MarkProcessed(ctx context.Context, q database.Querier, ids []int64) error {
	_, err := q.Exec(ctx, `
		UPDATE transaction_outbox
		SET status = 'processed', updated_at = NOW()
		WHERE id = ANY($1)
	`, ids)
	return database.Wrap(err, "failed to mark outbox events processed")
}

func (r *OutboxRepo) RecordFailure(ctx context.Context, q database.Querier, id int64, lastErr string, maxRetries int) error {
	_, err := q.Exec(ctx, `
		UPDATE transaction_outbox
		SET retry_count = retry_count + 1,
			last_error = $2,
			status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
	`, id, lastErr, maxRetries)
	return database.Wrap(err, "failed to record outbox failure")
}
