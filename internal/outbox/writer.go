package outbox

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
)

// Writer records domain events in transaction_outbox. Events are written with
// the caller's querier so they commit or roll back with the change that
// produced them.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Emit(ctx context.Context, q database.Querier, evt model.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s payload", evt.Type)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO transaction_outbox (event_type, payload, partition_key, correlation_id, status)
		VALUES ($1, $2, $3, $4, 'pending')`,
		evt.Type, payload, evt.PartitionKey, middleware.GetRequestIDFromContext(ctx))
	if err != nil {
		return database.Wrap(err, "failed to insert outbox event")
	}

	middleware.GetLogger(ctx).Debug().
		Str("event_type", evt.Type).
		Str("partition_key", evt.PartitionKey).
		Msg("Outbox event recorded")
	return nil
}
