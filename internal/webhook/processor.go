package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/payment"
	"github.com/Niiaks/Escrow/pkg/types"
)

type Verifier interface {
	VerifyPayment(ctx context.Context, reference string) (*payment.VerifyResult, error)
}

// Processor consumes webhook.received events. Paystack's payload is only a
// hint: the charge is verified again before any money moves.
type Processor struct {
	db       QuerierProvider
	repo     WebhookRepository
	verifier Verifier
	logger   *zerolog.Logger
}

func NewProcessor(db QuerierProvider, repo WebhookRepository, verifier Verifier, logger *zerolog.Logger) *Processor {
	return &Processor{db: db, repo: repo, verifier: verifier, logger: logger}
}

func (p *Processor) Handle(ctx context.Context, msg *kafka.Message) error {
	var event types.PaystackWebhookEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		p.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Dropping malformed webhook message")
		return nil
	}

	reference := event.Data.Reference
	log := p.logger.With().
		Str("event", event.Event).
		Str("reference", reference).
		Str("correlation_id", msg.Headers["correlation_id"]).
		Logger()
	ctx = middleware.WithRequestID(log.WithContext(ctx), msg.Headers["correlation_id"])

	eventID := webhookEventID(&event)
	status, err := p.repo.Record(ctx, p.db.Querier(), eventID, msg.Value)
	if err != nil {
		return err
	}
	if status == StatusProcessed {
		log.Info().Msg("Webhook already processed, skipping")
		return nil
	}

	res, err := p.verifier.VerifyPayment(ctx, reference)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			log.Warn().Err(err).Msg("Webhook references an unknown payment")
			return p.repo.SetStatus(ctx, p.db.Querier(), eventID, StatusError)
		}
		if statusErr := p.repo.SetStatus(ctx, p.db.Querier(), eventID, StatusError); statusErr != nil {
			log.Error().Err(statusErr).Msg("Failed to flag webhook")
		}
		return err
	}

	log.Info().
		Str("payment_id", res.Payment.ID.String()).
		Str("status", string(res.Payment.Status)).
		Bool("already_processed", res.AlreadyProcessed).
		Msg("Webhook settled")
	return p.repo.SetStatus(ctx, p.db.Querier(), eventID, StatusProcessed)
}

// webhookEventID keys a delivery by event name and Paystack's id so a retried
// delivery maps to the same row.
func webhookEventID(e *types.PaystackWebhookEvent) string {
	if e.Data.ID != 0 {
		return fmt.Sprintf("%s:%d", e.Event, e.Data.ID)
	}
	return e.Event + ":" + e.Data.Reference
}
