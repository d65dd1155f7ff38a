package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/kafka"
)

type Publisher interface {
	PublishWithHeaders(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(q database.Querier) error) error
}

type Relay struct {
	db         TxRunner
	repo       OutboxRepository
	publisher  Publisher
	logger     *zerolog.Logger
	batchSize  int
	interval   time.Duration
	maxRetries int
}

func NewRelay(db TxRunner, repo OutboxRepository, publisher Publisher, logger *zerolog.Logger) *Relay {
	return &Relay{
		db:         db,
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		batchSize:  100,
		interval:   time.Second,
		maxRetries: 10,
	}
}

// Configure overrides the default batch size, poll interval and retry budget.
// Non-positive values keep the defaults.
func (r *Relay) Configure(cfg config.OutboxConfig) *Relay {
	if cfg.BatchSize > 0 {
		r.batchSize = cfg.BatchSize
	}
	if cfg.PollInterval > 0 {
		r.interval = cfg.PollInterval
	}
	if cfg.MaxRetries > 0 {
		r.maxRetries = cfg.MaxRetries
	}
	return r
}

func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("Starting Outbox Relay")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Stopping Outbox Relay")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error().Err(err).Msg("Failed to process batch")
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many
// were delivered. Events that fail to publish stay pending until they run
// out of retries.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var published int
	err := r.db.WithTx(ctx, func(q database.Querier) error {
		events, err := r.repo.FetchPending(ctx, q, r.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		r.logger.Debug().Int("count", len(events)).Msg("Fetched outbox events")

		var processedIDs []int64
		for _, e := range events {
			topic := kafka.TopicForEvent(e.EventType)
			headers := map[string]string{
				"event_type":     e.EventType,
				"correlation_id": e.CorrelationID,
			}

			if err := r.publisher.PublishWithHeaders(ctx, topic, []byte(e.PartitionKey), e.Payload, headers); err != nil {
				r.logger.Error().Err(err).
					Int64("event_id", e.ID).
					Str("event_type", e.EventType).
					Str("topic", topic).
					Msg("Failed to publish event to Kafka")
				if err := r.repo.RecordFailure(ctx, q, e.ID, err.Error(), r.maxRetries); err != nil {
					return err
				}
				continue
			}
			processedIDs = append(processedIDs, e.ID)
		}

		published = len(processedIDs)
		if published == 0 {
			return nil
		}
		return r.repo.MarkProcessed(ctx, q, processedIDs)
	})
	return published, err
}
