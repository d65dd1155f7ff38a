package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the decoded form of a fetched record handed to a Handler.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
}

// Handler processes a single message. A non-nil error schedules a retry.
type Handler func(ctx context.Context, msg *Message) error

// DeadLetterPublisher receives messages whose handler kept failing.
type DeadLetterPublisher interface {
	PublishWithHeaders(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type Consumer struct {
	client     *kgo.Client
	cfg        *Config
	topic      string
	group      string
	deadLetter DeadLetterPublisher
	logger     *zerolog.Logger
}

func NewConsumer(cfg *Config, group, topic string, logger *zerolog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.SessionTimeout(cfg.SessionTimeout),
		kgo.HeartbeatInterval(cfg.HeartbeatInterval),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", topic, err)
	}

	return &Consumer{
		client: client,
		cfg:    cfg,
		topic:  topic,
		group:  group,
		logger: logger,
	}, nil
}

// WithDeadLetter forwards messages that exhaust their retries to TopicDLQ.
func (c *Consumer) WithDeadLetter(p DeadLetterPublisher) *Consumer {
	c.deadLetter = p
	return c
}

// Run polls the group's topic and hands each record to handler until ctx is
// cancelled. Offsets are committed after every polled batch.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	log := c.logger.With().Str("topic", c.topic).Str("group", c.group).Logger()
	log.Info().Msg("consumer started")

	for {
		fetches := c.client.PollRecords(ctx, c.cfg.MaxPollRecords)
		if ctx.Err() != nil {
			return nil
		}

		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				return nil
			}
			log.Warn().Err(fe.Err).Int32("partition", fe.Partition).Msg("fetch error")
		}

		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, handler, toMessage(record))
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("failed to commit offsets")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, msg *Message) {
	err := c.processWithRetry(ctx, handler, msg)
	if err == nil || ctx.Err() != nil {
		return
	}

	c.logger.Error().Err(err).
		Str("topic", msg.Topic).
		Int32("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("message processing failed after retries")

	if c.deadLetter == nil {
		return
	}
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["original_topic"] = msg.Topic
	headers["error"] = err.Error()
	if dlqErr := c.deadLetter.PublishWithHeaders(ctx, TopicDLQ, msg.Key, msg.Value, headers); dlqErr != nil {
		c.logger.Error().Err(dlqErr).Int64("offset", msg.Offset).Msg("failed to dead-letter message")
	}
}

func (c *Consumer) processWithRetry(ctx context.Context, handler Handler, msg *Message) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.backoff(attempt)):
			}
		}

		if lastErr = handler(ctx, msg); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Consumer) Close() {
	c.client.Close()
}

func toMessage(record *kgo.Record) *Message {
	return &Message{
		Topic:     record.Topic,
		Key:       record.Key,
		Value:     record.Value,
		Partition: record.Partition,
		Offset:    record.Offset,
		Timestamp: record.Timestamp,
		Headers:   headersToMap(record.Headers),
	}
}

func headersToMap(headers []kgo.RecordHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Key] = string(h.Value)
	}
	return m
}
