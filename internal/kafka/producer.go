package kafka

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes outbox events. Writes are idempotent on the broker side
// and keyed by partition key so events for one payment or user stay ordered.
type Producer struct {
	client *kgo.Client
	logger *zerolog.Logger
}

func NewProducer(cfg *Config, logger *zerolog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(cfg.RequiredAcks),
		kgo.ProduceRequestTimeout(cfg.ProducerTimeout),
		kgo.RecordRetries(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// PublishWithHeaders blocks until the broker acknowledges the record.
func (p *Producer) PublishWithHeaders(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	record := &kgo.Record{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: mapToHeaders(headers),
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug().
		Str("topic", topic).
		Int32("partition", record.Partition).
		Int64("offset", record.Offset).
		Msg("Published record")
	return nil
}

func mapToHeaders(m map[string]string) []kgo.RecordHeader {
	if len(m) == 0 {
		return nil
	}
	headers := make([]kgo.RecordHeader, 0, len(m))
	for k, v := range m {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return headers
}

// Close flushes buffered records before closing the client.
func (p *Producer) Close() {
	p.logger.Info().Msg("closing Kafka producer")
	if err := p.client.Flush(context.Background()); err != nil {
		p.logger.Warn().Err(err).Msg("failed to flush Kafka producer")
	}
	p.client.Close()
}
