package kafka

import (
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic name contains all kafka topics used in the application
const (
	TopicPaymentEvents    = "escrow.payment.events"
	TopicWithdrawalEvents = "escrow.withdrawal.events"
	TopicWebhookPending   = "escrow.webhook.pending"

	TopicDLQ = "escrow.dlq"
)

// Event types for outbox
const (
	EventPaymentInitialized = "payment.initialized"
	EventPaymentVerified    = "payment.verified"
	EventPaymentFailed      = "payment.failed"
	EventPaymentReleased    = "payment.released"
	EventPaymentRefunded    = "payment.refunded"
	EventJobPaymentVerified = "job.payment_verified"

	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalFailed    = "withdrawal.failed"
	EventWithdrawalCancelled = "withdrawal.cancelled"

	EventWebhookReceived = "webhook.received"
)

// ConsumerGroup names for different Kafka consumers
const (
	GroupWebhookWorker   = "escrow.webhook.worker"
	GroupReconcileWorker = "escrow.reconcile.worker"
)

// TopicForEvent routes an outbox event type to its topic. Unknown types go
// to the dead letter topic.
func TopicForEvent(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "payment."), strings.HasPrefix(eventType, "job."):
		return TopicPaymentEvents
	case strings.HasPrefix(eventType, "withdrawal."):
		return TopicWithdrawalEvents
	case eventType == EventWebhookReceived:
		return TopicWebhookPending
	default:
		return TopicDLQ
	}
}

const maxBackoff = 30 * time.Second

type Config struct {
	Brokers           []string
	ProducerTimeout   time.Duration
	RequiredAcks      kgo.Acks
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxPollRecords    int
	MaxRetries        int
	RetryBackoff      time.Duration
}

func DefaultConfig(brokers []string) *Config {
	return &Config{
		Brokers:           brokers,
		ProducerTimeout:   10 * time.Second,
		RequiredAcks:      kgo.AllISRAcks(),
		SessionTimeout:    10 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		MaxPollRecords:    100,
		MaxRetries:        5,
		RetryBackoff:      1 * time.Second,
	}
}

// backoff doubles RetryBackoff for each attempt after the first, capped at
// maxBackoff.
func (c *Config) backoff(attempt int) time.Duration {
	if attempt < 1 || c.RetryBackoff <= 0 {
		return 0
	}
	d := c.RetryBackoff << (attempt - 1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
