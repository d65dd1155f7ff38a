package wallet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/pkg/types"
)

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Reconciler rechecks the payee's escrow balance after every escrow movement
// published on the payment topic.
type Reconciler struct {
	wallets *WalletService
	locker  Locker
	lockTTL time.Duration
	logger  *zerolog.Logger
}

func NewReconciler(wallets *WalletService, locker Locker, lockTTL time.Duration, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{wallets: wallets, locker: locker, lockTTL: lockTTL, logger: logger}
}

func (r *Reconciler) Handle(ctx context.Context, msg *kafka.Message) error {
	switch msg.Headers["event_type"] {
	case kafka.EventPaymentVerified, kafka.EventPaymentReleased, kafka.EventPaymentRefunded:
	default:
		return nil
	}

	var event types.PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		r.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Dropping malformed payment event")
		return nil
	}
	if event.PayeeID == uuid.Nil {
		return nil
	}

	log := r.logger.With().
		Str("payment_id", event.PaymentID.String()).
		Str("wallet_user_id", event.PayeeID.String()).
		Logger()
	ctx = middleware.WithRequestID(log.WithContext(ctx), msg.Headers["correlation_id"])

	var drift int64
	err := r.locker.WithLock(ctx, "wallet:"+event.PayeeID.String(), r.lockTTL, func() error {
		var err error
		drift, err = r.wallets.Reconcile(ctx, event.PayeeID)
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to reconcile wallet")
		return err
	}

	if drift != 0 {
		log.Warn().Int64("drift", drift).Msg("Wallet escrow corrected")
	}
	return nil
}
