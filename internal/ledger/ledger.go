// Package ledger applies balance movements to wallets.
//
// Every mutation goes through ApplyDelta so availableBalance is always
// recomputed from balance and escrowBalance, and no movement may leave a
// wallet with a negative balance, escrow balance or available balance.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
)

var ErrNegativeBalance = apperror.New(apperror.KindInvalidState, "wallet balance cannot go negative")

// Delta is a set of signed adjustments to a wallet.
type Delta struct {
	Balance  int64
	Escrow   int64
	Earnings int64
	Spent    int64
}

func (d Delta) IsZero() bool {
	return d == Delta{}
}

// ApplyDelta returns w with d applied. w itself is never modified.
func ApplyDelta(w model.Wallet, d Delta) (model.Wallet, error) {
	next := w
	next.Balance += d.Balance
	next.EscrowBalance += d.Escrow
	next.TotalEarnings += d.Earnings
	next.TotalSpent += d.Spent
	next.RecomputeAvailable()

	if next.Balance < 0 || next.EscrowBalance < 0 || next.AvailableBalance < 0 {
		return w, ErrNegativeBalance.WithCause(fmt.Errorf(
			"balance=%d escrow=%d available=%d", next.Balance, next.EscrowBalance, next.AvailableBalance))
	}
	return next, nil
}

type WalletStore interface {
	GetOrCreateForUpdate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error)
	Save(ctx context.Context, q database.Querier, w *model.Wallet) error
}

// Book is the wallet ledger engine: it locks a wallet row, applies a delta
// and persists the result within the caller's transaction.
type Book struct {
	wallets WalletStore
}

func NewBook(wallets WalletStore) *Book {
	return &Book{wallets: wallets}
}

// Posting is the wallet state on either side of an applied delta.
type Posting struct {
	Before model.Wallet
	After  model.Wallet
}

func (b *Book) Apply(ctx context.Context, q database.Querier, userID uuid.UUID, d Delta) (*Posting, error) {
	logger := middleware.GetLogger(ctx)

	w, err := b.wallets.GetOrCreateForUpdate(ctx, q, userID)
	if err != nil {
		return nil, err
	}

	next, err := ApplyDelta(*w, d)
	if err != nil {
		logWalletDefect(logger, w, d, err)
		return nil, err
	}

	if err := b.wallets.Save(ctx, q, &next); err != nil {
		return nil, err
	}

	logger.Debug().
		Str("wallet_user_id", userID.String()).
		Int64("balance", next.Balance).
		Int64("escrow_balance", next.EscrowBalance).
		Int64("available_balance", next.AvailableBalance).
		Msg("Wallet delta applied")

	return &Posting{Before: *w, After: next}, nil
}

func logWalletDefect(logger *zerolog.Logger, w *model.Wallet, d Delta, err error) {
	logger.Error().Err(err).
		Str("wallet_id", w.ID.String()).
		Str("wallet_user_id", w.UserID.String()).
		Int64("balance", w.Balance).
		Int64("escrow_balance", w.EscrowBalance).
		Int64("balance_delta", d.Balance).
		Int64("escrow_delta", d.Escrow).
		Msg("Rejected wallet mutation that would leave a negative balance")
}
