package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/model"
)

type WalletRepository interface {
	GetByUserID(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error)
	GetOrCreate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error)
	// GetOrCreateForUpdate locks the wallet row until the transaction ends.
	GetOrCreateForUpdate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error)
	// Save persists balances. available_balance is always written as
	// balance - escrow_balance.
	Save(ctx context.Context, q database.Querier, w *model.Wallet) error
	UpdateBankDetails(ctx context.Context, q database.Querier, userID uuid.UUID, details model.BankDetails) error
}

type WalletRepo struct{}

func NewWalletRepository() *WalletRepo {
	return &WalletRepo{}
}

const walletColumns = `id, user_id, balance, escrow_balance, available_balance, total_earnings,
	total_spent, currency, bank_details, created_at, updated_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.EscrowBalance, &w.AvailableBalance, &w.TotalEarnings,
		&w.TotalSpent, &w.Currency, &w.BankDetails, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (wr *WalletRepo) GetByUserID(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error) {
	w, err := scanWallet(q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	return w, database.Wrap(err, "failed to get wallet")
}

func (wr *WalletRepo) ensure(ctx context.Context, q database.Querier, userID uuid.UUID) error {
	_, err := q.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	return database.Wrap(err, "failed to create wallet")
}

func (wr *WalletRepo) GetOrCreate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error) {
	if err := wr.ensure(ctx, q, userID); err != nil {
		return nil, err
	}
	return wr.GetByUserID(ctx, q, userID)
}

func (wr *WalletRepo) GetOrCreateForUpdate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error) {
	if err := wr.ensure(ctx, q, userID); err != nil {
		return nil, err
	}
	w, err := scanWallet(q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	return w, database.Wrap(err, "failed to lock wallet")
}

func (wr *WalletRepo) Save(ctx context.Context, q database.Querier, w *model.Wallet) error {
	w.RecomputeAvailable()
	err := q.QueryRow(ctx, `
		UPDATE wallets
		SET balance = $2,
			escrow_balance = $3,
			available_balance = $4,
			total_earnings = $5,
			total_spent = $6,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, w.ID, w.Balance, w.EscrowBalance, w.AvailableBalance, w.TotalEarnings, w.TotalSpent).Scan(&w.UpdatedAt)
	return database.Wrap(err, "failed to save wallet")
}

func (wr *WalletRepo) UpdateBankDetails(ctx context.Context, q database.Querier, userID uuid.UUID, details model.BankDetails) error {
	if err := wr.ensure(ctx, q, userID); err != nil {
		return err
	}
	_, err := q.Exec(ctx, `UPDATE wallets SET bank_details = $2, updated_at = NOW() WHERE user_id = $1`, userID, details)
	return database.Wrap(err, "failed to update bank details")
}
