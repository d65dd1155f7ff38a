package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/ledger"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/pkg/constants"
	"github.com/Niiaks/Escrow/pkg/types"
)

const banksCacheTTL = 24 * time.Hour

var (
	ErrWalletNotFound  = apperror.New(apperror.KindNotFound, "wallet not found")
	ErrAccountMismatch = apperror.Validation("account name does not match the resolved bank account")
)

type HeldPayments interface {
	SumHeldForPayee(ctx context.Context, q database.Querier, payeeID uuid.UUID) (int64, error)
}

type PendingBudgets interface {
	SumUnpaidOngoingBudgets(ctx context.Context, q database.Querier, freelancerID uuid.UUID) (int64, error)
}

type BankDirectory interface {
	ListBanks(ctx context.Context, currency string) ([]types.Bank, error)
	ResolveAccountNumber(ctx context.Context, accountNumber, bankCode string) (*types.ResolveAccountResponse, error)
}

type Cache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Ledger interface {
	Apply(ctx context.Context, q database.Querier, userID uuid.UUID, d ledger.Delta) (*ledger.Posting, error)
}

type TxRunner interface {
	Querier() database.Querier
	WithTx(ctx context.Context, fn func(q database.Querier) error) error
}

// Balance is the wallet view returned to its owner. PendingPayments is
// advisory: ongoing project budgets with no completed payment yet.
type Balance struct {
	Balance          int64              `json:"balance"`
	EscrowBalance    int64              `json:"escrow_balance"`
	AvailableBalance int64              `json:"available_balance"`
	TotalEarnings    int64              `json:"total_earnings"`
	TotalSpent       int64              `json:"total_spent"`
	PendingPayments  int64              `json:"pending_payments"`
	Currency         model.Currency     `json:"currency"`
	BankDetails      *model.BankDetails `json:"bank_details,omitempty"`
}

type WalletService struct {
	db      TxRunner
	wallets WalletRepository
	ledger  Ledger
	held    HeldPayments
	budgets PendingBudgets
	banks   BankDirectory
	cache   Cache
}

func NewWalletService(db TxRunner, wallets WalletRepository, ledger Ledger, held HeldPayments, budgets PendingBudgets, banks BankDirectory, cache Cache) *WalletService {
	return &WalletService{
		db:      db,
		wallets: wallets,
		ledger:  ledger,
		held:    held,
		budgets: budgets,
		banks:   banks,
		cache:   cache,
	}
}

// GetBalance returns the user's wallet, creating it on first use. The escrow
// balance is recomputed from held payments before it is returned.
func (ws *WalletService) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	var (
		w       *model.Wallet
		pending int64
	)
	err := ws.db.WithTx(ctx, func(q database.Querier) error {
		var err error
		if w, _, err = ws.heal(ctx, q, userID); err != nil {
			return err
		}
		pending, err = ws.budgets.SumUnpaidOngoingBudgets(ctx, q, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	balance := &Balance{
		Balance:          w.Balance,
		EscrowBalance:    w.EscrowBalance,
		AvailableBalance: w.AvailableBalance,
		TotalEarnings:    w.TotalEarnings,
		TotalSpent:       w.TotalSpent,
		PendingPayments:  pending,
		Currency:         w.Currency,
	}
	if w.BankDetails != nil {
		masked := *w.BankDetails
		masked.AccountNumber = masked.Masked()
		balance.BankDetails = &masked
	}
	return balance, nil
}

// Reconcile realigns the stored escrow balance with held payments and
// returns the correction that was applied.
func (ws *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (int64, error) {
	var drift int64
	err := ws.db.WithTx(ctx, func(q database.Querier) error {
		var err error
		_, drift, err = ws.heal(ctx, q, userID)
		return err
	})
	return drift, err
}

func (ws *WalletService) heal(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, int64, error) {
	logger := middleware.GetLogger(ctx)

	w, err := ws.wallets.GetOrCreateForUpdate(ctx, q, userID)
	if err != nil {
		return nil, 0, err
	}
	held, err := ws.held.SumHeldForPayee(ctx, q, userID)
	if err != nil {
		return nil, 0, err
	}

	drift := held - w.EscrowBalance
	if drift == 0 {
		return w, 0, nil
	}

	logger.Warn().
		Str("wallet_user_id", userID.String()).
		Int64("stored_escrow", w.EscrowBalance).
		Int64("held_payments", held).
		Msg("Escrow balance drifted from held payments")

	posting, err := ws.ledger.Apply(ctx, q, userID, ledger.Delta{Escrow: drift})
	if errors.Is(err, ledger.ErrNegativeBalance) {
		// Left as stored; the ledger has already logged the defect.
		return w, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return &posting.After, drift, nil
}

func (ws *WalletService) ListBanks(ctx context.Context, currency string) ([]types.Bank, error) {
	logger := middleware.GetLogger(ctx)
	if currency == "" {
		currency = constants.DefaultCurrency
	}
	key := "banks:" + currency

	if ws.cache != nil {
		var cached []types.Bank
		hit, err := ws.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to read bank list from cache")
		}
		if hit {
			return cached, nil
		}
	}

	banks, err := ws.banks.ListBanks(ctx, currency)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list banks from Paystack")
		return nil, apperror.Gateway(err)
	}

	if ws.cache != nil {
		if err := ws.cache.SetJSON(ctx, key, banks, banksCacheTTL); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache bank list")
		}
	}
	return banks, nil
}

func (ws *WalletService) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*model.BankDetails, error) {
	res, err := ws.banks.ResolveAccountNumber(ctx, accountNumber, bankCode)
	if err != nil {
		middleware.GetLogger(ctx).Error().Err(err).Str("bank_code", bankCode).Msg("Failed to resolve account number")
		return nil, apperror.Gateway(err)
	}
	return &model.BankDetails{
		AccountNumber: res.Data.AccountNumber,
		BankCode:      bankCode,
		AccountName:   res.Data.AccountName,
	}, nil
}

// UpdateBankDetails resolves the account with the gateway and stores it as
// the user's payout account.
func (ws *WalletService) UpdateBankDetails(ctx context.Context, userID uuid.UUID, req *types.BankDetailsRequest) (*model.BankDetails, error) {
	details, err := ws.ResolveAccount(ctx, req.AccountNumber, req.BankCode)
	if err != nil {
		return nil, err
	}
	if req.AccountName != "" && !sameName(req.AccountName, details.AccountName) {
		return nil, ErrAccountMismatch
	}
	details.BankName = req.BankName

	err = ws.db.WithTx(ctx, func(q database.Querier) error {
		return ws.wallets.UpdateBankDetails(ctx, q, userID, *details)
	})
	if err != nil {
		return nil, err
	}

	middleware.GetLogger(ctx).Info().
		Str("bank_code", details.BankCode).
		Str("account", details.Masked()).
		Msg("Bank details updated")
	return details, nil
}
