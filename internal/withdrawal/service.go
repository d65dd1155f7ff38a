package withdrawal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/fee"
	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/ledger"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/psp"
	"github.com/Niiaks/Escrow/pkg/constants"
	"github.com/Niiaks/Escrow/pkg/types"
)

var (
	ErrWithdrawalNotFound  = apperror.New(apperror.KindNotFound, "withdrawal not found")
	ErrNotOwner            = apperror.New(apperror.KindForbidden, "you do not own this withdrawal")
	ErrNotPending          = apperror.New(apperror.KindInvalidState, "withdrawal is not pending")
	ErrNotProcessing       = apperror.New(apperror.KindInvalidState, "withdrawal is not processing")
	ErrTransferInFlight    = apperror.New(apperror.KindInvalidState, "transfer outcome is not final yet")
	ErrInsufficientBalance = apperror.New(apperror.KindInsufficientBalance, "insufficient available balance")
	ErrBankDetailsRequired = apperror.Validation("bank details are required")
)

type Gateway interface {
	CreateTransferRecipient(ctx context.Context, req *types.TransferRecipientRequest) (*types.TransferRecipientResponse, error)
	InitiateTransfer(ctx context.Context, req *types.TransferRequest) (*types.TransferResponse, error)
	VerifyTransfer(ctx context.Context, reference string) (*types.VerifyTransferResponse, error)
}

// settleTimeout bounds the bookkeeping that follows a transfer request.
const settleTimeout = 10 * time.Second

type WalletReader interface {
	GetOrCreate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error)
	GetOrCreateForUpdate(ctx context.Context, q database.Querier, userID uuid.UUID) (*model.Wallet, error)
}

type TransactionWriter interface {
	Create(ctx context.Context, q database.Querier, tx *model.Transaction) error
}

type Ledger interface {
	Apply(ctx context.Context, q database.Querier, userID uuid.UUID, d ledger.Delta) (*ledger.Posting, error)
}

type Emitter interface {
	Emit(ctx context.Context, q database.Querier, evt model.Event) error
}

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

type TxRunner interface {
	Querier() database.Querier
	WithTx(ctx context.Context, fn func(q database.Querier) error) error
}

type Deps struct {
	DB           TxRunner
	Withdrawals  WithdrawalRepository
	Wallets      WalletReader
	Transactions TransactionWriter
	Ledger       Ledger
	Gateway      Gateway
	Emitter      Emitter
	Locker       Locker

	FeePercent decimal.Decimal
	MinimumFee int64
	LockTTL    time.Duration
	// ResolveGrace is how long a processing withdrawal must wait before a
	// transfer Paystack has no record of is treated as never sent.
	ResolveGrace time.Duration
}

type WithdrawalService struct {
	Deps
}

func NewWithdrawalService(deps Deps) *WithdrawalService {
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Second
	}
	if deps.ResolveGrace <= 0 {
		deps.ResolveGrace = 10 * time.Minute
	}
	return &WithdrawalService{Deps: deps}
}

// RequestWithdrawal debits the full amount from the wallet immediately and
// records a pending withdrawal for an admin to process. The balance around
// the debit is kept on the withdrawal for its ledger entry.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, user *model.AuthenticatedUser, req *types.WithdrawalRequest) (*model.Withdrawal, error) {
	logger := middleware.GetLogger(ctx)

	processingFee, net, err := fee.WithdrawalFee(req.Amount, s.MinimumFee, s.FeePercent)
	if err != nil {
		return nil, err
	}

	var wd *model.Withdrawal
	err = s.DB.WithTx(ctx, func(q database.Querier) error {
		wallet, err := s.Wallets.GetOrCreateForUpdate(ctx, q, user.ID)
		if err != nil {
			return err
		}
		if req.Amount > wallet.AvailableBalance {
			return ErrInsufficientBalance
		}

		bank, err := bankDetails(req.BankDetails, wallet.BankDetails)
		if err != nil {
			return err
		}

		posting, err := s.Ledger.Apply(ctx, q, user.ID, ledger.Delta{Balance: -req.Amount})
		if err != nil {
			if errors.Is(err, ledger.ErrNegativeBalance) {
				return ErrInsufficientBalance.WithCause(err)
			}
			return err
		}

		wd = &model.Withdrawal{
			UserID:        user.ID,
			Amount:        req.Amount,
			ProcessingFee: processingFee,
			NetAmount:     net,
			Currency:      wallet.Currency,
			BankDetails:   bank,
			Status:        model.WithdrawalPending,
			BalanceBefore: posting.Before.Balance,
			BalanceAfter:  posting.After.Balance,
		}
		if err := s.Withdrawals.Create(ctx, q, wd); err != nil {
			return err
		}
		return s.Emitter.Emit(ctx, q, withdrawalEvent(kafka.EventWithdrawalRequested, wd))
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("withdrawal_id", wd.ID.String()).
		Int64("amount", wd.Amount).
		Int64("processing_fee", wd.ProcessingFee).
		Str("account", wd.BankDetails.Masked()).
		Msg("Withdrawal requested")
	return wd, nil
}

// ProcessWithdrawal pays a pending withdrawal out through the gateway. The
// move to processing commits before the transfer so a second admin sees the
// withdrawal as taken. A transfer Paystack rejects outright is rolled back
// and the failed withdrawal is returned alongside a gateway error. A transfer
// whose outcome is unknown leaves the withdrawal processing with the amount
// still debited until ResolveWithdrawal settles it.
func (s *WithdrawalService) ProcessWithdrawal(ctx context.Context, admin *model.AuthenticatedUser, id uuid.UUID) (*model.Withdrawal, error) {
	if admin.Role != constants.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	var (
		result     *model.Withdrawal
		processErr error
	)
	err := s.Locker.WithLock(ctx, "withdrawal:"+id.String(), s.LockTTL, func() error {
		wd, err := s.claim(ctx, admin.ID, id)
		if err != nil {
			return err
		}
		result, processErr = s.payout(ctx, wd)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, processErr
}

func (s *WithdrawalService) payout(ctx context.Context, wd *model.Withdrawal) (*model.Withdrawal, error) {
	recipientCode, transfer, err := s.transfer(ctx, wd)

	settleCtx, cancel := detached(ctx)
	defer cancel()

	switch {
	case err == nil:
	case recipientCode == "" || rejected(err):
		return s.fail(settleCtx, wd, err)
	default:
		held, holdErr := s.hold(settleCtx, wd, recipientCode, "")
		if holdErr != nil {
			return nil, holdErr
		}
		return held, apperror.Gateway(err)
	}

	switch transferOutcome(transfer.Data.Status) {
	case model.WithdrawalCompleted:
		return s.complete(settleCtx, wd, recipientCode, transfer.Data.TransferCode)
	case model.WithdrawalFailed:
		return s.fail(settleCtx, wd, errors.New("transfer "+transfer.Data.Status))
	default:
		return s.hold(settleCtx, wd, recipientCode, transfer.Data.TransferCode)
	}
}

// transfer creates the recipient and requests the payout. An empty
// recipient code means no transfer was requested.
func (s *WithdrawalService) transfer(ctx context.Context, wd *model.Withdrawal) (string, *types.TransferResponse, error) {
	logger := middleware.GetLogger(ctx)

	recipient, err := s.Gateway.CreateTransferRecipient(ctx, &types.TransferRecipientRequest{
		Type:          "nuban",
		Name:          wd.BankDetails.AccountName,
		AccountNumber: wd.BankDetails.AccountNumber,
		BankCode:      wd.BankDetails.BankCode,
		Currency:      string(wd.Currency),
	})
	if err != nil {
		logger.Error().Err(err).Str("withdrawal_id", wd.ID.String()).Msg("Failed to create transfer recipient")
		return "", nil, err
	}
	recipientCode := recipient.Data.RecipientCode

	transfer, err := s.Gateway.InitiateTransfer(ctx, &types.TransferRequest{
		Source:    "balance",
		Amount:    wd.NetAmount,
		Recipient: recipientCode,
		Reference: transferReference(wd.ID),
		Reason:    "Escrow withdrawal",
		Currency:  string(wd.Currency),
	})
	if err != nil {
		logger.Error().Err(err).Str("withdrawal_id", wd.ID.String()).Msg("Failed to initiate transfer")
		return recipientCode, nil, err
	}
	return recipientCode, transfer, nil
}

// detached returns a context for the bookkeeping that follows a gateway call.
// It outlives the caller's cancellation but not settleTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// fail rolls wd back and reports the gateway error that caused it.
func (s *WithdrawalService) fail(ctx context.Context, wd *model.Withdrawal, cause error) (*model.Withdrawal, error) {
	failed, err := s.rollback(ctx, wd, failureReason(cause))
	if err != nil {
		return nil, err
	}
	return failed, apperror.Gateway(cause)
}

// ResolveWithdrawal settles a withdrawal left processing by asking Paystack
// for the final state of its transfer. A transfer still in flight leaves the
// withdrawal as it is.
func (s *WithdrawalService) ResolveWithdrawal(ctx context.Context, admin *model.AuthenticatedUser, id uuid.UUID) (*model.Withdrawal, error) {
	if admin.Role != constants.RoleAdmin {
		return nil, apperror.ErrForbidden
	}

	var result *model.Withdrawal
	err := s.Locker.WithLock(ctx, "withdrawal:"+id.String(), s.LockTTL, func() error {
		wd, err := s.Withdrawals.GetByID(ctx, s.DB.Querier(), id)
		if err != nil {
			return notFound(err)
		}
		if wd.Status != model.WithdrawalProcessing {
			return ErrNotProcessing
		}

		res, err := s.Gateway.VerifyTransfer(ctx, transferReference(wd.ID))
		settleCtx, cancel := detached(ctx)
		defer cancel()
		if err != nil {
			if unknownTransfer(err) && s.pastGrace(wd) {
				result, err = s.rollback(settleCtx, wd, "transfer was never created")
				return err
			}
			middleware.GetLogger(ctx).Error().Err(err).Str("withdrawal_id", wd.ID.String()).Msg("Failed to verify transfer")
			return apperror.Gateway(err)
		}

		switch transferOutcome(res.Data.Status) {
		case model.WithdrawalCompleted:
			result, err = s.complete(settleCtx, wd, "", res.Data.TransferCode)
		case model.WithdrawalFailed:
			result, err = s.rollback(settleCtx, wd, "transfer "+res.Data.Status)
		default:
			return ErrTransferInFlight
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *WithdrawalService) pastGrace(wd *model.Withdrawal) bool {
	started := wd.UpdatedAt
	if wd.ProcessedAt != nil {
		started = *wd.ProcessedAt
	}
	return time.Since(started) >= s.ResolveGrace
}

func (s *WithdrawalService) claim(ctx context.Context, adminID, id uuid.UUID) (*model.Withdrawal, error) {
	var wd *model.Withdrawal
	err := s.DB.WithTx(ctx, func(q database.Querier) error {
		var err error
		wd, err = s.Withdrawals.GetByID(ctx, q, id)
		if err != nil {
			return notFound(err)
		}
		if wd.Status != model.WithdrawalPending {
			return ErrNotPending
		}

		swapped, err := s.Withdrawals.Transition(ctx, q, model.WithdrawalTransition{
			ID:          id,
			From:        model.WithdrawalPending,
			To:          model.WithdrawalProcessing,
			At:          time.Now(),
			ProcessedBy: &adminID,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return ErrNotPending
		}
		wd.Status = model.WithdrawalProcessing
		return nil
	})
	return wd, err
}

// hold records what is known about a transfer whose outcome is not final.
// The withdrawal stays processing and the amount stays debited.
func (s *WithdrawalService) hold(ctx context.Context, wd *model.Withdrawal, recipientCode, transferCode string) (*model.Withdrawal, error) {
	var held *model.Withdrawal
	err := s.DB.WithTx(ctx, func(q database.Querier) error {
		swapped, err := s.Withdrawals.Transition(ctx, q, model.WithdrawalTransition{
			ID:               wd.ID,
			From:             model.WithdrawalProcessing,
			To:               model.WithdrawalProcessing,
			At:               time.Now(),
			GatewayReference: transferReference(wd.ID),
			TransferCode:     transferCode,
			RecipientCode:    recipientCode,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return ErrNotProcessing
		}
		held, err = s.Withdrawals.GetByID(ctx, q, wd.ID)
		return err
	})
	if err != nil {
		middleware.GetLogger(ctx).Error().Err(err).Str("withdrawal_id", wd.ID.String()).Msg("Failed to record in-flight transfer")
		return nil, err
	}

	middleware.GetLogger(ctx).Warn().
		Str("withdrawal_id", wd.ID.String()).
		Str("reference", held.GatewayReference).
		Msg("Transfer outcome unknown, withdrawal left processing")
	return held, nil
}

func (s *WithdrawalService) complete(ctx context.Context, wd *model.Withdrawal, recipientCode, transferCode string) (*model.Withdrawal, error) {
	logger := middleware.GetLogger(ctx)

	var completed *model.Withdrawal
	err := s.DB.WithTx(ctx, func(q database.Querier) error {
		swapped, err := s.Withdrawals.Transition(ctx, q, model.WithdrawalTransition{
			ID:               wd.ID,
			From:             model.WithdrawalProcessing,
			To:               model.WithdrawalCompleted,
			At:               time.Now(),
			GatewayReference: transferReference(wd.ID),
			TransferCode:     transferCode,
			RecipientCode:    recipientCode,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return apperror.New(apperror.KindInvalidState, "withdrawal left processing during transfer")
		}

		// The debit happened at request time and the entry carries the
		// balance around it.
		err = s.Transactions.Create(ctx, q, &model.Transaction{
			UserID:        wd.UserID,
			Type:          model.TxWithdrawal,
			Amount:        -wd.Amount,
			Currency:      wd.Currency,
			BalanceBefore: wd.BalanceBefore,
			BalanceAfter:  wd.BalanceAfter,
			WithdrawalID:  &wd.ID,
			Description:   "Withdrawal to " + wd.BankDetails.Masked(),
		})
		if err != nil {
			return err
		}

		if completed, err = s.Withdrawals.GetByID(ctx, q, wd.ID); err != nil {
			return err
		}
		return s.Emitter.Emit(ctx, q, withdrawalEvent(kafka.EventWithdrawalCompleted, completed))
	})
	if err != nil {
		logger.Error().Err(err).
			Str("withdrawal_id", wd.ID.String()).
			Str("transfer_code", transferCode).
			Msg("Transfer succeeded but withdrawal could not be completed")
		return nil, err
	}

	logger.Info().
		Str("withdrawal_id", completed.ID.String()).
		Str("transfer_code", completed.TransferCode).
		Msg("Withdrawal completed")
	return completed, nil
}

// rollback marks a processing withdrawal failed and credits the full amount
// back to the wallet.
func (s *WithdrawalService) rollback(ctx context.Context, wd *model.Withdrawal, reason string) (*model.Withdrawal, error) {
	logger := middleware.GetLogger(ctx)

	var failed *model.Withdrawal
	err := s.DB.WithTx(ctx, func(q database.Querier) error {
		var err error
		failed, err = s.restore(ctx, q, wd, model.WithdrawalProcessing, model.WithdrawalFailed, reason)
		if err != nil {
			return err
		}
		return s.Emitter.Emit(ctx, q, withdrawalEvent(kafka.EventWithdrawalFailed, failed))
	})
	if err != nil {
		logger.Error().Err(err).Str("withdrawal_id", wd.ID.String()).Msg("Failed to roll back withdrawal")
		return nil, err
	}

	logger.Warn().
		Str("withdrawal_id", wd.ID.String()).
		Str("reason", reason).
		Int64("restored", wd.Amount).
		Msg("Withdrawal failed and was rolled back")
	return failed, nil
}

// CancelWithdrawal lets the owner withdraw a request that no admin has
// picked up yet. The amount is credited back in full.
func (s *WithdrawalService) CancelWithdrawal(ctx context.Context, user *model.AuthenticatedUser, id uuid.UUID) (*model.Withdrawal, error) {
	var cancelled *model.Withdrawal
	err := s.Locker.WithLock(ctx, "withdrawal:"+id.String(), s.LockTTL, func() error {
		return s.DB.WithTx(ctx, func(q database.Querier) error {
			wd, err := s.Withdrawals.GetByID(ctx, q, id)
			if err != nil {
				return notFound(err)
			}
			if wd.UserID != user.ID {
				return ErrNotOwner
			}

			cancelled, err = s.restore(ctx, q, wd, model.WithdrawalPending, model.WithdrawalCancelled, "cancelled by user")
			if err != nil {
				return err
			}
			return s.Emitter.Emit(ctx, q, withdrawalEvent(kafka.EventWithdrawalCancelled, cancelled))
		})
	})
	if err != nil {
		return nil, err
	}

	middleware.GetLogger(ctx).Info().Str("withdrawal_id", id.String()).Msg("Withdrawal cancelled")
	return cancelled, nil
}

// restore moves wd from one state to a terminal one and returns the debited
// amount to the wallet.
func (s *WithdrawalService) restore(ctx context.Context, q database.Querier, wd *model.Withdrawal, from, to model.WithdrawalStatus, reason string) (*model.Withdrawal, error) {
	swapped, err := s.Withdrawals.Transition(ctx, q, model.WithdrawalTransition{
		ID:            wd.ID,
		From:          from,
		To:            to,
		At:            time.Now(),
		FailureReason: reason,
	})
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, ErrNotPending
	}

	if _, err := s.Ledger.Apply(ctx, q, wd.UserID, ledger.Delta{Balance: wd.Amount}); err != nil {
		return nil, err
	}
	return s.Withdrawals.GetByID(ctx, q, wd.ID)
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, user *model.AuthenticatedUser, id uuid.UUID) (*model.Withdrawal, error) {
	wd, err := s.Withdrawals.GetByID(ctx, s.DB.Querier(), id)
	if err != nil {
		return nil, notFound(err)
	}
	if wd.UserID != user.ID && user.Role != constants.RoleAdmin {
		return nil, ErrNotOwner
	}
	return wd, nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, user *model.AuthenticatedUser, limit, offset int) ([]model.Withdrawal, int, error) {
	return s.Withdrawals.ListByUser(ctx, s.DB.Querier(), user.ID, limit, offset)
}

func bankDetails(req *types.BankDetailsRequest, saved *model.BankDetails) (model.BankDetails, error) {
	if req != nil {
		if req.AccountName == "" {
			return model.BankDetails{}, apperror.Validation("bank_details.account_name is required")
		}
		return model.BankDetails{
			AccountNumber: req.AccountNumber,
			BankCode:      req.BankCode,
			AccountName:   req.AccountName,
			BankName:      req.BankName,
		}, nil
	}
	if saved == nil {
		return model.BankDetails{}, ErrBankDetailsRequired
	}
	return *saved, nil
}

func withdrawalEvent(eventType string, wd *model.Withdrawal) model.Event {
	return model.Event{
		Type:         eventType,
		PartitionKey: wd.UserID.String(),
		Payload: types.WithdrawalEvent{
			WithdrawalID:  wd.ID,
			UserID:        wd.UserID,
			Amount:        wd.Amount,
			NetAmount:     wd.NetAmount,
			Currency:      string(wd.Currency),
			Status:        string(wd.Status),
			FailureReason: wd.FailureReason,
			OccurredAt:    time.Now(),
		},
	}
}

// transferReference is stable per withdrawal so a retried transfer is
// rejected by Paystack as a duplicate.
func transferReference(id uuid.UUID) string {
	return "wd_" + strings.ReplaceAll(id.String(), "-", "")
}

// transferOutcome maps a Paystack transfer status to the withdrawal status
// it resolves to. Anything not final keeps the withdrawal processing.
func transferOutcome(status string) model.WithdrawalStatus {
	switch status {
	case "success":
		return model.WithdrawalCompleted
	case "failed", "reversed", "rejected", "abandoned":
		return model.WithdrawalFailed
	default:
		return model.WithdrawalProcessing
	}
}

// rejected reports whether err proves Paystack refused the transfer. Timeouts,
// transport errors and 5xx answers leave the outcome unknown.
func rejected(err error) bool {
	var apiErr *psp.APIError
	return errors.As(err, &apiErr) && apiErr.Definite()
}

func unknownTransfer(err error) bool {
	var apiErr *psp.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// failureReason is the text stored on the withdrawal and shown to its owner.
// Provider detail stays in the logs.
func failureReason(err error) string {
	if errors.Is(err, psp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return "transfer timed out"
	}
	return "transfer could not be completed"
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrWithdrawalNotFound.WithCause(err)
	}
	return err
}
