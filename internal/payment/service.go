package payment

import (
	"context"
	"errors"
	"fmt"
	"slices"
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
	"github.com/Niiaks/Escrow/pkg/constants"
	"github.com/Niiaks/Escrow/pkg/types"
)

type Gateway interface {
	InitializePayment(ctx context.Context, req *types.InitializePaymentRequest) (*types.InitializePaymentResponse, error)
	VerifyPayment(ctx context.Context, reference string) (*types.VerifyPaymentResponse, error)
}

type ProjectStore interface {
	GetProject(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Project, error)
	GetJob(ctx context.Context, q database.Querier, id uuid.UUID) (*model.Job, error)
	MarkJobPaymentVerified(ctx context.Context, q database.Querier, jobID uuid.UUID) error
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, q database.Querier, id uuid.UUID) (*model.User, error)
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
	Payments     PaymentRepository
	Projects     ProjectStore
	Users        UserDirectory
	Transactions TransactionWriter
	Ledger       Ledger
	Gateway      Gateway
	Emitter      Emitter
	Locker       Locker

	PlatformPercent decimal.Decimal
	CallbackURL     string
	LockTTL         time.Duration
}

type PaymentService struct {
	Deps
}

func NewPaymentService(deps Deps) *PaymentService {
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Second
	}
	return &PaymentService{Deps: deps}
}

// VerifyResult is the outcome of a verification. AlreadyProcessed is set
// when the payment had been resolved before this call.
type VerifyResult struct {
	Payment          *model.Payment `json:"payment"`
	AlreadyProcessed bool           `json:"already_processed"`
}

func (s *PaymentService) InitializePayment(ctx context.Context, payer *model.AuthenticatedUser, req *types.InitializeProjectPaymentRequest) (*model.Payment, error) {
	logger := middleware.GetLogger(ctx)

	project, err := s.Projects.GetProject(ctx, s.DB.Querier(), req.ProjectID)
	if err != nil {
		return nil, notFound(err, ErrProjectNotFound)
	}
	if project.ClientID != payer.ID {
		return nil, ErrNotProjectOwner
	}
	if req.PayeeID == payer.ID {
		return nil, ErrSelfPayment
	}
	if req.PayeeID != project.FreelancerID {
		return nil, ErrPayeeNotOnProject
	}
	if _, err := s.Users.GetUserByID(ctx, s.DB.Querier(), req.PayeeID); err != nil {
		return nil, notFound(err, ErrPayeeNotFound)
	}

	platformFee, net, err := fee.ComputeFee(req.Amount, s.PlatformPercent)
	if err != nil {
		return nil, err
	}

	currency, err := resolveCurrency(req.Currency, project.Currency)
	if err != nil {
		return nil, err
	}

	description := req.Description
	if description == "" {
		description = "Payment for " + project.Title
	}

	p := &model.Payment{
		ProjectID:    &project.ID,
		MilestoneID:  req.MilestoneID,
		PayerID:      payer.ID,
		PayeeID:      req.PayeeID,
		Amount:       req.Amount,
		Currency:     currency,
		PlatformFee:  platformFee,
		NetAmount:    net,
		Status:       model.PaymentPending,
		PaymentType:  defaultPaymentType(req.MilestoneID, req.PaymentType),
		EscrowStatus: model.EscrowNone,
		Description:  description,
	}

	if err := s.settlePreviousCheckout(ctx, p); err != nil {
		return nil, err
	}

	err = s.DB.WithTx(ctx, func(q database.Querier) error {
		return s.Payments.UpsertPending(ctx, q, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("payment_id", p.ID.String()).
		Str("project_id", project.ID.String()).
		Int64("amount", p.Amount).
		Int64("platform_fee", p.PlatformFee).
		Msg("Project payment created")

	if err := s.checkout(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) InitializeJobVerificationPayment(ctx context.Context, payer *model.AuthenticatedUser, req *types.InitializeJobVerificationRequest) (*model.Payment, error) {
	logger := middleware.GetLogger(ctx)

	job, err := s.Projects.GetJob(ctx, s.DB.Querier(), req.JobID)
	if err != nil {
		return nil, notFound(err, ErrJobNotFound)
	}
	if job.ClientID != payer.ID {
		return nil, ErrNotJobOwner
	}
	if job.PaymentVerified {
		return nil, ErrJobAlreadyVerified
	}

	currency, err := resolveCurrency(req.Currency, model.Currency(constants.DefaultCurrency))
	if err != nil {
		return nil, err
	}

	p := &model.Payment{
		JobID:        &job.ID,
		PayerID:      payer.ID,
		PayeeID:      constants.PlatformAccountID,
		Amount:       req.Amount,
		Currency:     currency,
		PlatformFee:  0,
		NetAmount:    req.Amount,
		Status:       model.PaymentPending,
		PaymentType:  model.PaymentJobVerification,
		EscrowStatus: model.EscrowNone,
		Description:  "Job verification for " + job.Title,
	}

	err = s.DB.WithTx(ctx, func(q database.Querier) error {
		return s.Payments.Create(ctx, q, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("payment_id", p.ID.String()).
		Str("job_id", job.ID.String()).
		Msg("Job verification payment created")

	if err := s.checkout(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// settlePreviousCheckout verifies the last checkout of the pending payment
// that p would reuse. A charge that already went through is settled and the
// new checkout refused, so the payer is not charged twice. Any other outcome
// leaves the payment pending; its old reference stays resolvable.
func (s *PaymentService) settlePreviousCheckout(ctx context.Context, p *model.Payment) error {
	existing, err := s.Payments.FindPending(ctx, s.DB.Querier(), *p.ProjectID, p.PayerID, p.PayeeID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.Reference() == "" {
		return nil
	}

	res, err := s.VerifyPayment(ctx, existing.Reference())
	if err != nil {
		return err
	}
	if res.Payment.Status == model.PaymentCompleted {
		middleware.GetLogger(ctx).Warn().
			Str("payment_id", existing.ID.String()).
			Str("reference", existing.Reference()).
			Msg("Earlier checkout was paid, refusing a new one")
		return ErrCheckoutAlreadyPaid
	}
	return nil
}

// checkout asks the gateway for a checkout session and records its
// reference. A gateway failure leaves the payment pending without a reference.
func (s *PaymentService) checkout(ctx context.Context, p *model.Payment) error {
	logger := middleware.GetLogger(ctx)

	payer, err := s.Users.GetUserByID(ctx, s.DB.Querier(), p.PayerID)
	if err != nil {
		return notFound(err, ErrPayerNotFound)
	}

	res, err := s.Gateway.InitializePayment(ctx, &types.InitializePaymentRequest{
		Email:       payer.Email,
		Amount:      p.Amount,
		Currency:    string(p.Currency),
		Reference:   newReference(p.ID),
		CallbackURL: s.CallbackURL,
		Metadata: map[string]string{
			"payment_id":   p.ID.String(),
			"payment_type": string(p.PaymentType),
			"invoice":      p.InvoiceNumber,
		},
	})
	if err != nil {
		logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("Failed to initialize payment with Paystack")
		return apperror.Gateway(err)
	}

	reference := res.Data.Reference
	err = s.DB.WithTx(ctx, func(q database.Querier) error {
		if err := s.Payments.SetGatewayReference(ctx, q, p.ID, reference, res.Data.AuthorizationURL); err != nil {
			return err
		}
		p.GatewayReference = &reference
		p.AuthorizationURL = res.Data.AuthorizationURL
		return s.Emitter.Emit(ctx, q, paymentEvent(kafka.EventPaymentInitialized, p))
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("payment_id", p.ID.String()).
		Str("reference", reference).
		Msg("Payment initialized with Paystack")
	return nil
}

// VerifyPayment confirms a charge with the gateway and settles it. Calling it
// again for a resolved payment returns the stored payment without touching
// the gateway or any wallet.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	logger := middleware.GetLogger(ctx)

	p, err := s.Payments.GetByReference(ctx, s.DB.Querier(), reference)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	if !p.Status.Unresolved() {
		return &VerifyResult{Payment: p, AlreadyProcessed: true}, nil
	}

	result := &VerifyResult{Payment: p}
	err = s.Locker.WithLock(ctx, "payment:"+p.ID.String(), s.LockTTL, func() error {
		res, err := s.Gateway.VerifyPayment(ctx, reference)
		if err != nil {
			logger.Error().Err(err).Str("reference", reference).Msg("Failed to verify payment with Paystack")
			return apperror.Gateway(err)
		}

		status, resolved := gatewayOutcome(res.Data.Status)
		if !resolved {
			logger.Info().Str("reference", reference).Str("charge_status", res.Data.Status).Msg("Charge still in flight")
			return nil
		}
		if status == model.PaymentFailed && reference != p.Reference() {
			logger.Info().Str("reference", reference).Msg("Superseded checkout failed, payment stays pending")
			return nil
		}
		// A reference issued before the amount was changed can still be
		// paid; its charge must not settle the new amount.
		if status == model.PaymentCompleted && res.Data.Amount > 0 && res.Data.Amount != p.Amount {
			logger.Error().
				Str("payment_id", p.ID.String()).
				Str("reference", reference).
				Int64("charged", res.Data.Amount).
				Int64("expected", p.Amount).
				Msg("Charged amount does not match payment")
			return ErrAmountMismatch
		}

		return s.DB.WithTx(ctx, func(q database.Querier) error {
			settled, err := s.settle(ctx, q, p, status, res.Data.PaidAt)
			if err != nil {
				return err
			}
			result.AlreadyProcessed = !settled

			result.Payment, err = s.Payments.GetByID(ctx, q, p.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("payment_id", result.Payment.ID.String()).
		Str("status", string(result.Payment.Status)).
		Str("escrow_status", string(result.Payment.EscrowStatus)).
		Bool("already_processed", result.AlreadyProcessed).
		Msg("Payment verification handled")
	return result, nil
}

// settle applies a gateway verdict to p inside q. It returns false when
// another caller resolved the payment first.
func (s *PaymentService) settle(ctx context.Context, q database.Querier, p *model.Payment, status model.PaymentStatus, paidAt *time.Time) (bool, error) {
	if status == model.PaymentFailed {
		swapped, err := s.Payments.CompleteVerification(ctx, q, p.ID, model.PaymentFailed, model.EscrowNone, nil)
		if err != nil || !swapped {
			return swapped, err
		}
		p.Status = model.PaymentFailed
		return true, s.Emitter.Emit(ctx, q, paymentEvent(kafka.EventPaymentFailed, p))
	}

	if paidAt == nil {
		now := time.Now()
		paidAt = &now
	}
	escrow := escrowOnSuccess(p)
	swapped, err := s.Payments.CompleteVerification(ctx, q, p.ID, model.PaymentCompleted, escrow, paidAt)
	if err != nil || !swapped {
		return swapped, err
	}
	p.Status, p.EscrowStatus, p.PaidAt = model.PaymentCompleted, escrow, paidAt

	if p.PaymentType == model.PaymentJobVerification {
		if p.JobID != nil {
			if err := s.Projects.MarkJobPaymentVerified(ctx, q, *p.JobID); err != nil {
				return false, notFound(err, ErrJobNotFound)
			}
		}
		return true, s.Emitter.Emit(ctx, q, paymentEvent(kafka.EventJobPaymentVerified, p))
	}

	postings, err := s.applyAll(ctx, q, []walletMove{
		{userID: p.PayeeID, delta: ledger.Delta{Balance: p.NetAmount, Escrow: p.NetAmount}},
		{userID: p.PayerID, delta: ledger.Delta{Spent: p.Amount}},
	})
	if err != nil {
		return false, err
	}

	payer, payee := postings[p.PayerID], postings[p.PayeeID]
	entries := []*model.Transaction{
		{
			UserID:        p.PayerID,
			Type:          model.TxPaymentSent,
			Amount:        -p.Amount,
			Currency:      p.Currency,
			BalanceBefore: payer.Before.Balance,
			BalanceAfter:  payer.After.Balance,
			PaymentID:     &p.ID,
			ProjectID:     p.ProjectID,
			Description:   p.Description,
		},
		{
			UserID:        p.PayeeID,
			Type:          model.TxPaymentReceived,
			Amount:        p.NetAmount,
			Currency:      p.Currency,
			BalanceBefore: payee.Before.Balance,
			BalanceAfter:  payee.After.Balance,
			PaymentID:     &p.ID,
			ProjectID:     p.ProjectID,
			Description:   p.Description,
		},
	}
	for _, entry := range entries {
		if err := s.Transactions.Create(ctx, q, entry); err != nil {
			return false, err
		}
	}

	return true, s.Emitter.Emit(ctx, q, paymentEvent(kafka.EventPaymentVerified, p))
}

func (s *PaymentService) ReleasePayment(ctx context.Context, actor *model.AuthenticatedUser, paymentID uuid.UUID) (*model.Payment, error) {
	logger := middleware.GetLogger(ctx)

	var released *model.Payment
	err := s.DB.WithTx(ctx, func(q database.Querier) error {
		p, err := s.Payments.GetByIDForUpdate(ctx, q, paymentID)
		if err != nil {
			return notFound(err, ErrPaymentNotFound)
		}
		if err := guardSettlement(p, actor.ID); err != nil {
			return err
		}

		swapped, err := s.Payments.TransitionEscrow(ctx, q, model.EscrowTransition{
			PaymentID: p.ID,
			From:      model.EscrowHeld,
			To:        model.EscrowReleased,
			At:        time.Now(),
		})
		if err != nil {
			return err
		}
		if !swapped {
			return ErrEscrowNotHeld
		}

		if _, err := s.Ledger.Apply(ctx, q, p.PayeeID, ledger.Delta{Escrow: -p.NetAmount, Earnings: p.NetAmount}); err != nil {
			return err
		}

		if released, err = s.Payments.GetByID(ctx, q, p.ID); err != nil {
			return err
		}
		return s.Emitter.Emit(ctx, q, paymentEvent(kafka.EventPaymentReleased, released))
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("payment_id", released.ID.String()).
		Str("payee_id", released.PayeeID.String()).
		Int64("net_amount", released.NetAmount).
		Msg("Escrow released")
	return released, nil
}

func (s *PaymentService) RefundPayment(ctx context.Context, actor *model.AuthenticatedUser, paymentID uuid.UUID, reason string) (*model.Payment, error) {
	logger := middleware.GetLogger(ctx)

	var refunded *model.Payment
	err := s.DB.WithTx(ctx, func(q database.Querier) error {
		p, err := s.Payments.GetByIDForUpdate(ctx, q, paymentID)
		if err != nil {
			return notFound(err, ErrPaymentNotFound)
		}
		if err := guardSettlement(p, actor.ID); err != nil {
			return err
		}

		swapped, err := s.Payments.TransitionEscrow(ctx, q, model.EscrowTransition{
			PaymentID: p.ID,
			From:      model.EscrowHeld,
			To:        model.EscrowRefunded,
			Status:    model.PaymentRefunded,
			At:        time.Now(),
			Reason:    reason,
		})
		if err != nil {
			return err
		}
		if !swapped {
			return ErrEscrowNotHeld
		}

		postings, err := s.applyAll(ctx, q, []walletMove{
			{userID: p.PayeeID, delta: ledger.Delta{Balance: -p.NetAmount, Escrow: -p.NetAmount}},
			{userID: p.PayerID, delta: ledger.Delta{Spent: -p.Amount}},
		})
		if err != nil {
			return err
		}

		payer := postings[p.PayerID]
		err = s.Transactions.Create(ctx, q, &model.Transaction{
			UserID:        p.PayerID,
			Type:          model.TxRefund,
			Amount:        p.Amount,
			Currency:      p.Currency,
			BalanceBefore: payer.Before.Balance,
			BalanceAfter:  payer.After.Balance,
			PaymentID:     &p.ID,
			ProjectID:     p.ProjectID,
			Description:   fmt.Sprintf("Refund: %s", reason),
		})
		if err != nil {
			return err
		}

		if refunded, err = s.Payments.GetByID(ctx, q, p.ID); err != nil {
			return err
		}
		return s.Emitter.Emit(ctx, q, paymentEvent(kafka.EventPaymentRefunded, refunded))
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("payment_id", refunded.ID.String()).
		Str("payer_id", refunded.PayerID.String()).
		Str("reason", reason).
		Msg("Escrow refunded")
	return refunded, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, user *model.AuthenticatedUser, paymentID uuid.UUID) (*model.Payment, error) {
	p, err := s.Payments.GetByID(ctx, s.DB.Querier(), paymentID)
	if err != nil {
		return nil, notFound(err, ErrPaymentNotFound)
	}
	if p.PayerID != user.ID && p.PayeeID != user.ID && user.Role != constants.RoleAdmin {
		return nil, ErrNotParticipant
	}
	return p, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, user *model.AuthenticatedUser, limit, offset int) ([]model.Payment, int, error) {
	return s.Payments.ListByUser(ctx, s.DB.Querier(), user.ID, limit, offset)
}

type walletMove struct {
	userID uuid.UUID
	delta  ledger.Delta
}

// applyAll posts every move, locking wallets in id order so two settlements
// touching the same pair of users cannot deadlock.
func (s *PaymentService) applyAll(ctx context.Context, q database.Querier, moves []walletMove) (map[uuid.UUID]*ledger.Posting, error) {
	slices.SortFunc(moves, func(a, b walletMove) int {
		return strings.Compare(a.userID.String(), b.userID.String())
	})

	postings := make(map[uuid.UUID]*ledger.Posting, len(moves))
	for _, m := range moves {
		posting, err := s.Ledger.Apply(ctx, q, m.userID, m.delta)
		if err != nil {
			return nil, err
		}
		postings[m.userID] = posting
	}
	return postings, nil
}

func paymentEvent(eventType string, p *model.Payment) model.Event {
	return model.Event{
		Type:         eventType,
		PartitionKey: p.ID.String(),
		Payload: types.PaymentEvent{
			PaymentID:    p.ID,
			PayerID:      p.PayerID,
			PayeeID:      p.PayeeID,
			ProjectID:    p.ProjectID,
			JobID:        p.JobID,
			Amount:       p.Amount,
			NetAmount:    p.NetAmount,
			Currency:     string(p.Currency),
			Status:       string(p.Status),
			EscrowStatus: string(p.EscrowStatus),
			Reference:    p.Reference(),
			OccurredAt:   time.Now(),
		},
	}
}

// newReference builds a gateway reference unique to this checkout attempt.
// The random suffix keeps two attempts within the same millisecond apart.
func newReference(paymentID uuid.UUID) string {
	id := strings.ReplaceAll(paymentID.String(), "-", "")
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ESC-%s-%d-%s", id[:12], time.Now().UnixMilli(), nonce[:8])
}

func resolveCurrency(requested string, fallback model.Currency) (model.Currency, error) {
	if requested == "" {
		if fallback == "" {
			return model.Currency(constants.DefaultCurrency), nil
		}
		return fallback, nil
	}
	if !constants.SupportedCurrencies[requested] {
		return "", ErrUnsupportedCurrency
	}
	return model.Currency(requested), nil
}

func notFound(err error, sentinel *apperror.Error) error {
	if errors.Is(err, database.ErrNotFound) {
		return sentinel.WithCause(err)
	}
	return err
}
