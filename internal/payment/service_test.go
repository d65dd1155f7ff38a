package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/database/dbtest"
	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/ledger"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/psp/psptest"
	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/pkg/constants"
	"github.com/Niiaks/Escrow/pkg/types"
)

type fixture struct {
	store      *dbtest.Store
	gateway    *psptest.Gateway
	locker     *dbtest.Locker
	svc        *PaymentService
	client     *model.AuthenticatedUser
	freelancer *model.AuthenticatedUser
	project    model.Project
	job        model.Job
}

// testingT is satisfied by both *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

func newFixture(t testingT) *fixture {
	t.Helper()

	store := dbtest.New()
	gateway := psptest.New()
	locker := dbtest.NewLocker()

	f := &fixture{
		store:      store,
		gateway:    gateway,
		locker:     locker,
		client:     &model.AuthenticatedUser{ID: uuid.New(), Role: constants.RoleClient, Email: "client@example.com"},
		freelancer: &model.AuthenticatedUser{ID: uuid.New(), Role: constants.RoleFreelancer, Email: "dev@example.com"},
	}
	store.AddUser(model.User{ID: f.client.ID, Name: "Client", Email: f.client.Email, Role: f.client.Role})
	store.AddUser(model.User{ID: f.freelancer.ID, Name: "Dev", Email: f.freelancer.Email, Role: f.freelancer.Role})

	f.project = model.Project{
		ID:           uuid.New(),
		Title:        "Logo design",
		ClientID:     f.client.ID,
		FreelancerID: f.freelancer.ID,
		Budget:       10000,
		Currency:     model.CurrencyNGN,
		Status:       "ongoing",
	}
	store.AddProject(f.project)

	f.job = model.Job{ID: uuid.New(), Title: "Backend engineer", ClientID: f.client.ID}
	store.AddJob(f.job)

	f.svc = NewPaymentService(Deps{
		DB:              store,
		Payments:        store.Payments(),
		Projects:        store.Projects(),
		Users:           store.Users(),
		Transactions:    store.TransactionLog(),
		Ledger:          ledger.NewBook(store.Wallets()),
		Gateway:         gateway,
		Emitter:         store.Outbox(),
		Locker:          locker,
		PlatformPercent: decimal.NewFromInt(10),
		CallbackURL:     "https://escrow.test/callback",
	})
	return f
}

func (f *fixture) initialize(t testingT, amount int64) *model.Payment {
	t.Helper()
	p, err := f.svc.InitializePayment(context.Background(), f.client, &types.InitializeProjectPaymentRequest{
		ProjectID: f.project.ID,
		PayeeID:   f.freelancer.ID,
		Amount:    amount,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) verified(t testingT, amount int64) *model.Payment {
	t.Helper()
	p := f.initialize(t, amount)
	res, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	require.NoError(t, err)
	return res.Payment
}

func TestInitializePayment(t *testing.T) {
	f := newFixture(t)

	p := f.initialize(t, 10000)

	assert.Equal(t, int64(10000), p.Amount)
	assert.Equal(t, int64(1000), p.PlatformFee)
	assert.Equal(t, int64(9000), p.NetAmount)
	assert.Equal(t, model.PaymentPending, p.Status)
	assert.Equal(t, model.EscrowNone, p.EscrowStatus)
	assert.Equal(t, model.PaymentFull, p.PaymentType)
	assert.Equal(t, model.CurrencyNGN, p.Currency)
	assert.Equal(t, "Payment for Logo design", p.Description)
	assert.NotEmpty(t, p.InvoiceNumber)
	assert.NotEmpty(t, p.Reference())
	assert.NotEmpty(t, p.AuthorizationURL)

	require.NotNil(t, f.gateway.LastInit)
	assert.Equal(t, "client@example.com", f.gateway.LastInit.Email)
	assert.Equal(t, int64(10000), f.gateway.LastInit.Amount)
	assert.Equal(t, p.ID.String(), f.gateway.LastInit.Metadata["payment_id"])
	assert.Equal(t, "https://escrow.test/callback", f.gateway.LastInit.CallbackURL)

	stored := f.store.Payment(p.ID)
	assert.Equal(t, p.Reference(), stored.Reference())
	assert.Equal(t, []string{kafka.EventPaymentInitialized}, f.store.EventTypes())
}

func TestInitializePayment_ReusesPendingPayment(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t, 10000)
	f.gateway.VerifyStatus = "abandoned"
	second := f.initialize(t, 20000)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	assert.Equal(t, int64(20000), second.Amount)
	assert.Equal(t, int64(2000), second.PlatformFee)
	assert.NotEqual(t, first.Reference(), second.Reference())
	assert.Equal(t, 1, f.gateway.Calls("VerifyPayment"))
}

func TestInitializePayment_SupersededReferenceStillSettles(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t, 10000)
	f.gateway.VerifyStatus = "abandoned"
	second := f.initialize(t, 10000)
	require.NotEqual(t, first.Reference(), second.Reference())

	// The payer completes the first checkout after the second was issued.
	f.gateway.VerifyStatus = "success"
	res, err := f.svc.VerifyPayment(context.Background(), first.Reference())
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.Payment.ID)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, model.EscrowHeld, res.Payment.EscrowStatus)

	payee, ok := f.store.Wallet(f.freelancer.ID)
	require.True(t, ok)
	assert.Equal(t, int64(9000), payee.EscrowBalance)

	res, err = f.svc.VerifyPayment(context.Background(), second.Reference())
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Len(t, f.store.Transactions(), 2)
}

func TestInitializePayment_RefusesWhenEarlierCheckoutPaid(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t, 10000)
	_, err := f.svc.InitializePayment(context.Background(), f.client, &types.InitializeProjectPaymentRequest{
		ProjectID: f.project.ID,
		PayeeID:   f.freelancer.ID,
		Amount:    10000,
	})
	assert.ErrorIs(t, err, ErrCheckoutAlreadyPaid)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, 1, f.gateway.Calls("InitializePayment"))

	stored := f.store.Payment(first.ID)
	assert.Equal(t, model.PaymentCompleted, stored.Status)
	assert.Equal(t, model.EscrowHeld, stored.EscrowStatus)
	assert.Equal(t, first.Reference(), stored.Reference())
}

func TestInitializePayment_VerifyFailureBlocksReissue(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t, 10000)
	f.gateway.VerifyErr = errors.New("connection reset")

	_, err := f.svc.InitializePayment(context.Background(), f.client, &types.InitializeProjectPaymentRequest{
		ProjectID: f.project.ID,
		PayeeID:   f.freelancer.ID,
		Amount:    10000,
	})
	assert.Equal(t, apperror.KindGateway, apperror.KindOf(err))
	assert.Equal(t, 1, f.gateway.Calls("InitializePayment"))
	stored := f.store.Payment(first.ID)
	assert.Equal(t, first.Reference(), stored.Reference())
}

func TestVerifyPayment_SupersededAmountNotSettled(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t, 10000)
	f.gateway.VerifyStatus = "abandoned"
	f.initialize(t, 20000)

	f.gateway.VerifyStatus = "success"
	_, err := f.svc.VerifyPayment(context.Background(), first.Reference())
	assert.ErrorIs(t, err, ErrAmountMismatch)
	assert.Equal(t, model.PaymentPending, f.store.Payment(first.ID).Status)
	assert.Empty(t, f.store.Transactions())
}

func TestVerifyPayment_SupersededFailureKeepsPaymentPending(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t, 10000)
	f.gateway.VerifyStatus = "abandoned"
	second := f.initialize(t, 10000)

	f.gateway.VerifyStatus = "failed"
	res, err := f.svc.VerifyPayment(context.Background(), first.Reference())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)
	stored := f.store.Payment(first.ID)
	assert.Equal(t, second.Reference(), stored.Reference())
}

func TestNewReferenceUniqueWithinMillisecond(t *testing.T) {
	id := uuid.New()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref := newReference(id)
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestInitializePayment_MilestoneType(t *testing.T) {
	f := newFixture(t)
	milestone := uuid.New()

	p, err := f.svc.InitializePayment(context.Background(), f.client, &types.InitializeProjectPaymentRequest{
		ProjectID:   f.project.ID,
		MilestoneID: &milestone,
		PayeeID:     f.freelancer.ID,
		Amount:      5000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentMilestone, p.PaymentType)
}

func TestInitializePayment_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest)
		want  error
	}{
		{
			name: "unknown project",
			setup: func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest) {
				return f.client, &types.InitializeProjectPaymentRequest{ProjectID: uuid.New(), PayeeID: f.freelancer.ID, Amount: 100}
			},
			want: ErrProjectNotFound,
		},
		{
			name: "requester does not own project",
			setup: func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest) {
				return f.freelancer, &types.InitializeProjectPaymentRequest{ProjectID: f.project.ID, PayeeID: f.client.ID, Amount: 100}
			},
			want: ErrNotProjectOwner,
		},
		{
			name: "paying yourself",
			setup: func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest) {
				return f.client, &types.InitializeProjectPaymentRequest{ProjectID: f.project.ID, PayeeID: f.client.ID, Amount: 100}
			},
			want: ErrSelfPayment,
		},
		{
			name: "payee is not the project freelancer",
			setup: func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest) {
				other := uuid.New()
				f.store.AddUser(model.User{ID: other, Name: "Other", Email: "other@example.com", Role: constants.RoleFreelancer})
				return f.client, &types.InitializeProjectPaymentRequest{ProjectID: f.project.ID, PayeeID: other, Amount: 100}
			},
			want: ErrPayeeNotOnProject,
		},
		{
			name: "payee account missing",
			setup: func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest) {
				orphan := f.project
				orphan.ID = uuid.New()
				orphan.FreelancerID = uuid.New()
				f.store.AddProject(orphan)
				return f.client, &types.InitializeProjectPaymentRequest{ProjectID: orphan.ID, PayeeID: orphan.FreelancerID, Amount: 100}
			},
			want: ErrPayeeNotFound,
		},
		{
			name: "unsupported currency",
			setup: func(f *fixture) (*model.AuthenticatedUser, *types.InitializeProjectPaymentRequest) {
				return f.client, &types.InitializeProjectPaymentRequest{ProjectID: f.project.ID, PayeeID: f.freelancer.ID, Amount: 100, Currency: "GHS"}
			},
			want: ErrUnsupportedCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user, req := tt.setup(f)

			_, err := f.svc.InitializePayment(context.Background(), user, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.gateway.Calls("InitializePayment"))
		})
	}
}

func TestInitializePayment_GatewayFailureLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.InitErr = errors.New("paystack is down")

	_, err := f.svc.InitializePayment(context.Background(), f.client, &types.InitializeProjectPaymentRequest{
		ProjectID: f.project.ID,
		PayeeID:   f.freelancer.ID,
		Amount:    10000,
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindGateway, apperror.KindOf(err))

	payments, total, err := f.svc.ListPayments(context.Background(), f.client, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, model.PaymentPending, payments[0].Status)
	assert.Empty(t, payments[0].Reference())
	assert.Empty(t, f.store.Events())
}

func TestVerifyPayment_HoldsFundsInEscrow(t *testing.T) {
	f := newFixture(t)
	p := f.initialize(t, 10000)

	res, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, model.EscrowHeld, res.Payment.EscrowStatus)
	assert.NotNil(t, res.Payment.PaidAt)

	payee, ok := f.store.Wallet(f.freelancer.ID)
	require.True(t, ok)
	assert.Equal(t, int64(9000), payee.Balance)
	assert.Equal(t, int64(9000), payee.EscrowBalance)
	assert.Equal(t, int64(0), payee.AvailableBalance)

	payer, ok := f.store.Wallet(f.client.ID)
	require.True(t, ok)
	assert.Equal(t, int64(10000), payer.TotalSpent)
	assert.Equal(t, int64(0), payer.Balance)

	txs := f.store.Transactions()
	require.Len(t, txs, 2)
	byUser := map[uuid.UUID]model.Transaction{}
	for _, tx := range txs {
		byUser[tx.UserID] = tx
	}
	assert.Equal(t, model.TxPaymentSent, byUser[f.client.ID].Type)
	assert.Equal(t, int64(-10000), byUser[f.client.ID].Amount)
	assert.Equal(t, model.TxPaymentReceived, byUser[f.freelancer.ID].Type)
	assert.Equal(t, int64(9000), byUser[f.freelancer.ID].Amount)
	assert.Equal(t, int64(0), byUser[f.freelancer.ID].BalanceBefore)
	assert.Equal(t, int64(9000), byUser[f.freelancer.ID].BalanceAfter)

	assert.Equal(t, []string{kafka.EventPaymentInitialized, kafka.EventPaymentVerified}, f.store.EventTypes())
}

func TestVerifyPayment_RetryIsNoOp(t *testing.T) {
	f := newFixture(t)
	p := f.verified(t, 10000)

	res, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)

	assert.Equal(t, 1, f.gateway.Calls("VerifyPayment"))
	assert.Len(t, f.store.Transactions(), 2)
	payee, _ := f.store.Wallet(f.freelancer.ID)
	assert.Equal(t, int64(9000), payee.Balance)
}

func TestVerifyPayment_FailedCharge(t *testing.T) {
	f := newFixture(t)
	p := f.initialize(t, 10000)
	f.gateway.VerifyStatus = "failed"

	res, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, res.Payment.Status)
	assert.Equal(t, model.EscrowNone, res.Payment.EscrowStatus)

	_, ok := f.store.Wallet(f.freelancer.ID)
	assert.False(t, ok)
	assert.Empty(t, f.store.Transactions())
	assert.Contains(t, f.store.EventTypes(), kafka.EventPaymentFailed)
}

func TestVerifyPayment_ChargeInFlight(t *testing.T) {
	f := newFixture(t)
	p := f.initialize(t, 10000)
	f.gateway.VerifyStatus = "ongoing"

	res, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPending, res.Payment.Status)
	assert.Equal(t, model.PaymentPending, f.store.Payment(p.ID).Status)
}

func TestVerifyPayment_GatewayError(t *testing.T) {
	f := newFixture(t)
	p := f.initialize(t, 10000)
	f.gateway.VerifyErr = errors.New("connection reset")

	_, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	require.Error(t, err)
	assert.Equal(t, apperror.KindGateway, apperror.KindOf(err))
	assert.Equal(t, model.PaymentPending, f.store.Payment(p.ID).Status)
	assert.Empty(t, f.store.Transactions())
}

func TestVerifyPayment_UnknownReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestVerifyPayment_ConcurrentVerificationRejected(t *testing.T) {
	f := newFixture(t)
	p := f.initialize(t, 10000)

	release := f.locker.Hold("payment:" + p.ID.String())
	defer release()

	_, err := f.svc.VerifyPayment(context.Background(), p.Reference())
	assert.ErrorIs(t, err, redis.ErrLockHeld)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Zero(t, f.gateway.Calls("VerifyPayment"))
}

func TestJobVerificationPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.InitializeJobVerificationPayment(ctx, f.client, &types.InitializeJobVerificationRequest{
		JobID:  f.job.ID,
		Amount: 2500,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentJobVerification, p.PaymentType)
	assert.Equal(t, int64(0), p.PlatformFee)
	assert.Equal(t, int64(2500), p.NetAmount)
	assert.Equal(t, constants.PlatformAccountID, p.PayeeID)

	res, err := f.svc.VerifyPayment(ctx, p.Reference())
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCompleted, res.Payment.Status)
	assert.Equal(t, model.EscrowNone, res.Payment.EscrowStatus)
	assert.True(t, f.store.Job(f.job.ID).PaymentVerified)

	_, ok := f.store.Wallet(constants.PlatformAccountID)
	assert.False(t, ok)
	assert.Empty(t, f.store.Transactions())
	assert.Contains(t, f.store.EventTypes(), kafka.EventJobPaymentVerified)

	_, err = f.svc.InitializeJobVerificationPayment(ctx, f.client, &types.InitializeJobVerificationRequest{JobID: f.job.ID, Amount: 2500})
	assert.ErrorIs(t, err, ErrJobAlreadyVerified)
}

func TestJobVerificationPayment_NotOwner(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.InitializeJobVerificationPayment(context.Background(), f.freelancer, &types.InitializeJobVerificationRequest{
		JobID:  f.job.ID,
		Amount: 2500,
	})
	assert.ErrorIs(t, err, ErrNotJobOwner)
	assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
}

func TestReleasePayment(t *testing.T) {
	f := newFixture(t)
	p := f.verified(t, 10000)

	released, err := f.svc.ReleasePayment(context.Background(), f.client, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EscrowReleased, released.EscrowStatus)
	assert.NotNil(t, released.ReleasedAt)

	payee, _ := f.store.Wallet(f.freelancer.ID)
	assert.Equal(t, int64(9000), payee.Balance)
	assert.Equal(t, int64(0), payee.EscrowBalance)
	assert.Equal(t, int64(9000), payee.AvailableBalance)
	assert.Equal(t, int64(9000), payee.TotalEarnings)
	assert.Len(t, f.store.Transactions(), 2)
	assert.Contains(t, f.store.EventTypes(), kafka.EventPaymentReleased)
}

func TestReleasePayment_AlreadyReleased(t *testing.T) {
	f := newFixture(t)
	p := f.verified(t, 10000)

	_, err := f.svc.ReleasePayment(context.Background(), f.client, p.ID)
	require.NoError(t, err)
	before, _ := f.store.Wallet(f.freelancer.ID)
	saves := f.store.Saves

	_, err = f.svc.ReleasePayment(context.Background(), f.client, p.ID)
	assert.ErrorIs(t, err, ErrEscrowNotHeld)
	assert.Equal(t, apperror.KindInvalidState, apperror.KindOf(err))

	after, _ := f.store.Wallet(f.freelancer.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, f.store.Saves)
}

func TestReleasePayment_Rejections(t *testing.T) {
	f := newFixture(t)
	pending := f.initialize(t, 10000)

	_, err := f.svc.ReleasePayment(context.Background(), f.client, pending.ID)
	assert.ErrorIs(t, err, ErrEscrowNotHeld)

	held, err := f.svc.VerifyPayment(context.Background(), pending.Reference())
	require.NoError(t, err)

	_, err = f.svc.ReleasePayment(context.Background(), f.freelancer, held.Payment.ID)
	assert.ErrorIs(t, err, ErrNotPayer)

	_, err = f.svc.ReleasePayment(context.Background(), f.client, uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRefundPayment(t *testing.T) {
	f := newFixture(t)
	p := f.verified(t, 10000)

	refunded, err := f.svc.RefundPayment(context.Background(), f.client, p.ID, "work not delivered")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, refunded.Status)
	assert.Equal(t, model.EscrowRefunded, refunded.EscrowStatus)
	assert.Equal(t, "work not delivered", refunded.RefundReason)
	assert.NotNil(t, refunded.RefundedAt)

	payee, _ := f.store.Wallet(f.freelancer.ID)
	assert.Equal(t, int64(0), payee.Balance)
	assert.Equal(t, int64(0), payee.EscrowBalance)
	assert.Equal(t, int64(0), payee.AvailableBalance)

	payer, _ := f.store.Wallet(f.client.ID)
	assert.Equal(t, int64(0), payer.TotalSpent)

	txs := f.store.Transactions()
	require.Len(t, txs, 3)
	refund := txs[2]
	assert.Equal(t, model.TxRefund, refund.Type)
	assert.Equal(t, f.client.ID, refund.UserID)
	assert.Equal(t, int64(10000), refund.Amount)

	_, err = f.svc.ReleasePayment(context.Background(), f.client, p.ID)
	assert.ErrorIs(t, err, ErrEscrowNotHeld)
}

func TestRefundPayment_OnlyPayer(t *testing.T) {
	f := newFixture(t)
	p := f.verified(t, 10000)

	_, err := f.svc.RefundPayment(context.Background(), f.freelancer, p.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrNotPayer)
	assert.Equal(t, model.EscrowHeld, f.store.Payment(p.ID).EscrowStatus)
}

func TestGetPayment_Visibility(t *testing.T) {
	f := newFixture(t)
	p := f.initialize(t, 10000)
	ctx := context.Background()

	_, err := f.svc.GetPayment(ctx, f.client, p.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetPayment(ctx, f.freelancer, p.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetPayment(ctx, &model.AuthenticatedUser{ID: uuid.New(), Role: constants.RoleAdmin}, p.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetPayment(ctx, &model.AuthenticatedUser{ID: uuid.New(), Role: constants.RoleClient}, p.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to model.EscrowStatus
		want     bool
	}{
		{model.EscrowNone, model.EscrowHeld, true},
		{model.EscrowHeld, model.EscrowReleased, true},
		{model.EscrowHeld, model.EscrowRefunded, true},
		{model.EscrowNone, model.EscrowReleased, false},
		{model.EscrowReleased, model.EscrowHeld, false},
		{model.EscrowRefunded, model.EscrowReleased, false},
		{model.EscrowReleased, model.EscrowRefunded, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestEscrowMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(rt)
		ctx := context.Background()
		p := f.initialize(rt, rapid.Int64Range(1, 1_000_000).Draw(rt, "amount"))

		actors := []*model.AuthenticatedUser{f.client, f.freelancer}
		last := f.store.Payment(p.ID).EscrowStatus

		steps := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 8).Draw(rt, "steps")
		for i, step := range steps {
			actor := actors[rapid.IntRange(0, 1).Draw(rt, "actor")]
			switch step {
			case 0:
				_, _ = f.svc.VerifyPayment(ctx, p.Reference())
			case 1:
				_, _ = f.svc.ReleasePayment(ctx, actor, p.ID)
			case 2:
				_, _ = f.svc.RefundPayment(ctx, actor, p.ID, "reason")
			}

			current := f.store.Payment(p.ID).EscrowStatus
			if current != last && !CanTransition(last, current) {
				rt.Fatalf("step %d: escrow moved %s -> %s", i, last, current)
			}
			if current == model.EscrowHeld && f.store.Payment(p.ID).Status != model.PaymentCompleted {
				rt.Fatalf("step %d: escrow held without a completed payment", i)
			}
			last = current

			for _, u := range actors {
				if w, ok := f.store.Wallet(u.ID); ok {
					if w.AvailableBalance != w.Balance-w.EscrowBalance || w.Balance < 0 || w.EscrowBalance < 0 {
						rt.Fatalf("step %d: wallet invariant broken: %+v", i, w)
					}
				}
			}
		}
	})
}
