package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Niiaks/Escrow/internal/apperror"
	"github.com/Niiaks/Escrow/internal/database/dbtest"
	"github.com/Niiaks/Escrow/internal/ledger"
	"github.com/Niiaks/Escrow/internal/model"
	"github.com/Niiaks/Escrow/internal/psp/psptest"
	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/pkg/types"
)

func newService(t *testing.T, cache Cache) (*WalletService, *dbtest.Store, *psptest.Gateway) {
	t.Helper()
	store := dbtest.New()
	gateway := psptest.New()
	svc := NewWalletService(store, store.Wallets(), ledger.NewBook(store.Wallets()), store.Payments(), store.Projects(), gateway, cache)
	return svc, store, gateway
}

func heldPayment(payee uuid.UUID, net int64) model.Payment {
	return model.Payment{
		ID:           uuid.New(),
		PayerID:      uuid.New(),
		PayeeID:      payee,
		Amount:       net,
		NetAmount:    net,
		Status:       model.PaymentCompleted,
		EscrowStatus: model.EscrowHeld,
	}
}

func TestGetBalance_CreatesWallet(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()

	balance, err := svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, balance.Balance)
	assert.Zero(t, balance.AvailableBalance)
	assert.Equal(t, model.CurrencyNGN, balance.Currency)

	_, ok := store.Wallet(userID)
	assert.True(t, ok)
}

func TestGetBalance_HealsEscrowDrift(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()

	store.PutWallet(model.Wallet{UserID: userID, Balance: 20000, EscrowBalance: 3000, Currency: model.CurrencyNGN})
	store.PutPayment(heldPayment(userID, 9000))
	store.PutPayment(heldPayment(userID, 4000))
	released := heldPayment(userID, 7000)
	released.EscrowStatus = model.EscrowReleased
	store.PutPayment(released)

	balance, err := svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), balance.EscrowBalance)
	assert.Equal(t, int64(20000), balance.Balance)
	assert.Equal(t, int64(7000), balance.AvailableBalance)

	stored, _ := store.Wallet(userID)
	assert.Equal(t, int64(13000), stored.EscrowBalance)
	assert.Equal(t, int64(7000), stored.AvailableBalance)
}

func TestGetBalance_UnhealableDriftKeepsStoredWallet(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()

	store.PutWallet(model.Wallet{UserID: userID, Balance: 1000, Currency: model.CurrencyNGN})
	store.PutPayment(heldPayment(userID, 5000))

	balance, err := svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.EscrowBalance)
	assert.Equal(t, int64(1000), balance.AvailableBalance)
}

func TestGetBalance_PendingPayments(t *testing.T) {
	svc, store, _ := newService(t, nil)
	freelancer := uuid.New()

	unpaid := model.Project{ID: uuid.New(), FreelancerID: freelancer, Budget: 50000, Status: "ongoing"}
	paid := model.Project{ID: uuid.New(), FreelancerID: freelancer, Budget: 30000, Status: "ongoing"}
	closed := model.Project{ID: uuid.New(), FreelancerID: freelancer, Budget: 10000, Status: "completed"}
	store.AddProject(unpaid)
	store.AddProject(paid)
	store.AddProject(closed)

	payment := heldPayment(freelancer, 27000)
	payment.ProjectID = &paid.ID
	store.PutPayment(payment)

	balance, err := svc.GetBalance(context.Background(), freelancer)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance.PendingPayments)
}

func TestGetBalance_MasksBankAccount(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()
	store.PutWallet(model.Wallet{
		UserID:      userID,
		Currency:    model.CurrencyNGN,
		BankDetails: &model.BankDetails{AccountNumber: "0123456789", BankCode: "058", AccountName: "ADA LOVELACE"},
	})

	balance, err := svc.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, balance.BankDetails)
	assert.Equal(t, "****6789", balance.BankDetails.AccountNumber)

	stored, _ := store.Wallet(userID)
	assert.Equal(t, "0123456789", stored.BankDetails.AccountNumber)
}

func TestReconcile(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()
	store.PutWallet(model.Wallet{UserID: userID, Balance: 9000, EscrowBalance: 9000})

	drift, err := svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(-9000), drift)

	drift, err = svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, drift)
}

func TestListBanks_Cached(t *testing.T) {
	mr := miniredis.RunT(t)
	log := zerolog.Nop()
	cache := redis.NewWithClient(&log, goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "test:")

	svc, _, gateway := newService(t, cache)
	ctx := context.Background()

	first, err := svc.ListBanks(ctx, "")
	require.NoError(t, err)
	second, err := svc.ListBanks(ctx, "NGN")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gateway.Calls("ListBanks"))
}

func TestListBanks_GatewayError(t *testing.T) {
	svc, _, gateway := newService(t, nil)
	gateway.BanksErr = errors.New("boom")

	_, err := svc.ListBanks(context.Background(), "NGN")
	assert.Equal(t, apperror.KindGateway, apperror.KindOf(err))
}

func TestUpdateBankDetails(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()

	details, err := svc.UpdateBankDetails(context.Background(), userID, &types.BankDetailsRequest{
		AccountNumber: "0123456789",
		BankCode:      "058",
		BankName:      "Guaranty Trust Bank",
		AccountName:   "Lovelace, Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "ADA LOVELACE", details.AccountName)

	stored, _ := store.Wallet(userID)
	require.NotNil(t, stored.BankDetails)
	assert.Equal(t, "058", stored.BankDetails.BankCode)
	assert.Equal(t, "Guaranty Trust Bank", stored.BankDetails.BankName)
}

func TestUpdateBankDetails_NameMismatch(t *testing.T) {
	svc, store, _ := newService(t, nil)
	userID := uuid.New()

	_, err := svc.UpdateBankDetails(context.Background(), userID, &types.BankDetailsRequest{
		AccountNumber: "0123456789",
		BankCode:      "058",
		AccountName:   "Grace Hopper",
	})
	assert.ErrorIs(t, err, ErrAccountMismatch)
	_, ok := store.Wallet(userID)
	assert.False(t, ok)
}

func TestSameName(t *testing.T) {
	assert.True(t, sameName("Ada Lovelace", "LOVELACE ADA"))
	assert.True(t, sameName("lovelace, ada", "ADA LOVELACE"))
	assert.False(t, sameName("Ada Lovelace", "Ada Byron"))
}
