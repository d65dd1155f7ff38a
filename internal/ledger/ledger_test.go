package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/database/dbtest"
	"github.com/Niiaks/Escrow/internal/model"
)

func TestApplyDelta(t *testing.T) {
	base := model.Wallet{Balance: 9000, EscrowBalance: 9000}
	base.RecomputeAvailable()

	tests := []struct {
		name    string
		delta   Delta
		want    model.Wallet
		wantErr bool
	}{
		{
			name:  "escrow hold",
			delta: Delta{Balance: 1000, Escrow: 1000},
			want:  model.Wallet{Balance: 10000, EscrowBalance: 10000, AvailableBalance: 0},
		},
		{
			name:  "escrow release",
			delta: Delta{Escrow: -9000, Earnings: 9000},
			want:  model.Wallet{Balance: 9000, EscrowBalance: 0, AvailableBalance: 9000, TotalEarnings: 9000},
		},
		{
			name:  "refund",
			delta: Delta{Balance: -9000, Escrow: -9000},
			want:  model.Wallet{},
		},
		{
			name:    "withdraw held funds",
			delta:   Delta{Balance: -1},
			wantErr: true,
		},
		{
			name:    "escrow below zero",
			delta:   Delta{Escrow: -9001},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyDelta(base, tt.delta)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNegativeBalance)
				assert.Equal(t, base, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyDelta_DoesNotMutateInput(t *testing.T) {
	w := model.Wallet{Balance: 500}
	w.RecomputeAvailable()
	_, err := ApplyDelta(w, Delta{Balance: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
}

func TestBookApply(t *testing.T) {
	store := dbtest.New()
	book := NewBook(store.Wallets())
	userID := uuid.New()
	ctx := context.Background()

	posting, err := book.Apply(ctx, store.Querier(), userID, Delta{Balance: 9000, Escrow: 9000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), posting.Before.Balance)
	assert.Equal(t, int64(9000), posting.After.Balance)
	assert.Equal(t, int64(0), posting.After.AvailableBalance)

	w, ok := store.Wallet(userID)
	require.True(t, ok)
	assert.Equal(t, int64(9000), w.EscrowBalance)
}

func TestBookApply_RejectsNegativeWithoutSaving(t *testing.T) {
	store := dbtest.New()
	userID := uuid.New()
	store.PutWallet(model.Wallet{UserID: userID, Balance: 100})
	book := NewBook(store.Wallets())

	_, err := book.Apply(context.Background(), store.Querier(), userID, Delta{Balance: -101})
	assert.ErrorIs(t, err, ErrNegativeBalance)
	assert.Equal(t, 0, store.Saves)

	w, _ := store.Wallet(userID)
	assert.Equal(t, int64(100), w.Balance)
}

// Every persisted wallet satisfies available == balance - escrow, whatever
// sequence of deltas is attempted.
func TestBookApply_WalletInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := dbtest.New()
		book := NewBook(store.Wallets())
		userID := uuid.New()
		ctx := context.Background()

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			d := Delta{
				Balance:  rapid.Int64Range(-10_000, 10_000).Draw(t, "balance"),
				Escrow:   rapid.Int64Range(-10_000, 10_000).Draw(t, "escrow"),
				Earnings: rapid.Int64Range(0, 10_000).Draw(t, "earnings"),
			}
			before, _ := store.Wallet(userID)

			err := store.WithTx(ctx, func(q database.Querier) error {
				_, err := book.Apply(ctx, q, userID, d)
				return err
			})

			after, ok := store.Wallet(userID)
			if !ok {
				continue
			}
			if after.AvailableBalance != after.Balance-after.EscrowBalance {
				t.Fatalf("available drifted: %+v", after)
			}
			if after.Balance < 0 || after.EscrowBalance < 0 || after.AvailableBalance < 0 {
				t.Fatalf("negative wallet persisted: %+v", after)
			}
			if err != nil && (after.Balance != before.Balance || after.EscrowBalance != before.EscrowBalance) {
				t.Fatalf("rejected delta changed wallet: before=%+v after=%+v", before, after)
			}
		}
	})
}
