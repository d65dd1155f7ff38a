// Package app wires repositories, the Paystack client and the services on
// top of them. The API server and the workers share it so every process
// settles money through the same code.
package app

import (
	"github.com/rs/zerolog"

	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/ledger"
	"github.com/Niiaks/Escrow/internal/middleware"
	"github.com/Niiaks/Escrow/internal/outbox"
	"github.com/Niiaks/Escrow/internal/payment"
	"github.com/Niiaks/Escrow/internal/project"
	"github.com/Niiaks/Escrow/internal/psp"
	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/internal/transaction"
	"github.com/Niiaks/Escrow/internal/user"
	"github.com/Niiaks/Escrow/internal/wallet"
	"github.com/Niiaks/Escrow/internal/withdrawal"
)

type Services struct {
	User        *user.UserService
	Wallet      *wallet.WalletService
	Payment     *payment.PaymentService
	Withdrawal  *withdrawal.WithdrawalService
	Transaction *transaction.TransactionService

	Paystack *psp.PaystackClient
	Outbox   *outbox.Writer
}

func NewServices(cfg *config.Config, db *database.Database, rdb *redis.Client, log *zerolog.Logger) *Services {
	userRepo := user.NewUserRepository()
	walletRepo := wallet.NewWalletRepository()
	paymentRepo := payment.NewPaymentRepository()
	projectRepo := project.NewProjectRepository()
	transactionRepo := transaction.NewTransactionRepository()
	withdrawalRepo := withdrawal.NewWithdrawalRepository()

	paystack := psp.NewPaystackClient(cfg.Paystack, log)
	book := ledger.NewBook(walletRepo)
	emitter := outbox.NewWriter()

	return &Services{
		User:   user.NewUserService(db, userRepo, middleware.NewAuth(cfg.Auth)),
		Wallet: wallet.NewWalletService(db, walletRepo, book, paymentRepo, projectRepo, paystack, rdb),
		Payment: payment.NewPaymentService(payment.Deps{
			DB:              db,
			Payments:        paymentRepo,
			Projects:        projectRepo,
			Users:           userRepo,
			Transactions:    transactionRepo,
			Ledger:          book,
			Gateway:         paystack,
			Emitter:         emitter,
			Locker:          rdb,
			PlatformPercent: cfg.Fees.PlatformPercent,
			CallbackURL:     cfg.Paystack.CallbackURL,
			LockTTL:         cfg.Redis.LockTTL,
		}),
		Withdrawal: withdrawal.NewWithdrawalService(withdrawal.Deps{
			DB:           db,
			Withdrawals:  withdrawalRepo,
			Wallets:      walletRepo,
			Transactions: transactionRepo,
			Ledger:       book,
			Gateway:      paystack,
			Emitter:      emitter,
			Locker:       rdb,
			FeePercent:   cfg.Fees.WithdrawalPercent,
			MinimumFee:   cfg.Fees.WithdrawalMinimum,
			LockTTL:      cfg.Redis.LockTTL,
		}),
		Transaction: transaction.NewTransactionService(db, transactionRepo),
		Paystack:    paystack,
		Outbox:      emitter,
	}
}
