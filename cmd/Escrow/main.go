package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Niiaks/Escrow/internal/app"
	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/logger"
	"github.com/Niiaks/Escrow/internal/payment"
	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/internal/router"
	"github.com/Niiaks/Escrow/internal/server"
	"github.com/Niiaks/Escrow/internal/transaction"
	"github.com/Niiaks/Escrow/internal/user"
	"github.com/Niiaks/Escrow/internal/wallet"
	"github.com/Niiaks/Escrow/internal/webhook"
	"github.com/Niiaks/Escrow/internal/withdrawal"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()

	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	rdb, err := redis.New(&log, &cfg.Redis, loggerService.GetApplication() != nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}

	srv := server.NewServer(cfg, &log, loggerService, db, rdb)
	services := app.NewServices(cfg, db, rdb, &log)

	handlers := &router.Handlers{
		User:        user.NewUserHandler(services.User),
		Wallet:      wallet.NewWalletHandler(services.Wallet),
		Payment:     payment.NewPaymentHandler(services.Payment),
		Withdrawal:  withdrawal.NewWithdrawalHandler(services.Withdrawal),
		Transaction: transaction.NewTransactionHandler(services.Transaction),
		Webhook:     webhook.NewWebhookHandler(cfg.Paystack.WebhookSecret, db, services.Outbox),
	}

	r := router.NewRouter(srv, handlers)

	srv.SetupHTTPServer(r)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
