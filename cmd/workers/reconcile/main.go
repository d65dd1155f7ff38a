package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Niiaks/Escrow/internal/app"
	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/logger"
	"github.com/Niiaks/Escrow/internal/redis"
	"github.com/Niiaks/Escrow/internal/wallet"
)

// The reconcile worker follows payment events and recomputes the payee's
// wallet aggregates from the payments table, correcting any drift.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService).
		With().Str("worker", "reconcile").Logger()

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	rdb, err := redis.New(&log, &cfg.Redis, loggerService.GetApplication() != nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis")
	}
	defer rdb.Close()

	consumer, err := kafka.NewConsumer(kafka.DefaultConfig(cfg.Kafka.Brokers), kafka.GroupReconcileWorker, kafka.TopicPaymentEvents, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}
	defer consumer.Close()

	services := app.NewServices(cfg, db, rdb, &log)
	reconciler := wallet.NewReconciler(services.Wallet, rdb, cfg.Redis.LockTTL, &log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Drift is recomputed from source rows on the next event, so failures
	// are logged rather than dead-lettered.
	if err := consumer.Run(ctx, reconciler.Handle); err != nil {
		log.Error().Err(err).Msg("reconcile worker stopped with error")
	}
	log.Info().Msg("reconcile worker shutdown complete")
}
