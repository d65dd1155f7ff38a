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
	"github.com/Niiaks/Escrow/internal/webhook"
)

// The webhook worker drains queued Paystack charge events and confirms each
// referenced payment against the gateway.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService).
		With().Str("worker", "webhook").Logger()

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

	kcfg := kafka.DefaultConfig(cfg.Kafka.Brokers)
	dlq, err := kafka.NewProducer(kcfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize dead letter producer")
	}
	defer dlq.Close()

	consumer, err := kafka.NewConsumer(kcfg, kafka.GroupWebhookWorker, kafka.TopicWebhookPending, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka consumer")
	}
	defer consumer.Close()

	services := app.NewServices(cfg, db, rdb, &log)
	processor := webhook.NewProcessor(db, webhook.NewWebhookRepository(), services.Payment, &log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.WithDeadLetter(dlq).Run(ctx, processor.Handle); err != nil {
		log.Error().Err(err).Msg("webhook worker stopped with error")
	}
	log.Info().Msg("webhook worker shutdown complete")
}
