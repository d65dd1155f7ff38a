package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Niiaks/Escrow/internal/config"
	"github.com/Niiaks/Escrow/internal/database"
	"github.com/Niiaks/Escrow/internal/kafka"
	"github.com/Niiaks/Escrow/internal/logger"
	"github.com/Niiaks/Escrow/internal/outbox"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	loggerService := logger.New(cfg.Observability)
	defer loggerService.Shutdown()
	log := logger.NewLoggerWithService(cfg.Observability, loggerService)

	log.Info().
		Int("batch_size", cfg.Outbox.BatchSize).
		Dur("poll_interval", cfg.Outbox.PollInterval).
		Msg("Starting Outbox Relay Service...")

	db, err := database.New(cfg, &log, loggerService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	producer, err := kafka.NewProducer(kafka.DefaultConfig(cfg.Kafka.Brokers), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize kafka producer")
	}
	defer producer.Close()

	relay := outbox.NewRelay(db, outbox.NewOutboxRepository(), producer, &log).Configure(cfg.Outbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Relay service stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Outbox Relay...")
	cancel()
	// Let an in-flight batch finish before the producer and pool close.
	<-done

	log.Info().Msg("Outbox Relay shutdown complete")
}
