package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/sync/errgroup"

	"github.com/gometeo/weathermail/internal/audit"
	"github.com/gometeo/weathermail/internal/config"
	"github.com/gometeo/weathermail/internal/logging"
	"github.com/gometeo/weathermail/internal/storage"
	"github.com/gometeo/weathermail/internal/web"
)

const maxRetries = 5

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.Env)
	logger.Info("Starting weather-email auditor...")

	if len(cfg.KafkaBrokers) == 0 {
		logger.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}

	// 1. Postgres
	var store *storage.AuditStorage
	var err error
	for i := 0; i < maxRetries; i++ {
		store, err = storage.New(cfg.DBDSN, logger)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to the database. Retrying in 3s...",
			"attempt", i+1, "of", maxRetries, "error", err)
		time.Sleep(3 * time.Second)
	}
	if store == nil {
		logger.Error("Failed to connect to the database after all attempts. Exiting.", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Connected to Postgres")

	// 2. Kafka consumer group
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumer, err := sarama.NewConsumerGroup(cfg.KafkaBrokers, cfg.AuditGroup, saramaCfg)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	// 3. Read loop until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := audit.NewHandler(store, logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			if err := consumer.Consume(gctx, []string{cfg.AuditTopic}, handler); err != nil {
				logger.Error("Kafka consume failed", "error", err)
			}
			if gctx.Err() != nil {
				return nil
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case err, ok := <-consumer.Errors():
				if !ok {
					return nil
				}
				logger.Error("Kafka consumer error", "error", err)
			case <-gctx.Done():
				return nil
			}
		}
	})

	// 4. Read API over the journal
	server := &http.Server{
		Addr:         ":" + cfg.AuditorPort,
		Handler:      web.NewJournalHandler(store, logger).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	g.Go(func() error {
		logger.Info("Journal API started", "port", cfg.AuditorPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("Consuming audit events", "topic", cfg.AuditTopic, "group", cfg.AuditGroup)
	if err := g.Wait(); err != nil {
		logger.Error("Auditor error", "error", err)
	}
	logger.Info("Auditor stopped")
}
