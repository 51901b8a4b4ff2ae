package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gometeo/weathermail/internal/audit"
	"github.com/gometeo/weathermail/internal/config"
	"github.com/gometeo/weathermail/internal/logging"
	"github.com/gometeo/weathermail/internal/session"
	"github.com/gometeo/weathermail/internal/weatherapi"
	"github.com/gometeo/weathermail/internal/web"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.Env)
	logger.Info("Starting weather-email web front-end...")
	logger.Info("Configuration loaded",
		"port", cfg.HTTPPort,
		"weather_api", cfg.WeatherAPIURL,
		"session_backend", cfg.SessionBackend,
		"timeout", cfg.HTTPTimeout)

	// 1. Session store
	sessions, err := openSessions(cfg, logger)
	if err != nil {
		logger.Error("Failed to open session store", "backend", cfg.SessionBackend, "error", err)
		os.Exit(1)
	}
	defer sessions.Close()

	// 2. Audit publisher
	publisher := openPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to close audit publisher", "error", err)
		}
	}()

	// 3. Router
	client := weatherapi.NewClient(cfg.WeatherAPIURL, cfg.HTTPTimeout)
	handler := web.NewHandler(client, sessions, publisher, 2*cfg.HTTPTimeout, logger)

	// 4. HTTP server; the write timeout has to outlast a full submit round trip
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.HTTPTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 5. Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func openSessions(cfg *config.Config, logger *slog.Logger) (session.Store, error) {
	if cfg.SessionBackend != config.SessionBackendRedis {
		logger.Info("Using in-memory session store")
		return session.NewMemoryStore(), nil
	}

	store, err := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// openPublisher falls back to the log when Kafka is not configured or not
// reachable; auditing never blocks the form.
func openPublisher(cfg *config.Config, logger *slog.Logger) audit.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, audit events go to the log")
		return audit.NewLogPublisher(logger)
	}

	publisher, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic, logger)
	if err != nil {
		logger.Warn("Kafka unavailable, audit events go to the log", "brokers", cfg.KafkaBrokers, "error", err)
		return audit.NewLogPublisher(logger)
	}
	logger.Info("Connected to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.AuditTopic)
	return publisher
}
