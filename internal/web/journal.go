package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gometeo/weathermail/internal/model"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Journal is the read side of the audit journal.
type Journal interface {
	Recent(ctx context.Context, limit int) ([]model.AuditEvent, error)
	Ping(ctx context.Context) error
}

// JournalHandler serves recent audit events and a database health check.
type JournalHandler struct {
	journal Journal
	logger  *slog.Logger
}

func NewJournalHandler(journal Journal, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger}
}

func (h *JournalHandler) Router() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/audit/recent", h.Recent).Methods(http.MethodGet)
	api.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	router.Use(LoggingMiddleware(h.logger))
	router.Use(noCacheMiddleware)

	return router
}

// Recent returns the newest events first. ?limit= defaults to 50, capped at 500.
func (h *JournalHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	events, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read audit events", "error", err)
		sendError(w, http.StatusInternalServerError, "could not read audit events", "")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	sendJSON(w, http.StatusOK, events)
}

func (h *JournalHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status":   "ok",
		"database": "healthy",
		"time":     time.Now().Format(time.RFC3339),
	}
	status := http.StatusOK

	if err := h.journal.Ping(r.Context()); err != nil {
		h.logger.Error("Health check: database unavailable", "error", err)
		health["status"] = "degraded"
		health["database"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, status, health)
}
