package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/gometeo/weathermail/internal/model"
)

// Sink stores decoded audit events.
type Sink interface {
	Save(ctx context.Context, ev model.AuditEvent) error
}

// Handler is a sarama consumer-group handler that journals audit events.
type Handler struct {
	logger *slog.Logger
	sink   Sink
}

var _ sarama.ConsumerGroupHandler = (*Handler)(nil)

func NewHandler(sink Sink, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, sink: sink}
}

func (h *Handler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if h.Process(sess.Context(), msg.Value) {
			sess.MarkMessage(msg, "")
		}
	}
	return nil
}

// Process decodes and saves one message and reports whether its offset may be
// committed. Undecodable messages are dropped; sink failures leave the message
// uncommitted so it is delivered again.
func (h *Handler) Process(ctx context.Context, value []byte) bool {
	var ev model.AuditEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		h.logger.Error("Malformed audit event", "error", err)
		return true
	}
	if ev.ID == "" || ev.Action == "" {
		h.logger.Error("Audit event without id or action", "value", string(value))
		return true
	}

	if err := h.sink.Save(ctx, ev); err != nil {
		h.logger.Error("Audit journal write failed", "id", ev.ID, "error", err)
		return false
	}

	h.logger.Info("Audit event journaled", "id", ev.ID, "action", ev.Action)
	return true
}
