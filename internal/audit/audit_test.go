package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/gometeo/weathermail/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() model.AuditEvent {
	return model.AuditEvent{
		ID:         "ev-1",
		Action:     model.ActionLogDeleted,
		LogID:      "abc",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisherSendsJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev model.AuditEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.ID != "ev-1" || ev.LogID != "abc" {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer, "weather_audit", quietLogger())
	defer p.Close()

	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestKafkaPublisherFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, ProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer, "weather_audit", quietLogger())
	defer p.Close()

	err := p.Publish(context.Background(), sampleEvent())
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
}

func TestPartitionKey(t *testing.T) {
	if got := partitionKey(model.AuditEvent{City: "Paris"}); got != "Paris" {
		t.Errorf("expected city key, got %q", got)
	}
	if got := partitionKey(model.AuditEvent{City: "Paris", LogID: "x"}); got != "x" {
		t.Errorf("expected log id key, got %q", got)
	}
}

type sinkFunc func(ctx context.Context, ev model.AuditEvent) error

func (f sinkFunc) Save(ctx context.Context, ev model.AuditEvent) error { return f(ctx, ev) }

func TestHandlerProcess(t *testing.T) {
	valid, _ := json.Marshal(sampleEvent())

	tests := []struct {
		name      string
		value     []byte
		sinkErr   error
		wantMark  bool
		wantSaved int
	}{
		{"saved", valid, nil, true, 1},
		{"sink down", valid, errors.New("db down"), false, 1},
		{"malformed json", []byte("{"), nil, true, 0},
		{"missing id", []byte(`{"action":"weather.sent"}`), nil, true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			saved := 0
			h := NewHandler(sinkFunc(func(_ context.Context, ev model.AuditEvent) error {
				saved++
				if ev.ID != "ev-1" {
					t.Errorf("unexpected event %+v", ev)
				}
				return tc.sinkErr
			}), quietLogger())

			if got := h.Process(context.Background(), tc.value); got != tc.wantMark {
				t.Errorf("expected mark=%v, got %v", tc.wantMark, got)
			}
			if saved != tc.wantSaved {
				t.Errorf("expected %d saves, got %d", tc.wantSaved, saved)
			}
		})
	}
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(quietLogger())
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
