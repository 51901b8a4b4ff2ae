// Package audit moves form outcomes from the front-ends to the audit journal.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/gometeo/weathermail/internal/model"
)

// Publisher sends audit events somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, ev model.AuditEvent) error
	Close() error
}

// KafkaPublisher writes each event as JSON to a Kafka topic.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// ProducerConfig waits for all in-sync replicas to acknowledge a write.
func ProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	return config
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic, logger), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(_ context.Context, ev model.AuditEvent) error {
	bytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(partitionKey(ev)),
		Value: sarama.ByteEncoder(bytes),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send audit event %s: %w", ev.Action, err)
	}

	p.logger.Debug("Audit event sent",
		"action", ev.Action,
		"partition", partition,
		"offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// partitionKey keeps events about the same city or log entry in order.
func partitionKey(ev model.AuditEvent) string {
	if ev.LogID != "" {
		return ev.LogID
	}
	return ev.City
}

// LogPublisher writes events to the logger only. Used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev model.AuditEvent) error {
	p.logger.InfoContext(ctx, "Audit",
		"id", ev.ID,
		"action", ev.Action,
		"city", ev.City,
		"log_id", ev.LogID,
		"error", ev.Error)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
