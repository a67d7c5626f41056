// Package kafkabus streams progress events to a Kafka topic keyed by session.
package kafkabus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/forPelevin/hlshorts/internal/progress"
)

type Observer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

var _ progress.Observer = (*Observer)(nil)

// sendTimeout bounds each network step of a send so an unreachable broker
// cannot stall a run.
const sendTimeout = 2 * time.Second

func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 1
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Timeout = sendTimeout
	cfg.Net.DialTimeout = sendTimeout
	cfg.Net.ReadTimeout = sendTimeout
	cfg.Net.WriteTimeout = sendTimeout
	cfg.Metadata.Retry.Max = 1
	cfg.Metadata.Timeout = sendTimeout
	return cfg
}

func New(brokers []string, topic string, logger *slog.Logger) (*Observer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewWithProducer(producer, topic, logger), nil
}

func NewWithProducer(p sarama.SyncProducer, topic string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Observer{producer: p, topic: topic, logger: logger}
}

// Notify never fails the run; delivery errors are logged.
func (o *Observer) Notify(_ context.Context, ev progress.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		o.logger.Warn("kafka progress: marshal", slog.String("error", err.Error()))
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: o.topic,
		Value: sarama.ByteEncoder(b),
	}
	if ev.Session != "" {
		msg.Key = sarama.StringEncoder(ev.Session)
	}
	if _, _, err := o.producer.SendMessage(msg); err != nil {
		o.logger.Warn("kafka progress: send", slog.String("topic", o.topic), slog.String("error", err.Error()))
	}
}

func (o *Observer) Close() error {
	return o.producer.Close()
}
