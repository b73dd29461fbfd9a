// Package kafka publishes critical threat alerts to a Kafka topic when
// alert publishing is enabled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-threat-service/internal/config"
	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

// Publisher produces critical alert messages, one per county, keyed by GEOID
// so per-county ordering survives partitioning.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured alerts topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishAlerts serializes and publishes the current critical alert set in a
// single WriteMessages call.
func (p *Publisher) PublishAlerts(ctx context.Context, alerts []domain.CriticalAlertEntry, issuedAt time.Time) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(alerts))
	for i := range alerts {
		msg, err := serializeAlert(alerts[i], issuedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish critical alerts: %w", err)
	}
	p.logger.Info("published critical alerts", "count", len(alerts))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeAlert marshals one alert entry into a Kafka message.
func serializeAlert(alert domain.CriticalAlertEntry, issuedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert for %s: %w", alert.GEOID, err)
	}
	return kafkago.Message{
		Key:   []byte(alert.GEOID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "threat_level", Value: []byte(alert.Level.String())},
			{Key: "issued_at", Value: []byte(issuedAt.Format(time.RFC3339))},
		},
	}, nil
}
