//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/storm-threat-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-threat-service/internal/config"
	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

const alertsTopic = "critical-threat-alerts"

// startKafka runs a single-node Kafka broker and returns its bootstrap
// addresses.
func startKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("storm-threat-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers
}

func createTopic(t *testing.T, brokers []string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             alertsTopic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func TestPublisher_RoundTrip(t *testing.T) {
	brokers := startKafka(t)
	createTopic(t, brokers)

	cfg := &config.Config{
		KafkaBrokers:     brokers,
		KafkaAlertsTopic: alertsTopic,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := kafkaadapter.NewPublisher(cfg, logger)
	defer publisher.Close()

	issuedAt := time.Date(2025, 9, 1, 18, 0, 0, 0, time.UTC)
	alerts := []domain.CriticalAlertEntry{
		{
			GEOID:      "12086",
			CountyName: "Miami-Dade",
			Score:      domain.VulnerabilityScore{Composite: 0.91, Category: domain.CategoryCritical},
			Level:      domain.ThreatExtreme,
			DistanceKm: 38.2,
			Storm:      &domain.NearestStorm{ID: "al092025", Name: "MILTON", MaxWindKt: 120},
		},
		{
			GEOID:      "12071",
			CountyName: "Lee",
			Score:      domain.VulnerabilityScore{Composite: 0.67, Category: domain.CategoryHigh},
			Level:      domain.ThreatHigh,
			DistanceKm: 212.7,
			Storm:      &domain.NearestStorm{ID: "al092025", Name: "MILTON", MaxWindKt: 120},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, publisher.PublishAlerts(ctx, alerts, issuedAt))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    alertsTopic,
		GroupID:  "integration-check",
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer reader.Close()

	for i := range alerts {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)

		assert.Equal(t, alerts[i].GEOID, string(msg.Key))

		var got domain.CriticalAlertEntry
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, alerts[i].CountyName, got.CountyName)
		assert.Equal(t, alerts[i].Level, got.Level)

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, alerts[i].Level.String(), headers["threat_level"])
		assert.Equal(t, issuedAt.Format(time.RFC3339), headers["issued_at"])
	}
}
