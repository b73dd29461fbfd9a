package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// CountyDataPath points at the processed county GeoJSON dataset.
	CountyDataPath string

	// Storm feed settings.
	NHCFeedURL      string
	FetchTimeout    time.Duration
	FeedTTL         time.Duration
	RefreshInterval time.Duration

	// Scoring weights. Must sum to 1.
	Weights domain.Weights

	// Kafka critical-alert publishing.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaAlertsTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	feedTTL, err := parsePositiveDuration("FEED_TTL", "5m")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parsePositiveDuration("REFRESH_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	weights, err := parseWeights()
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CountyDataPath: sharedcfg.EnvOrDefault("COUNTY_DATA_PATH", "data/florida_counties.geojson"),

		NHCFeedURL:      os.Getenv("NHC_FEED_URL"),
		FetchTimeout:    fetchTimeout,
		FeedTTL:         feedTTL,
		RefreshInterval: refreshInterval,

		Weights: weights,

		KafkaEnabled:     kafkaEnabled,
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertsTopic: sharedcfg.EnvOrDefault("KAFKA_ALERTS_TOPIC", "critical-threat-alerts"),
	}

	if cfg.CountyDataPath == "" {
		return nil, errors.New("COUNTY_DATA_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaAlertsTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_ALERTS_TOPIC is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(name, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

// parseWeights reads the three component weights, falling back to the
// defaults for any that are unset. A partial override still has to produce
// a valid set.
func parseWeights() (domain.Weights, error) {
	w := domain.DefaultWeights()

	for _, entry := range []struct {
		name   string
		target *float64
	}{
		{"WEIGHT_HAZARD", &w.Hazard},
		{"WEIGHT_SOCIAL", &w.Social},
		{"WEIGHT_ECONOMIC", &w.Economic},
	} {
		s := os.Getenv(entry.name)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Weights{}, fmt.Errorf("invalid %s: %w", entry.name, err)
		}
		*entry.target = f
	}

	if err := w.Validate(); err != nil {
		return domain.Weights{}, err
	}
	return w, nil
}
