// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// CycleInterval is the detection cycle period (e.g. "2s"). One fan-out/aggregate/publish pass per interval.
	CycleInterval string `mapstructure:"CYCLE_INTERVAL"`
	// AgentBudget is the per-cycle deadline for a single agent Predict call (e.g. "1500ms").
	// An agent that misses the budget is an absent vote for that cycle, never an error.
	AgentBudget string `mapstructure:"AGENT_BUDGET"`
	// CorroborationCycles is how many consecutive cycles a single agent's signal stays eligible
	// as a corroborating vote (e.g. 3). Must be >= 2 for single-agent corroboration to work.
	CorroborationCycles int `mapstructure:"CORROBORATION_CYCLES"`
	// RecencyDecay is the per-cycle multiplier applied to votes carried from earlier cycles (0..1).
	RecencyDecay float64 `mapstructure:"RECENCY_DECAY"`

	// ThresholdSticking is the weighted-vote threshold for the sticking category.
	ThresholdSticking float64 `mapstructure:"THRESHOLD_STICKING"`
	// ThresholdWashoutMudLoss is the weighted-vote threshold for washout/mud-loss alerts.
	ThresholdWashoutMudLoss float64 `mapstructure:"THRESHOLD_WASHOUT_MUD_LOSS"`
	// ThresholdHoleCleaning is the weighted-vote threshold for hole-cleaning alerts.
	ThresholdHoleCleaning float64 `mapstructure:"THRESHOLD_HOLE_CLEANING"`
	// ThresholdROP is the weighted-vote threshold for ROP optimization advisories.
	ThresholdROP float64 `mapstructure:"THRESHOLD_ROP"`

	// AdaptationStep is the per-feedback sensitivity step applied by the adaptation controller.
	AdaptationStep float64 `mapstructure:"ADAPTATION_STEP"`
	// DivergenceTripCount is the number of consecutive rejected deltas that trips ModelDivergence.
	DivergenceTripCount int `mapstructure:"DIVERGENCE_TRIP_COUNT"`
	// PendingAlertTTL is how long a Pending alert lives without feedback before it expires (e.g. "10m").
	PendingAlertTTL string `mapstructure:"PENDING_ALERT_TTL"`

	// PhysicsBoundsFile is an optional YAML file overriding the built-in physics constraint bounds.
	PhysicsBoundsFile string `mapstructure:"PHYSICS_BOUNDS_FILE"`

	// DatabaseURL is the Postgres DSN for the alert store and feedback journal; empty runs in-memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// Empty disables Kafka; the engine then uses in-memory transport (tests, local dev).
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryTopic is the Kafka topic carrying inbound telemetry windows.
	TelemetryTopic string `mapstructure:"TELEMETRY_TOPIC"`
	// AlertTopic is the Kafka topic for the outbound alert and status feed.
	AlertTopic string `mapstructure:"ALERT_TOPIC"`
	// FeedbackTopic is the Kafka topic carrying operator feedback events back to the engine.
	FeedbackTopic string `mapstructure:"FEEDBACK_TOPIC"`
	// KafkaGroupID is the consumer group ID for the engine's readers.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// LokiURL is the Grafana Loki base URL for the feed worker (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics/logs; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("CYCLE_INTERVAL", "2s")
	v.SetDefault("AGENT_BUDGET", "1500ms")
	v.SetDefault("CORROBORATION_CYCLES", 3)
	v.SetDefault("RECENCY_DECAY", 0.85)
	v.SetDefault("THRESHOLD_STICKING", 0.60)
	v.SetDefault("THRESHOLD_WASHOUT_MUD_LOSS", 0.70)
	v.SetDefault("THRESHOLD_HOLE_CLEANING", 0.65)
	v.SetDefault("THRESHOLD_ROP", 0.65)
	v.SetDefault("ADAPTATION_STEP", 0.05)
	v.SetDefault("DIVERGENCE_TRIP_COUNT", 5)
	v.SetDefault("PENDING_ALERT_TTL", "10m")
	v.SetDefault("PHYSICS_BOUNDS_FILE", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_TOPIC", "drilling-telemetry")
	v.SetDefault("ALERT_TOPIC", "drilling-alerts")
	v.SetDefault("FEEDBACK_TOPIC", "drilling-feedback")
	v.SetDefault("KAFKA_GROUP_ID", "drilling-engine")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if _, err := time.ParseDuration(cfg.CycleInterval); err != nil {
		return nil, fmt.Errorf("config: CYCLE_INTERVAL %q is not a duration", cfg.CycleInterval)
	}
	if _, err := time.ParseDuration(cfg.AgentBudget); err != nil {
		return nil, fmt.Errorf("config: AGENT_BUDGET %q is not a duration", cfg.AgentBudget)
	}
	if cfg.CorroborationCycles < 2 {
		return nil, errors.New("config: CORROBORATION_CYCLES must be at least 2")
	}
	if cfg.RecencyDecay <= 0 || cfg.RecencyDecay > 1 {
		return nil, errors.New("config: RECENCY_DECAY must be in (0, 1]")
	}
	for name, th := range map[string]float64{
		"THRESHOLD_STICKING":         cfg.ThresholdSticking,
		"THRESHOLD_WASHOUT_MUD_LOSS": cfg.ThresholdWashoutMudLoss,
		"THRESHOLD_HOLE_CLEANING":    cfg.ThresholdHoleCleaning,
		"THRESHOLD_ROP":              cfg.ThresholdROP,
	} {
		if th <= 0 || th >= 1 {
			return nil, fmt.Errorf("config: %s must be in (0, 1)", name)
		}
	}
	if cfg.AdaptationStep <= 0 || cfg.AdaptationStep > 0.5 {
		return nil, errors.New("config: ADAPTATION_STEP must be in (0, 0.5]")
	}
	if cfg.DivergenceTripCount < 1 {
		return nil, errors.New("config: DIVERGENCE_TRIP_COUNT must be at least 1")
	}

	return &cfg, nil
}

// CycleIntervalDuration parses CycleInterval as a time.Duration. Returns 2s if unset or invalid.
func (c *Config) CycleIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.CycleInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// AgentBudgetDuration parses AgentBudget as a time.Duration. Returns 1500ms if unset or invalid.
func (c *Config) AgentBudgetDuration() time.Duration {
	d, err := time.ParseDuration(c.AgentBudget)
	if err != nil || d <= 0 {
		return 1500 * time.Millisecond
	}
	return d
}

// PendingAlertTTLDuration parses PendingAlertTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) PendingAlertTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.PendingAlertTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka transport is enabled (non-empty list) and to create readers and writers.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
