package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CycleInterval != "2s" {
		t.Errorf("CycleInterval = %q, want 2s", cfg.CycleInterval)
	}
	if cfg.CorroborationCycles != 3 {
		t.Errorf("CorroborationCycles = %d, want 3", cfg.CorroborationCycles)
	}
	if cfg.ThresholdSticking != 0.60 {
		t.Errorf("ThresholdSticking = %v, want 0.60", cfg.ThresholdSticking)
	}
	if cfg.ThresholdWashoutMudLoss != 0.70 {
		t.Errorf("ThresholdWashoutMudLoss = %v, want 0.70", cfg.ThresholdWashoutMudLoss)
	}
	if cfg.TelemetryTopic != "drilling-telemetry" {
		t.Errorf("TelemetryTopic = %q", cfg.TelemetryTopic)
	}
	if cfg.AlertTopic != "drilling-alerts" {
		t.Errorf("AlertTopic = %q", cfg.AlertTopic)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL should default empty, got %q", cfg.DatabaseURL)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CYCLE_INTERVAL", "500ms")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CycleIntervalDuration() != 500*time.Millisecond {
		t.Errorf("CycleIntervalDuration = %v, want 500ms", cfg.CycleIntervalDuration())
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) != 2 || brokers[0] != "b1:9092" || brokers[1] != "b2:9092" {
		t.Errorf("KafkaBrokersList = %v", brokers)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad interval", "CYCLE_INTERVAL", "soon", "CYCLE_INTERVAL"},
		{"bad budget", "AGENT_BUDGET", "fast", "AGENT_BUDGET"},
		{"corroboration too low", "CORROBORATION_CYCLES", "1", "CORROBORATION_CYCLES"},
		{"decay too high", "RECENCY_DECAY", "1.5", "RECENCY_DECAY"},
		{"decay zero", "RECENCY_DECAY", "0", "RECENCY_DECAY"},
		{"threshold too high", "THRESHOLD_STICKING", "1.0", "THRESHOLD_STICKING"},
		{"step too large", "ADAPTATION_STEP", "0.6", "ADAPTATION_STEP"},
		{"trip count zero", "DIVERGENCE_TRIP_COUNT", "0", "DIVERGENCE_TRIP_COUNT"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load with %s=%s should fail", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %s", err.Error(), tc.want)
			}
		})
	}
}

func TestDurationHelpers_Fallback(t *testing.T) {
	cfg := &Config{}
	if cfg.CycleIntervalDuration() != 2*time.Second {
		t.Errorf("CycleIntervalDuration fallback = %v", cfg.CycleIntervalDuration())
	}
	if cfg.AgentBudgetDuration() != 1500*time.Millisecond {
		t.Errorf("AgentBudgetDuration fallback = %v", cfg.AgentBudgetDuration())
	}
	if cfg.PendingAlertTTLDuration() != 10*time.Minute {
		t.Errorf("PendingAlertTTLDuration fallback = %v", cfg.PendingAlertTTLDuration())
	}
}

func TestKafkaBrokersList_Empty(t *testing.T) {
	var cfg *Config
	if got := cfg.KafkaBrokersList(); got != nil {
		t.Errorf("nil config: %v", got)
	}
	cfg = &Config{KafkaBrokers: " , "}
	if got := cfg.KafkaBrokersList(); len(got) != 0 {
		t.Errorf("whitespace brokers: %v", got)
	}
}
