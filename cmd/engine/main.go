// engine runs the drilling anomaly detection loop: it consumes telemetry
// windows from Kafka, fans them out to the prediction agents, reconciles the
// votes into alerts, and publishes the alert/status feed.
// Set KAFKA_BROKERS; DATABASE_URL and OTLP_ENDPOINT are optional.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predictive-drilling/engine/internal/adapt"
	"predictive-drilling/engine/internal/agent"
	"predictive-drilling/engine/internal/alert/repository"
	"predictive-drilling/engine/internal/config"
	"predictive-drilling/engine/internal/consensus"
	"predictive-drilling/engine/internal/db"
	"predictive-drilling/engine/internal/engine"
	"predictive-drilling/engine/internal/ingest"
	"predictive-drilling/engine/internal/physics"
	"predictive-drilling/engine/internal/publish"
	"predictive-drilling/engine/internal/telemetry"
	otelsetup "predictive-drilling/engine/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("engine: KAFKA_BROKERS is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "drilling-engine", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	bounds, err := physics.LoadBounds(cfg.PhysicsBoundsFile)
	if err != nil {
		log.Fatalf("physics bounds: %v", err)
	}
	checker := physics.NewChecker(bounds)
	registry := agent.NewDefaultRegistry()

	var (
		alerts  repository.Repository
		journal adapt.Journal
		audit   adapt.AuditStore
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer sqlDB.Close()
		alerts = repository.NewPostgresRepository(sqlDB)
		journal = adapt.NewPostgresJournal(sqlDB)
		audit = adapt.NewPostgresAuditStore(sqlDB)
	} else {
		log.Println("engine: DATABASE_URL not set; alerts and feedback journal are in-memory")
		alerts = repository.NewMemoryRepository()
		journal = adapt.NewMemoryJournal()
		audit = adapt.NewMemoryAuditStore()
	}

	source, err := ingest.NewKafkaSource(brokers, cfg.TelemetryTopic, cfg.KafkaGroupID)
	if err != nil {
		log.Fatalf("ingest: %v", err)
	}
	defer source.Close()

	publisher, err := publish.NewKafkaPublisher(brokers, cfg.AlertTopic)
	if err != nil {
		log.Fatalf("publish: %v", err)
	}
	defer publisher.Close()

	// Feedback is optional: without a topic the engine detects but never adapts.
	var feedback publish.FeedbackSource
	if cfg.FeedbackTopic != "" {
		kafkaFeedback, err := publish.NewKafkaFeedbackSource(brokers, cfg.FeedbackTopic, cfg.KafkaGroupID+"-feedback")
		if err != nil {
			log.Fatalf("feedback: %v", err)
		}
		defer kafkaFeedback.Close()
		feedback = kafkaFeedback
	} else {
		log.Println("engine: FEEDBACK_TOPIC not set; feedback adaptation disabled")
	}

	aggregator := consensus.New(consensus.Config{
		Thresholds: map[agent.Category]float64{
			agent.CategorySticking:       cfg.ThresholdSticking,
			agent.CategoryWashoutMudLoss: cfg.ThresholdWashoutMudLoss,
			agent.CategoryHoleCleaning:   cfg.ThresholdHoleCleaning,
			agent.CategoryROP:            cfg.ThresholdROP,
		},
		RecencyDecay:        cfg.RecencyDecay,
		CorroborationCycles: cfg.CorroborationCycles,
	}, alerts)

	controller := adapt.NewController(adapt.Config{
		Step:                cfg.AdaptationStep,
		DivergenceTripCount: cfg.DivergenceTripCount,
	}, registry, checker, journal, audit, alerts)

	metrics, err := telemetry.NewMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	emitter := otelsetup.NewEventEmitter(providers.LoggerProvider)
	tracer := providers.TracerProvider.Tracer("drilling.engine")

	eng := engine.New(engine.Config{
		Interval:    cfg.CycleIntervalDuration(),
		AgentBudget: cfg.AgentBudgetDuration(),
		PendingTTL:  cfg.PendingAlertTTLDuration(),
	}, registry, checker, aggregator, controller, alerts, source, publisher, feedback, emitter, metrics, tracer)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("engine: shutting down...")
		cancel()
	}()

	log.Printf("engine: detection cycle every %s (agent budget %s)", cfg.CycleIntervalDuration(), cfg.AgentBudgetDuration())
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("engine: %v", err)
	}
	log.Println("engine: stopped")

	// Give in-flight async emits time to land before the providers go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
}
