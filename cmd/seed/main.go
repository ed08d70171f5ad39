// seed publishes synthetic telemetry windows to Kafka for local testing.
// It simulates a drilling run and can steer it into a chosen anomaly so the
// full detect-alert-feedback path can be exercised without rig data.
// Set KAFKA_BROKERS and TELEMETRY_TOPIC; pick a scenario with -scenario.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"predictive-drilling/engine/internal/config"
	"predictive-drilling/engine/internal/window"
)

const windowSamples = 30

func main() {
	scenario := flag.String("scenario", "normal", "Scenario: normal, sticking, washout, holecleaning, mudloss")
	interval := flag.Duration("interval", 2*time.Second, "Publish interval")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("seed: KAFKA_BROKERS is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.TelemetryTopic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	log.Printf("seed: publishing %q windows to %s every %s", *scenario, cfg.TelemetryTopic, *interval)

	sim := newSimulator(*scenario)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("seed: stopped")
			return
		case <-ticker.C:
			w := sim.nextWindow(time.Now().UTC())
			payload, err := json.Marshal(w)
			if err != nil {
				log.Fatalf("seed: marshal: %v", err)
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err = writer.WriteMessages(writeCtx, kafka.Message{Value: payload})
			writeCancel()
			if err != nil {
				log.Printf("seed: kafka write failed: %v", err)
			}
		}
	}
}

// simulator produces plausible surface measurements around a slowly deepening
// well, then distorts the channels the chosen scenario would distort.
type simulator struct {
	scenario string
	rng      *rand.Rand
	depth    float64
	ticks    int
}

func newSimulator(scenario string) *simulator {
	return &simulator{
		scenario: scenario,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		depth:    8000,
	}
}

func (s *simulator) nextWindow(end time.Time) window.Window {
	s.ticks++
	// Anomalies ramp in after a warm-up so the first cycles look healthy.
	severity := 0.0
	if s.ticks > 10 {
		severity = float64(s.ticks-10) / 20
		if severity > 1 {
			severity = 1
		}
	}

	samples := make([]window.Sample, windowSamples)
	for i := range samples {
		t := end.Add(-time.Duration(windowSamples-1-i) * time.Second)
		s.depth += 0.02
		smp := window.Sample{
			Timestamp: t,
			Depth:     s.depth,
			WOB:       25 + s.rng.NormFloat64()*1.5,
			ROP:       60 + s.rng.NormFloat64()*4,
			RPM:       120 + s.rng.NormFloat64()*3,
			Torque:    12 + s.rng.NormFloat64()*0.6,
			SPP:       3200 + s.rng.NormFloat64()*40,
			FlowRate:  650 + s.rng.NormFloat64()*10,
			ECD:       12.5 + s.rng.NormFloat64()*0.05,
			HookLoad:  220 + s.rng.NormFloat64()*3,
		}
		s.distort(&smp, severity)
		samples[i] = smp
	}
	w, err := window.New(samples)
	if err != nil {
		// Timestamps above are strictly increasing; this cannot happen.
		log.Fatalf("seed: %v", err)
	}
	return w
}

func (s *simulator) distort(smp *window.Sample, severity float64) {
	switch s.scenario {
	case "sticking":
		smp.Torque += 8 * severity
		smp.HookLoad += 60 * severity
		smp.RPM -= 40 * severity
		smp.ROP -= 30 * severity
	case "washout":
		smp.SPP -= 900 * severity
		smp.FlowRate += 30 * severity
	case "mudloss":
		smp.FlowRate -= 120 * severity
		smp.ECD -= 0.8 * severity
	case "holecleaning":
		smp.ROP += 40 * severity
		smp.FlowRate -= 200 * severity
		smp.ECD += 0.9 * severity
	}
}
