// Package ingest supplies telemetry windows to the cycle engine.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"predictive-drilling/engine/internal/window"
)

// Source yields the freshest telemetry window for a cycle. Latest never
// blocks: if no window has arrived yet (or since the last one), it returns
// ok false and the cycle is skipped.
type Source interface {
	Latest(ctx context.Context) (window.Window, bool, error)
	Close() error
}

// KafkaSource consumes JSON-encoded windows from the telemetry topic and
// keeps only the newest one. The detection loop samples it once per cycle;
// intermediate windows are deliberately dropped, the loop wants freshness,
// not history.
type KafkaSource struct {
	reader *kafka.Reader

	mu     sync.Mutex
	latest window.Window
	fresh  bool
	err    error

	done chan struct{}
}

// NewKafkaSource starts consuming windows in the background. brokers must be
// non-empty. Call Close when shutting down.
func NewKafkaSource(brokers []string, topic, groupID string) (*KafkaSource, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("ingest: brokers and topic are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	s := &KafkaSource{reader: reader, done: make(chan struct{})}
	go s.consume()
	return s, nil
}

func (s *KafkaSource) consume() {
	defer close(s.done)
	for {
		msg, err := s.reader.ReadMessage(context.Background())
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		var w window.Window
		if err := json.Unmarshal(msg.Value, &w); err != nil {
			continue
		}
		if w.Validate() != nil {
			continue
		}
		if w.End.IsZero() {
			w.End = w.Latest().Timestamp
		}
		s.mu.Lock()
		s.latest = w
		s.fresh = true
		s.mu.Unlock()
	}
}

// Latest returns the newest unconsumed window, if any. Each window is
// handed out once; a cycle arriving before new telemetry gets ok false.
func (s *KafkaSource) Latest(ctx context.Context) (window.Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return window.Window{}, false, s.err
	}
	if !s.fresh {
		return window.Window{}, false, nil
	}
	s.fresh = false
	return s.latest, true, nil
}

// Close stops the consumer.
func (s *KafkaSource) Close() error {
	err := s.reader.Close()
	<-s.done
	return err
}

// MemorySource is a test source fed explicitly with Push.
type MemorySource struct {
	mu     sync.Mutex
	latest window.Window
	fresh  bool
}

// NewMemorySource returns an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{}
}

// Push makes w the window the next Latest call returns.
func (s *MemorySource) Push(w window.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = w
	s.fresh = true
}

func (s *MemorySource) Latest(ctx context.Context) (window.Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return window.Window{}, false, nil
	}
	s.fresh = false
	return s.latest, true, nil
}

func (s *MemorySource) Close() error { return nil }

var (
	_ Source = (*KafkaSource)(nil)
	_ Source = (*MemorySource)(nil)
)
