package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"predictive-drilling/engine/internal/alert/domain"
)

// KafkaPublisher implements Publisher using segmentio/kafka-go. Alerts are
// keyed by category so per-category ordering survives partitioning.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher creates a publisher writing the alert feed to the given
// topic. brokers must be non-empty. Call Close when shutting down.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("publish: brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer, topic: topic}, nil
}

// Publish writes one alert envelope. Uses a short timeout so slow Kafka does
// not stall the detection loop.
func (p *KafkaPublisher) Publish(ctx context.Context, a *domain.Alert) error {
	if p == nil || p.writer == nil || a == nil {
		return nil
	}
	return p.write(ctx, []byte(a.Category), Envelope{Type: "alert", Alert: a})
}

// PublishStatus writes one status envelope.
func (p *KafkaPublisher) PublishStatus(ctx context.Context, s Status) error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.write(ctx, []byte(s.Kind), Envelope{Type: "status", Status: &s})
}

func (p *KafkaPublisher) write(ctx context.Context, key []byte, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   key,
		Value: payload,
	})
	if err != nil {
		log.Printf("publish: kafka write failed: %v", err)
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// KafkaFeedbackSource reads feedback events from the feedback topic with a
// consumer group, so restarts resume from the committed offset and delivery
// is at-least-once. The adaptation journal absorbs the resulting duplicates.
type KafkaFeedbackSource struct {
	reader *kafka.Reader
}

// NewKafkaFeedbackSource creates a feedback source. brokers must be non-empty.
func NewKafkaFeedbackSource(brokers []string, topic, groupID string) (*KafkaFeedbackSource, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("publish: brokers and topic are required")
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
	return &KafkaFeedbackSource{reader: reader}, nil
}

// ErrNoFeedbackSource is returned by Next on an unconfigured source.
var ErrNoFeedbackSource = errors.New("publish: feedback source not configured")

// Next blocks for the next feedback event or ctx cancellation.
func (s *KafkaFeedbackSource) Next(ctx context.Context) (domain.FeedbackEvent, error) {
	var ev domain.FeedbackEvent
	if s == nil || s.reader == nil {
		return ev, ErrNoFeedbackSource
	}
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}

// Close closes the Kafka reader.
func (s *KafkaFeedbackSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

var (
	_ Publisher      = (*KafkaPublisher)(nil)
	_ FeedbackSource = (*KafkaFeedbackSource)(nil)
)
