package publish

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewKafkaPublisher_RequiresBrokersAndTopic(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "drilling-alerts"); err == nil {
		t.Error("no brokers should be an error")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
		t.Error("empty topic should be an error")
	}
}

func TestNewKafkaFeedbackSource_RequiresBrokersAndTopic(t *testing.T) {
	if _, err := NewKafkaFeedbackSource(nil, "drilling-feedback", "g"); err == nil {
		t.Error("no brokers should be an error")
	}
	if _, err := NewKafkaFeedbackSource([]string{"localhost:9092"}, "", "g"); err == nil {
		t.Error("empty topic should be an error")
	}
}

func TestKafkaFeedbackSource_NilReceiverNext(t *testing.T) {
	// A nil source stored in the interface must fail the read, not panic the
	// feedback drain.
	var s *KafkaFeedbackSource
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	if !errors.Is(err, ErrNoFeedbackSource) {
		t.Errorf("Next on nil source = %v, want ErrNoFeedbackSource", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil source = %v", err)
	}
}

func TestKafkaPublisher_NilReceiverPublish(t *testing.T) {
	var p *KafkaPublisher
	if err := p.Publish(context.Background(), nil); err != nil {
		t.Errorf("Publish on nil publisher = %v", err)
	}
	if err := p.PublishStatus(context.Background(), Status{Kind: StatusRecalibrated}); err != nil {
		t.Errorf("PublishStatus on nil publisher = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close on nil publisher = %v", err)
	}
}
