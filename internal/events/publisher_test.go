package events

import (
	"context"
	"errors"
	"testing"

	"speech-assessment-service/internal/models"
	"speech-assessment-service/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerAssessment != nil || p.writerSpeech != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicAssessment: "test.assessment",
		TopicSpeech:     "test.speech",
	})
	defer p.Close()

	if !p.enabled {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerAssessment.Topic != "test.assessment" {
		t.Errorf("expected assessment writer topic, got %s", p.writerAssessment.Topic)
	}
	if p.writerSpeech.Topic != "test.speech" {
		t.Errorf("expected speech writer topic, got %s", p.writerSpeech.Topic)
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:         false,
		Brokers:         []string{"localhost:9092"},
		TopicAssessment: "test.assessment",
		TopicSpeech:     "test.speech",
		Principal:       "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicAssessment != "test.assessment" {
		t.Errorf("expected assessment topic, got %s", p.topicAssessment)
	}
	if p.topicSpeech != "test.speech" {
		t.Errorf("expected speech topic, got %s", p.topicSpeech)
	}
}

func TestPublisher_PublishAssessment_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := models.AssessmentEvent{
		EventType: models.EventAssessmentCompleted,
		SessionID: "sess-1",
		Timestamp: 1700000000000,
	}
	if err := p.PublishAssessment(context.Background(), "sess-1", ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishSpeech_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := models.SpeechEvent{
		EventType: models.EventSynthesisDone,
		RequestID: "req-1",
		Status:    "completed",
		Timestamp: 1700000000000,
	}
	if err := p.PublishSpeech(context.Background(), "req-1", ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RejectsInvalidEvent(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishAssessment(context.Background(), "k", models.AssessmentEvent{EventType: "bogus"})
	if !errors.Is(err, schema.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}

	err = p.PublishSpeech(context.Background(), "k", make(chan int))
	if !errors.Is(err, schema.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for unsupported type, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilPublisher(t *testing.T) {
	p := &Publisher{}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
