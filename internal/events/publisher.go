// Package events provides event publishing functionality.
package events

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/schema"
)

// Publisher publishes assessment and speech operation events to separate Kafka topics.
type Publisher struct {
	writerAssessment *kafka.Writer
	writerSpeech     *kafka.Writer
	principal        string
	topicAssessment  string
	topicSpeech      string
	enabled          bool
	metrics          *metrics.Metrics
	validator        *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicAssessment string
	TopicSpeech     string
	Principal       string
	Enabled         bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics
	v := schema.New()

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			metrics:   m,
			validator: v,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicAssessment: cfg.TopicAssessment,
			topicSpeech:     cfg.TopicSpeech,
			enabled:         false,
			metrics:         m,
			validator:       v,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicAssessment", cfg.TopicAssessment).
		Str("topicSpeech", cfg.TopicSpeech).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerAssessment: newWriter(cfg.Brokers, cfg.TopicAssessment, transport),
		writerSpeech:     newWriter(cfg.Brokers, cfg.TopicSpeech, transport),
		principal:        cfg.Principal,
		topicAssessment:  cfg.TopicAssessment,
		topicSpeech:      cfg.TopicSpeech,
		enabled:          true,
		metrics:          m,
		validator:        v,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishAssessment publishes an assessment event keyed by session id.
func (p *Publisher) PublishAssessment(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerAssessment, p.topicAssessment, "assessment", key, event)
}

// PublishSpeech publishes a recognize-once or synthesis event.
func (p *Publisher) PublishSpeech(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerSpeech, p.topicSpeech, "speech", key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	if err := p.validator.Validate(event); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Refusing to publish invalid event")
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerAssessment != nil {
		if e := p.writerAssessment.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing assessment writer")
			err = e
		}
	}
	if p.writerSpeech != nil {
		if e := p.writerSpeech.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing speech writer")
			err = e
		}
	}
	return err
}
