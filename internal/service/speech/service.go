package speech

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/models"
	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/service/session"
)

// Status is the outcome of a single-shot operation.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusRecognized Status = "recognized"
	StatusNoMatch    Status = "no_match"
	StatusCanceled   Status = "canceled"
)

// SynthesisOutcome is what Service.Synthesize reports. Audio is WAV.
type SynthesisOutcome struct {
	RequestID    string        `json:"requestId"`
	Status       Status        `json:"status"`
	Language     string        `json:"language"`
	Audio        []byte        `json:"-"`
	Cancellation *Cancellation `json:"cancellation,omitempty"`
}

// RecognitionOutcome is what Service.RecognizeOnce reports. Echo holds the
// synthesis of the recognized text.
type RecognitionOutcome struct {
	RequestID    string            `json:"requestId"`
	Status       Status            `json:"status"`
	Language     string            `json:"language"`
	Text         string            `json:"text,omitempty"`
	Cancellation *Cancellation     `json:"cancellation,omitempty"`
	Echo         *SynthesisOutcome `json:"echo,omitempty"`
}

// Publisher receives single-shot operation events.
type Publisher interface {
	PublishSpeech(ctx context.Context, key string, event any) error
}

type ServiceOptions struct {
	Synthesizer     Synthesizer
	SynthesizerName string
	Recognizer      Recognizer
	RecognizerName  string
	Languages       *languages.Catalog
	Metrics         *metrics.Metrics
	Publisher       Publisher
}

// Service runs the peripheral Synthesize and RecognizeOnce operations.
// No retries.
type Service struct {
	synth     Synthesizer
	synthName string
	rec       Recognizer
	recName   string
	languages *languages.Catalog
	metrics   *metrics.Metrics
	publisher Publisher
	log       zerolog.Logger
}

func NewService(opts ServiceOptions) *Service {
	if opts.Languages == nil {
		opts.Languages = languages.MustDefault()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	return &Service{
		synth:     opts.Synthesizer,
		synthName: opts.SynthesizerName,
		rec:       opts.Recognizer,
		recName:   opts.RecognizerName,
		languages: opts.Languages,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		log:       logging.WithComponent("speech"),
	}
}

// Synthesize converts text to speech. Blank text fails with ErrEmptyText
// before the remote call; a remote cancellation is reported through Status.
func (s *Service) Synthesize(ctx context.Context, text, language string) (*SynthesisOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	lang, err := s.languages.Resolve(language)
	if err != nil {
		return nil, err
	}
	return s.synthesize(ctx, session.NewID(), text, lang)
}

func (s *Service) synthesize(ctx context.Context, requestId, text, lang string) (*SynthesisOutcome, error) {
	log := logging.WithOperation("synthesize", s.synthName, lang)
	start := time.Now()

	res, err := s.synth.Synthesize(ctx, text, lang)
	if err != nil {
		s.metrics.RecordOperation("synthesize", s.synthName, "error", time.Since(start).Seconds())
		log.Error().Err(err).Msg("Synthesis failed")
		return nil, err
	}

	out := &SynthesisOutcome{
		RequestID: requestId,
		Status:    StatusCompleted,
		Language:  lang,
		Audio:     res.Audio,
	}
	if !res.Completed {
		out.Status = StatusCanceled
		out.Cancellation = res.Cancellation
		out.Audio = nil
	}

	elapsed := time.Since(start)
	s.metrics.RecordOperation("synthesize", s.synthName, string(out.Status), elapsed.Seconds())

	logEvent := log.Info()
	if out.Cancellation != nil {
		logEvent = log.Warn().
			Str("reason", out.Cancellation.ReasonName).
			Str("errorDetails", out.Cancellation.ErrorDetails)
	}
	logEvent.
		Str("requestId", requestId).
		Str("status", string(out.Status)).
		Int("audioBytes", len(out.Audio)).
		Msg("Synthesis finished")

	s.publish(ctx, models.SpeechEvent{
		EventType: models.EventSynthesisDone,
		RequestID: requestId,
		Provider:  s.synthName,
		Language:  lang,
		Status:    string(out.Status),
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		ElapsedMs: elapsed.Milliseconds(),
	})
	return out, nil
}

// RecognizeOnce recognizes a single utterance and, on success, synthesizes
// the recognized text back. An empty audioPath selects the microphone.
func (s *Service) RecognizeOnce(ctx context.Context, language, audioPath string) (*RecognitionOutcome, error) {
	lang, err := s.languages.Resolve(language)
	if err != nil {
		return nil, err
	}

	requestId := session.NewID()
	log := logging.WithOperation("recognize", s.recName, lang)
	start := time.Now()

	res, err := s.rec.RecognizeOnce(ctx, lang, audioPath)
	if err != nil {
		s.metrics.RecordOperation("recognize", s.recName, "error", time.Since(start).Seconds())
		log.Error().Err(err).Str("audioPath", audioPath).Msg("Recognition failed")
		return nil, err
	}

	out := &RecognitionOutcome{RequestID: requestId, Language: lang}
	switch res.Reason {
	case ReasonRecognizedSpeech:
		out.Status = StatusRecognized
		out.Text = res.Text
	case ReasonNoMatch:
		out.Status = StatusNoMatch
	default:
		out.Status = StatusCanceled
		out.Cancellation = res.Cancellation
	}

	elapsed := time.Since(start)
	s.metrics.RecordOperation("recognize", s.recName, string(out.Status), elapsed.Seconds())
	log.Info().
		Str("requestId", requestId).
		Str("status", string(out.Status)).
		Str("text", out.Text).
		Msg("Recognition finished")

	s.publish(ctx, models.SpeechEvent{
		EventType: models.EventRecognitionDone,
		RequestID: requestId,
		Provider:  s.recName,
		Language:  lang,
		Status:    string(out.Status),
		Text:      out.Text,
		Timestamp: time.Now().UnixMilli(),
		ElapsedMs: elapsed.Milliseconds(),
	})

	if out.Status == StatusRecognized && strings.TrimSpace(out.Text) != "" && s.synth != nil {
		echo, err := s.synthesize(ctx, requestId, out.Text, lang)
		if err != nil {
			log.Warn().Err(err).Msg("Echo synthesis failed")
		} else {
			out.Echo = echo
		}
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, ev models.SpeechEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSpeech(context.WithoutCancel(ctx), ev.RequestID, ev); err != nil {
		s.log.Warn().Err(err).Str("eventType", ev.EventType).Msg("Failed to publish speech event")
	}
}
