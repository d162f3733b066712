package speech

import (
	"context"
	"errors"
	"sync"
	"testing"

	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/models"
)

// testSynthesizer implements Synthesizer for testing
type testSynthesizer struct {
	result *Synthesis
	err    error
	calls  []string
}

func (s *testSynthesizer) Synthesize(ctx context.Context, text, language string) (*Synthesis, error) {
	s.calls = append(s.calls, language+":"+text)
	return s.result, s.err
}

// testRecognizer implements Recognizer for testing
type testRecognizer struct {
	result *Recognition
	err    error
	paths  []string
}

func (r *testRecognizer) RecognizeOnce(ctx context.Context, language, audioPath string) (*Recognition, error) {
	r.paths = append(r.paths, audioPath)
	return r.result, r.err
}

type testPublisher struct {
	mu     sync.Mutex
	events []models.SpeechEvent
}

func (p *testPublisher) PublishSpeech(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(models.SpeechEvent))
	return nil
}

func completed() *Synthesis {
	return &Synthesis{Completed: true, Audio: []byte("RIFF....WAVE")}
}

func newTestService(synth Synthesizer, rec Recognizer, pub Publisher) *Service {
	return NewService(ServiceOptions{
		Synthesizer:     synth,
		SynthesizerName: "test",
		Recognizer:      rec,
		RecognizerName:  "test",
		Publisher:       pub,
	})
}

func TestSynthesize_Completed(t *testing.T) {
	synth := &testSynthesizer{result: completed()}
	pub := &testPublisher{}
	s := newTestService(synth, nil, pub)

	out, err := s.Synthesize(context.Background(), "Hello there", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusCompleted || len(out.Audio) == 0 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.Language != "en-US" || synth.calls[0] != "en-US:Hello there" {
		t.Errorf("expected default language, got %s / %v", out.Language, synth.calls)
	}
	if len(pub.events) != 1 || pub.events[0].EventType != models.EventSynthesisDone || pub.events[0].Status != "completed" {
		t.Errorf("unexpected events: %+v", pub.events)
	}
}

func TestSynthesize_Canceled(t *testing.T) {
	cn := NewCancellation(CancelError, "ServiceTimeout", "took too long")
	synth := &testSynthesizer{result: &Synthesis{Audio: []byte("partial"), Cancellation: &cn}}
	s := newTestService(synth, nil, nil)

	out, err := s.Synthesize(context.Background(), "Hello", "en-US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != StatusCanceled {
		t.Errorf("expected canceled, got %s", out.Status)
	}
	if out.Cancellation == nil || out.Cancellation.ErrorDetails != "took too long" {
		t.Errorf("expected cancellation details, got %+v", out.Cancellation)
	}
	if out.Audio != nil {
		t.Error("expected no audio on cancellation")
	}
}

func TestSynthesize_Rejections(t *testing.T) {
	synth := &testSynthesizer{result: completed()}
	s := newTestService(synth, nil, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Synthesize(context.Background(), text, "en-US"); !errors.Is(err, ErrEmptyText) {
			t.Errorf("text %q: expected ErrEmptyText, got %v", text, err)
		}
	}
	if _, err := s.Synthesize(context.Background(), "hi", "xx-XX"); !errors.Is(err, languages.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if len(synth.calls) != 0 {
		t.Errorf("expected no remote calls, got %d", len(synth.calls))
	}
}

func TestSynthesize_ProviderError(t *testing.T) {
	remoteErr := errors.New("network down")
	s := newTestService(&testSynthesizer{err: remoteErr}, nil, nil)

	if _, err := s.Synthesize(context.Background(), "hi", "en-US"); !errors.Is(err, remoteErr) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestRecognizeOnce_Statuses(t *testing.T) {
	cn := NewCancellation(CancelError, "AuthenticationFailure", "bad key")

	tests := []struct {
		name       string
		result     *Recognition
		wantStatus Status
		wantEcho   bool
	}{
		{"recognized", &Recognition{Reason: ReasonRecognizedSpeech, Text: "good morning"}, StatusRecognized, true},
		{"no match", &Recognition{Reason: ReasonNoMatch}, StatusNoMatch, false},
		{"canceled", &Recognition{Reason: ReasonCanceled, Cancellation: &cn}, StatusCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &testSynthesizer{result: completed()}
			pub := &testPublisher{}
			s := newTestService(synth, &testRecognizer{result: tt.result}, pub)

			out, err := s.RecognizeOnce(context.Background(), "fr-FR", "clip.wav")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, out.Status)
			}
			if (out.Echo != nil) != tt.wantEcho {
				t.Errorf("expected echo=%v, got %+v", tt.wantEcho, out.Echo)
			}
			if tt.wantEcho && synth.calls[0] != "fr-FR:good morning" {
				t.Errorf("expected recognized text synthesized back, got %v", synth.calls)
			}
			if tt.wantStatus == StatusCanceled && out.Cancellation.ErrorCode != "AuthenticationFailure" {
				t.Errorf("expected cancellation details, got %+v", out.Cancellation)
			}
			if pub.events[0].EventType != models.EventRecognitionDone {
				t.Errorf("expected recognition event first, got %+v", pub.events)
			}
		})
	}
}

func TestRecognizeOnce_EchoFailureKeepsRecognition(t *testing.T) {
	synth := &testSynthesizer{err: errors.New("tts down")}
	rec := &testRecognizer{result: &Recognition{Reason: ReasonRecognizedSpeech, Text: "hello"}}
	s := newTestService(synth, rec, nil)

	out, err := s.RecognizeOnce(context.Background(), "en-US", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "hello" || out.Echo != nil {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if rec.paths[0] != "" {
		t.Errorf("expected empty path forwarded for microphone, got %q", rec.paths[0])
	}
}

func TestRecognizeOnce_Errors(t *testing.T) {
	rec := &testRecognizer{err: ErrMicrophoneUnsupported}
	s := newTestService(nil, rec, nil)

	if _, err := s.RecognizeOnce(context.Background(), "en-US", ""); !errors.Is(err, ErrMicrophoneUnsupported) {
		t.Errorf("expected ErrMicrophoneUnsupported, got %v", err)
	}
	if _, err := s.RecognizeOnce(context.Background(), "zz", "a.wav"); !errors.Is(err, languages.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if len(rec.paths) != 1 {
		t.Errorf("expected one remote call, got %d", len(rec.paths))
	}
}

func TestCanceledError_Message(t *testing.T) {
	err := &CanceledError{
		Operation:    "assessment",
		Cancellation: NewCancellation(CancelError, "BadRequest", "invalid topic"),
	}
	want := "assessment canceled by remote service: reason=error code=BadRequest details=invalid topic"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
