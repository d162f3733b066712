// Package mock provides a scripted speech provider for running without cloud
// credentials. Assessment sessions replay a Script of events from a
// provider-owned goroutine, the way the remote SDK delivers callbacks.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"speech-assessment-service/internal/audio/wav"
	"speech-assessment-service/internal/service/speech"
)

// EventKind selects which callback an Event triggers.
type EventKind int

const (
	EventStarted EventKind = iota
	EventRecognized
	EventStopped
	EventCanceled
)

// Event is one scripted callback, delivered after Delay.
type Event struct {
	Kind         EventKind
	Delay        time.Duration
	Utterance    speech.Utterance
	Cancellation speech.Cancellation
}

// Script is the ordered event sequence of one session.
type Script []Event

// Recognized is a shorthand for a RecognizedSpeech event.
func Recognized(text string, content *speech.ContentScores) Event {
	return Event{
		Kind: EventRecognized,
		Utterance: speech.Utterance{
			Reason: speech.ReasonRecognizedSpeech,
			Text:   text,
			Pronunciation: speech.PronunciationScores{
				Accuracy: 92, Fluency: 88, Completeness: 100, Pronunciation: 90, Prosody: 85,
			},
			Content: content,
		},
	}
}

// DefaultScript models a short answer on the default topic.
var DefaultScript = Script{
	{Kind: EventStarted},
	withDelay(Recognized("Information technology changed how we work.", nil), 50*time.Millisecond),
	withDelay(Recognized("We can talk to anyone in the world instantly.", nil), 50*time.Millisecond),
	withDelay(Recognized("It also created new kinds of jobs.", &speech.ContentScores{
		Grammar: 86, Vocabulary: 79, Topic: 91,
	}), 50*time.Millisecond),
	{Kind: EventStopped, Delay: 20 * time.Millisecond},
}

func withDelay(e Event, d time.Duration) Event {
	e.Delay = d
	return e
}

// DefaultRecognitions are returned in turn by RecognizeOnce.
var DefaultRecognitions = []speech.Recognition{
	{Reason: speech.ReasonRecognizedSpeech, Text: "I want to cancel my subscription"},
	{Reason: speech.ReasonRecognizedSpeech, Text: "Yes please go ahead"},
	{Reason: speech.ReasonRecognizedSpeech, Text: "Can you help me with my account"},
	{Reason: speech.ReasonNoMatch},
	{Reason: speech.ReasonRecognizedSpeech, Text: "Thank you very much"},
}

// Provider implements speech.Assessor, speech.Recognizer and speech.Synthesizer.
type Provider struct {
	script       Script
	recognitions []speech.Recognition

	mu       sync.Mutex
	next     int
	sessions []*Session
}

// New creates a provider replaying DefaultScript and DefaultRecognitions.
func New() *Provider {
	return NewWithScript(DefaultScript)
}

// NewWithScript creates a provider whose sessions replay script.
func NewWithScript(script Script) *Provider {
	return &Provider{
		script:       script,
		recognitions: DefaultRecognitions,
	}
}

// SetRecognitions replaces the RecognizeOnce sequence.
func (p *Provider) SetRecognitions(r []speech.Recognition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recognitions = r
	p.next = 0
}

// Sessions returns every session opened so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

func (p *Provider) NewAssessmentSession(ctx context.Context, req speech.AssessmentRequest) (speech.AssessmentSession, error) {
	s := &Session{
		Request: req,
		script:  p.script,
		stopped: make(chan struct{}),
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *Provider) RecognizeOnce(ctx context.Context, language, audioPath string) (*speech.Recognition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.recognitions) == 0 {
		return &speech.Recognition{Reason: speech.ReasonNoMatch}, nil
	}
	r := p.recognitions[p.next%len(p.recognitions)]
	p.next++
	return &r, nil
}

func (p *Provider) Synthesize(ctx context.Context, text, language string) (*speech.Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, speech.ErrEmptyText
	}
	// 50ms of silence per word keeps the output proportional to the input.
	words := len(strings.Fields(text))
	return &speech.Synthesis{
		Completed: true,
		Audio:     wav.Encode(16000, 1, 16, make([]byte, words*800*2)),
	}, nil
}

// Session replays a script. Safe for concurrent use.
type Session struct {
	Request speech.AssessmentRequest

	script Script

	mu         sync.Mutex
	started    bool
	stopCalls  int
	closed     bool
	stopOnce   sync.Once
	stopped    chan struct{}
	wg         sync.WaitGroup
	deliveries int
}

func (s *Session) Start(ctx context.Context, cb speech.Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock session closed")
	}
	if s.started {
		return fmt.Errorf("mock session already started")
	}
	s.started = true

	s.wg.Add(1)
	go s.replay(cb)
	return nil
}

func (s *Session) replay(cb speech.Callback) {
	defer s.wg.Done()
	for _, ev := range s.script {
		if ev.Delay > 0 {
			select {
			case <-time.After(ev.Delay):
			case <-s.stopped:
				return
			}
		}
		select {
		case <-s.stopped:
			return
		default:
		}

		switch ev.Kind {
		case EventStarted:
			cb.OnSessionStarted("mock-session")
		case EventRecognized:
			cb.OnRecognized(ev.Utterance)
		case EventStopped:
			cb.OnSessionStopped("mock-session")
		case EventCanceled:
			cb.OnCanceled(ev.Cancellation)
		}

		s.mu.Lock()
		s.deliveries++
		s.mu.Unlock()
	}
}

// Stop halts the replay. Idempotent.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopCalls++
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

// Close stops the replay and waits for its goroutine.
func (s *Session) Close() error {
	s.Stop(context.Background())
	s.wg.Wait()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// StopCalls reports how many times Stop was called.
func (s *Session) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCalls
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Deliveries reports how many scripted events reached the callback.
func (s *Session) Deliveries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries
}
