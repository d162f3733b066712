// Package assessment turns a callback-driven continuous recognition session
// into one blocking call that returns the aggregated assessment.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/models"
	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/service/session"
	"speech-assessment-service/internal/service/speech"
)

var (
	// ErrNoResults means the session ended without a single utterance result,
	// so there are no content scores to report.
	ErrNoResults = errors.New("no recognition results received")

	// ErrEmptyTopic is returned before any remote call for a blank topic.
	ErrEmptyTopic = errors.New("topic must not be empty")

	// ErrEmptyAudio is returned by transports for a missing or empty upload.
	ErrEmptyAudio = errors.New("audio must not be empty")

	// ErrTimeout means no terminal event arrived within the maximum wait.
	ErrTimeout = errors.New("timed out waiting for recognition session to end")
)

const stopTimeout = 30 * time.Second

// Termination says which terminal event ended the session.
type Termination string

const (
	TerminationStopped  Termination = "stopped"
	TerminationCanceled Termination = "canceled"
)

// Request is one assessment call. An empty AudioPath selects the default
// microphone when the provider supports it.
type Request struct {
	AudioPath string
	Language  string
	Topic     string
}

// Result is the immutable outcome of an assessment. Content holds the
// scores of the last utterance; ContentAvailable is false when the service
// attached none.
type Result struct {
	SessionID        string               `json:"sessionId"`
	RemoteSessionID  string               `json:"remoteSessionId,omitempty"`
	Language         string               `json:"language"`
	Topic            string               `json:"topic"`
	Text             string               `json:"text"`
	Content          speech.ContentScores `json:"content"`
	ContentAvailable bool                 `json:"contentAvailable"`
	Utterances       []speech.Utterance   `json:"utterances"`
	Termination      Termination          `json:"termination"`
	Cancellation     *speech.Cancellation `json:"cancellation,omitempty"`
	ElapsedMs        int64                `json:"elapsedMs"`
}

// Publisher receives assessment events.
type Publisher interface {
	PublishAssessment(ctx context.Context, key string, event any) error
}

type Options struct {
	MaxWait       time.Duration
	MaxConcurrent int
	Languages     *languages.Catalog
	Metrics       *metrics.Metrics
	Publisher     Publisher
}

// Bridge drives assessment sessions. Safe for concurrent use; each call
// owns its own session state.
type Bridge struct {
	assessor  speech.Assessor
	languages *languages.Catalog
	maxWait   time.Duration
	slots     *semaphore.Weighted
	metrics   *metrics.Metrics
	publisher Publisher
	log       zerolog.Logger
}

func NewBridge(assessor speech.Assessor, opts Options) *Bridge {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Languages == nil {
		opts.Languages = languages.MustDefault()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	return &Bridge{
		assessor:  assessor,
		languages: opts.Languages,
		maxWait:   opts.MaxWait,
		slots:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		log:       logging.WithComponent("assessment"),
	}
}

// Assess opens a session, blocks until the remote service stops or cancels
// it, stops continuous recognition and returns the aggregated result.
//
// Errors: ErrEmptyTopic and languages.ErrUnsupported before any remote call;
// provider errors wrapped as-is; *speech.CanceledError for an error
// cancellation; ErrNoResults; ErrTimeout; ctx.Err().
func (b *Bridge) Assess(ctx context.Context, req Request) (*Result, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	lang, err := b.languages.Resolve(req.Language)
	if err != nil {
		return nil, err
	}

	queued := time.Now()
	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.slots.Release(1)

	sessionId := session.NewID()
	log := logging.WithSession(sessionId, lang)
	log.Info().Str("audioPath", req.AudioPath).Str("topic", topic).Msg("Opening assessment session")

	sess, err := b.assessor.NewAssessmentSession(ctx, speech.AssessmentRequest{
		AudioPath: req.AudioPath,
		Language:  lang,
		Topic:     topic,
	})
	if err != nil {
		return nil, fmt.Errorf("open assessment session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close assessment session")
		}
	}()

	c := newCollector(sessionId, log, b.metrics)
	if err := c.lifecycle.Start(); err != nil {
		return nil, err
	}

	start := time.Now()
	b.metrics.RecordSessionStart(start.Sub(queued).Seconds())

	res, failReason, err := b.run(ctx, sess, c, log)
	b.metrics.RecordSessionEnd(failReason, time.Since(start).Seconds())

	ev := models.AssessmentEvent{
		SessionID: sessionId,
		Language:  lang,
		Topic:     topic,
		Timestamp: time.Now().UnixMilli(),
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		log.Error().Err(err).Str("reason", failReason).Msg("Assessment failed")
		ev.EventType = models.EventAssessmentFailed
		ev.Error = err.Error()
		b.publish(ctx, sessionId, ev, log)
		return nil, err
	}

	res.SessionID = sessionId
	res.Language = lang
	res.Topic = topic
	res.ElapsedMs = ev.ElapsedMs

	ev.EventType = models.EventAssessmentCompleted
	ev.Text = res.Text
	ev.Utterances = len(res.Utterances)
	ev.Termination = string(res.Termination)
	if res.ContentAvailable {
		ev.Grammar = &res.Content.Grammar
		ev.Vocabulary = &res.Content.Vocabulary
		ev.TopicScore = &res.Content.Topic
	}
	b.publish(ctx, sessionId, ev, log)

	log.Info().
		Int("utterances", len(res.Utterances)).
		Str("termination", string(res.Termination)).
		Float64("grammar", res.Content.Grammar).
		Float64("vocabulary", res.Content.Vocabulary).
		Float64("topicScore", res.Content.Topic).
		Msg("Assessment completed")
	return res, nil
}

// run starts recognition, waits for the terminal event and always stops
// recognition afterwards. The returned reason labels failures for metrics.
func (b *Bridge) run(ctx context.Context, sess speech.AssessmentSession, c *collector, log zerolog.Logger) (*Result, string, error) {
	// Stop runs on every path, including a failed or abandoned Start whose
	// recognition may still come up. It outlives the caller's ctx.
	stop := func() error {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		return sess.Stop(stopCtx)
	}

	if err := sess.Start(ctx, c); err != nil {
		if stopErr := stop(); stopErr != nil {
			log.Warn().Err(stopErr).Msg("Failed to stop continuous recognition after start error")
		}
		return nil, "start", fmt.Errorf("start continuous recognition: %w", err)
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	var waitErr error
	reason := ""
	select {
	case <-c.Done():
	case <-ctx.Done():
		waitErr, reason = ctx.Err(), "context"
	case <-timer.C:
		waitErr, reason = ErrTimeout, "timeout"
	}

	stopErr := stop()
	if stopErr != nil {
		log.Warn().Err(stopErr).Msg("Failed to stop continuous recognition")
	}

	if waitErr != nil {
		return nil, reason, waitErr
	}
	if stopErr != nil {
		return nil, "stop", fmt.Errorf("stop continuous recognition: %w", stopErr)
	}

	snap := c.snapshot()
	if snap.cancellation != nil && snap.cancellation.IsError() {
		return nil, "canceled", &speech.CanceledError{Operation: "assessment", Cancellation: *snap.cancellation}
	}
	if len(snap.utterances) == 0 {
		return nil, "no_results", ErrNoResults
	}
	return buildResult(snap), "", nil
}

func buildResult(snap snapshot) *Result {
	res := &Result{
		RemoteSessionID: snap.remoteId,
		Text:            snap.text,
		Utterances:      snap.utterances,
		Termination:     TerminationStopped,
	}
	if snap.state == session.StateCanceled {
		res.Termination = TerminationCanceled
		res.Cancellation = snap.cancellation
	}
	if last := snap.utterances[len(snap.utterances)-1]; last.Content != nil {
		res.Content = *last.Content
		res.ContentAvailable = true
	}
	return res
}

func (b *Bridge) publish(ctx context.Context, key string, ev models.AssessmentEvent, log zerolog.Logger) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.PublishAssessment(context.WithoutCancel(ctx), key, ev); err != nil {
		log.Warn().Err(err).Str("eventType", ev.EventType).Msg("Failed to publish assessment event")
	}
}
