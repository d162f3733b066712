package assessment

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/service/session"
	"speech-assessment-service/internal/service/speech"
)

// collector is the per-call session state. It implements speech.Callback.
//
// Callbacks are the only writers. The bridge reads only after done is
// closed, and callbacks arriving after the terminal event are dropped, so
// the snapshot taken after the barrier is final.
type collector struct {
	lifecycle *session.Lifecycle
	ids       *session.Generator
	log       zerolog.Logger
	metrics   *metrics.Metrics

	mu           sync.Mutex
	text         strings.Builder
	utterances   []speech.Utterance
	cancellation *speech.Cancellation
	remoteId     string

	done chan struct{}
}

func newCollector(sessionId string, log zerolog.Logger, m *metrics.Metrics) *collector {
	return &collector{
		lifecycle: session.NewLifecycle(sessionId),
		ids:       session.NewGenerator(sessionId),
		log:       log,
		metrics:   m,
		done:      make(chan struct{}),
	}
}

// Done is closed exactly once, by the first terminal event.
func (c *collector) Done() <-chan struct{} {
	return c.done
}

// --- speech.Callback implementation ---

func (c *collector) OnSessionStarted(remoteId string) {
	c.mu.Lock()
	c.remoteId = remoteId
	c.mu.Unlock()

	c.log.Info().Str("remoteSessionId", remoteId).Msg("Recognition session started")
}

// OnRecognized keeps RecognizedSpeech and NoMatch results. Text that is
// empty once trimmed of whitespace and trailing periods is not appended.
func (c *collector) OnRecognized(u speech.Utterance) {
	c.metrics.RecordUtterance(u.Reason.String())

	if u.Reason != speech.ReasonRecognizedSpeech && u.Reason != speech.ReasonNoMatch {
		c.log.Debug().Str("reason", u.Reason.String()).Msg("Ignoring recognized event")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lifecycle.IsEnded() {
		c.log.Warn().Str("text", u.Text).Msg("Recognized event after session end ignored")
		return
	}

	u.ID = c.ids.Next()
	u.ReasonName = u.Reason.String()
	c.utterances = append(c.utterances, u)

	trimmed := strings.TrimSpace(u.Text)
	if strings.TrimRight(trimmed, ".") == "" {
		return
	}
	if c.text.Len() > 0 {
		c.text.WriteByte(' ')
	}
	c.text.WriteString(trimmed)

	c.log.Debug().Str("utteranceId", u.ID).Str("text", trimmed).Msg("Recognized")
}

func (c *collector) OnSessionStopped(remoteId string) {
	c.mu.Lock()
	ended := c.lifecycle.Stop()
	c.mu.Unlock()

	if !ended {
		c.log.Debug().Str("remoteSessionId", remoteId).Msg("Session stopped after terminal event")
		return
	}
	c.log.Info().Str("remoteSessionId", remoteId).Msg("Recognition session stopped")
	close(c.done)
}

func (c *collector) OnCanceled(cn speech.Cancellation) {
	c.metrics.RecordCancellation(cn.Reason.String())

	c.mu.Lock()
	ended := c.lifecycle.Cancel()
	if ended {
		c.cancellation = &cn
	}
	c.mu.Unlock()

	logEvent := c.log.Info()
	if cn.IsError() {
		logEvent = c.log.Warn()
	}
	logEvent.
		Str("reason", cn.Reason.String()).
		Str("errorCode", cn.ErrorCode).
		Str("errorDetails", cn.ErrorDetails).
		Bool("terminal", ended).
		Msg("Recognition session canceled")

	if ended {
		close(c.done)
	}
}

// snapshot is the collector state read after the completion barrier.
type snapshot struct {
	text         string
	utterances   []speech.Utterance
	cancellation *speech.Cancellation
	state        session.State
	remoteId     string
}

func (c *collector) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot{
		text:         strings.TrimSpace(c.text.String()),
		utterances:   append([]speech.Utterance(nil), c.utterances...),
		cancellation: c.cancellation,
		state:        c.lifecycle.State(),
		remoteId:     c.remoteId,
	}
}
