// Package speech defines the provider interfaces for remote speech services
// and the single-shot recognition and synthesis operations built on them.
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ResultReason is the status code the remote service attaches to a result.
type ResultReason int

const (
	ReasonUnknown ResultReason = iota
	ReasonRecognizedSpeech
	ReasonNoMatch
	ReasonCanceled
)

func (r ResultReason) String() string {
	switch r {
	case ReasonRecognizedSpeech:
		return "recognized_speech"
	case ReasonNoMatch:
		return "no_match"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CancellationReason says why the remote service canceled a session or call.
type CancellationReason int

const (
	CancelUnknown CancellationReason = iota
	CancelError
	CancelEndOfStream
	CancelByUser
)

func (r CancellationReason) String() string {
	switch r {
	case CancelError:
		return "error"
	case CancelEndOfStream:
		return "end_of_stream"
	case CancelByUser:
		return "canceled_by_user"
	default:
		return "unknown"
	}
}

// Cancellation carries whatever detail the remote service gave.
type Cancellation struct {
	Reason       CancellationReason `json:"-"`
	ReasonName   string             `json:"reason"`
	ErrorCode    string             `json:"errorCode,omitempty"`
	ErrorDetails string             `json:"errorDetails,omitempty"`
}

// NewCancellation fills ReasonName from reason.
func NewCancellation(reason CancellationReason, code, details string) Cancellation {
	return Cancellation{
		Reason:       reason,
		ReasonName:   reason.String(),
		ErrorCode:    code,
		ErrorDetails: details,
	}
}

// IsError reports whether the cancellation is a failure rather than the
// normal end of the audio input.
func (c Cancellation) IsError() bool {
	return c.Reason == CancelError
}

// PronunciationScores are the per-utterance pronunciation assessment scores
// on the 0-100 scale.
type PronunciationScores struct {
	Accuracy      float64 `json:"accuracy"`
	Fluency       float64 `json:"fluency"`
	Completeness  float64 `json:"completeness"`
	Pronunciation float64 `json:"pronunciation"`
	Prosody       float64 `json:"prosody"`
}

// ContentScores are the content assessment scores. The remote service only
// attaches them to the last utterance of a session.
type ContentScores struct {
	Grammar    float64 `json:"grammar"`
	Vocabulary float64 `json:"vocabulary"`
	Topic      float64 `json:"topic"`
}

// Utterance is one recognized event of a continuous session.
type Utterance struct {
	ID            string              `json:"id"`
	Reason        ResultReason        `json:"-"`
	ReasonName    string              `json:"reason"`
	Text          string              `json:"text"`
	Pronunciation PronunciationScores `json:"pronunciation"`
	Content       *ContentScores      `json:"content,omitempty"`
	Offset        time.Duration       `json:"offsetNs"`
	Duration      time.Duration       `json:"durationNs"`
}

// Callback receives the events of a continuous recognition session.
// Implementations must tolerate calls from goroutines owned by the provider.
type Callback interface {
	OnSessionStarted(sessionId string)
	OnRecognized(u Utterance)
	OnSessionStopped(sessionId string)
	OnCanceled(c Cancellation)
}

// AssessmentRequest configures a pronunciation and content assessment session.
// An empty AudioPath selects the default microphone where supported.
type AssessmentRequest struct {
	AudioPath string
	Language  string
	Topic     string
}

// AssessmentSession is one continuous-recognition engagement.
type AssessmentSession interface {
	// Start registers cb for all four event classes and starts continuous
	// recognition. Events may be delivered before Start returns.
	Start(ctx context.Context, cb Callback) error

	// Stop ends continuous recognition. Safe to call more than once.
	Stop(ctx context.Context) error

	// Close releases the session's remote and native resources.
	Close() error
}

// Assessor opens assessment sessions (Azure, mock).
type Assessor interface {
	NewAssessmentSession(ctx context.Context, req AssessmentRequest) (AssessmentSession, error)
}

// Recognition is the raw outcome of a single-utterance recognition.
type Recognition struct {
	Reason       ResultReason
	Text         string
	Cancellation *Cancellation
}

// Recognizer performs single-utterance recognition (Azure, Google, mock).
// An empty audioPath selects the default microphone where supported.
type Recognizer interface {
	RecognizeOnce(ctx context.Context, language, audioPath string) (*Recognition, error)
}

// Synthesis is the raw outcome of a text-to-speech call.
type Synthesis struct {
	Completed    bool
	Audio        []byte
	Cancellation *Cancellation
}

// Synthesizer performs text-to-speech (Azure, mock).
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (*Synthesis, error)
}

var (
	// ErrEmptyText is returned before any remote call when there is nothing to synthesize.
	ErrEmptyText = errors.New("text must not be empty")

	// ErrMicrophoneUnsupported is returned by providers that only read files.
	ErrMicrophoneUnsupported = errors.New("provider cannot capture from a microphone")
)

// CanceledError is a remote cancellation with reason Error.
type CanceledError struct {
	Operation    string
	Cancellation Cancellation
}

func (e *CanceledError) Error() string {
	msg := fmt.Sprintf("%s canceled by remote service: reason=%s", e.Operation, e.Cancellation.Reason)
	if e.Cancellation.ErrorCode != "" {
		msg += " code=" + e.Cancellation.ErrorCode
	}
	if e.Cancellation.ErrorDetails != "" {
		msg += " details=" + e.Cancellation.ErrorDetails
	}
	return msg
}
