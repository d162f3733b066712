// Package schema checks outgoing events before they are published.
package schema

import (
	"errors"
	"fmt"

	"speech-assessment-service/internal/models"
)

var ErrInvalidEvent = errors.New("invalid event")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate rejects events missing the fields consumers key on.
func (v *Validator) Validate(event any) error {
	switch ev := event.(type) {
	case models.AssessmentEvent:
		return v.assessment(&ev)
	case *models.AssessmentEvent:
		return v.assessment(ev)
	case models.SpeechEvent:
		return v.speech(&ev)
	case *models.SpeechEvent:
		return v.speech(ev)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidEvent, event)
	}
}

func (v *Validator) assessment(ev *models.AssessmentEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil assessment event", ErrInvalidEvent)
	}
	switch ev.EventType {
	case models.EventAssessmentCompleted, models.EventAssessmentFailed:
	default:
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	}
	if ev.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidEvent)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	if ev.EventType == models.EventAssessmentFailed && ev.Error == "" {
		return fmt.Errorf("%w: failed event without error", ErrInvalidEvent)
	}
	return nil
}

func (v *Validator) speech(ev *models.SpeechEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil speech event", ErrInvalidEvent)
	}
	switch ev.EventType {
	case models.EventRecognitionDone, models.EventSynthesisDone:
	default:
		return fmt.Errorf("%w: eventType %q", ErrInvalidEvent, ev.EventType)
	}
	if ev.RequestID == "" {
		return fmt.Errorf("%w: requestId is required", ErrInvalidEvent)
	}
	if ev.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidEvent)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	return nil
}
