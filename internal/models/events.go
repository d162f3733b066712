// Package models defines the data structures for published events.
package models

const (
	EventAssessmentCompleted = "speech.assessment.completed"
	EventAssessmentFailed    = "speech.assessment.failed"
	EventRecognitionDone     = "speech.recognition.completed"
	EventSynthesisDone       = "speech.synthesis.completed"
)

// AssessmentEvent summarizes one assessment session.
type AssessmentEvent struct {
	EventType   string   `json:"eventType"`
	SessionID   string   `json:"sessionId"`
	Language    string   `json:"language"`
	Topic       string   `json:"topic"`
	Timestamp   int64    `json:"timestamp"`
	Text        string   `json:"text,omitempty"`
	Utterances  int      `json:"utterances"`
	Grammar     *float64 `json:"grammar,omitempty"`
	Vocabulary  *float64 `json:"vocabulary,omitempty"`
	TopicScore  *float64 `json:"topicScore,omitempty"`
	Termination string   `json:"termination,omitempty"`
	Error       string   `json:"error,omitempty"`
	ElapsedMs   int64    `json:"elapsedMs"`
}

// SpeechEvent summarizes a recognize-once or synthesis call.
type SpeechEvent struct {
	EventType string `json:"eventType"`
	RequestID string `json:"requestId"`
	Provider  string `json:"provider"`
	Language  string `json:"language"`
	Status    string `json:"status"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp"`
	ElapsedMs int64  `json:"elapsedMs"`
}
