// Package props builds and reads the values the Azure Speech SDK exchanges
// through its generic property collections. It has no cgo dependency.
package props

import (
	"strings"

	"github.com/goccy/go-json"

	"speech-assessment-service/internal/service/speech"
)

// Native property names.
const (
	PronunciationAssessmentParams = "PronunciationAssessment_Params"
	RequestDetailedResult         = "SpeechServiceResponse_RequestDetailedResultTrueFalse"
)

// Assessment is the pronunciation assessment parameter document.
type Assessment struct {
	ReferenceText     string             `json:"referenceText"`
	GradingSystem     string             `json:"gradingSystem"`
	Granularity       string             `json:"granularity"`
	Dimension         string             `json:"dimension"`
	EnableMiscue      bool               `json:"enableMiscue"`
	EnableProsody     bool               `json:"enableProsodyAssessment"`
	ContentAssessment *ContentAssessment `json:"contentAssessment,omitempty"`
}

type ContentAssessment struct {
	Topic string `json:"topic"`
}

// ForTopic returns unscripted assessment parameters: hundred-mark grading at
// phoneme granularity, miscue off, prosody on and content assessed against
// topic. A blank topic disables content assessment.
func ForTopic(topic string) Assessment {
	a := Assessment{
		GradingSystem: "HundredMark",
		Granularity:   "Phoneme",
		Dimension:     "Comprehensive",
		EnableMiscue:  false,
		EnableProsody: true,
	}
	if t := strings.TrimSpace(topic); t != "" {
		a.ContentAssessment = &ContentAssessment{Topic: t}
	}
	return a
}

// JSON renders the value stored under PronunciationAssessmentParams.
func (a Assessment) JSON() (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// errorCodes maps fragments of the service's error text to the SDK's
// cancellation error code names. Order matters: first match wins.
var errorCodes = []struct {
	fragment string
	code     string
}{
	{"authentication error", "AuthenticationFailure"},
	{"(401)", "AuthenticationFailure"},
	{"(403)", "Forbidden"},
	{"(429)", "TooManyRequests"},
	{"bad request", "BadRequest"},
	{"(400)", "BadRequest"},
	{"timeout", "ServiceTimeout"},
	{"connection failed", "ConnectionFailure"},
	{"ws_open_error", "ConnectionFailure"},
	{"service unavailable", "ServiceUnavailable"},
	{"(503)", "ServiceUnavailable"},
	{"runtime error", "RuntimeError"},
}

// RecognitionCancellation derives cancellation details for a canceled
// single-shot recognition from the error details property. Empty details
// mean the audio ended without an error.
func RecognitionCancellation(errorDetails string) speech.Cancellation {
	details := strings.TrimSpace(errorDetails)
	if details == "" {
		return speech.NewCancellation(speech.CancelEndOfStream, "", "")
	}
	lower := strings.ToLower(details)
	code := "Unknown"
	for _, ec := range errorCodes {
		if strings.Contains(lower, ec.fragment) {
			code = ec.code
			break
		}
	}
	return speech.NewCancellation(speech.CancelError, code, details)
}
