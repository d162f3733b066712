package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"speech-assessment-service/internal/audio/wav"
	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
)

var (
	errBadRequest  = errors.New("malformed request body")
	errNotWAVAudio = errors.New("audio must be a PCM WAV file")
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string, any) {
	var canceled *speech.CanceledError
	switch {
	case errors.As(err, &canceled):
		return http.StatusBadGateway, "remote_canceled", canceled.Cancellation
	case errors.Is(err, assessment.ErrNoResults):
		return http.StatusUnprocessableEntity, "no_results", nil
	case errors.Is(err, assessment.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", nil
	case errors.Is(err, languages.ErrUnsupported):
		return http.StatusBadRequest, "unsupported_language", nil
	case errors.Is(err, errNotWAVAudio), errors.Is(err, wav.ErrNotWAV), errors.Is(err, wav.ErrNotPCM):
		return http.StatusBadRequest, "invalid_audio", nil
	case errors.Is(err, assessment.ErrEmptyTopic),
		errors.Is(err, assessment.ErrEmptyAudio),
		errors.Is(err, speech.ErrEmptyText),
		errors.Is(err, speech.ErrMicrophoneUnsupported),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_argument", nil
	default:
		return http.StatusInternalServerError, "internal", nil
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, details := classify(err)
	ev := h.log.Warn()
	if status >= 500 {
		ev = h.log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")

	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: err.Error(), Details: details}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
