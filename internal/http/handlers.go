package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"speech-assessment-service/internal/audio/wav"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
)

const maxJSONBody = 1 << 20

type assessmentRequest struct {
	AudioFile string `json:"audio_file"`
	Topic     string `json:"topic"`
	Language  string `json:"language"`
}

type synthesisRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type recognitionRequest struct {
	Language  string `json:"language"`
	AudioFile string `json:"audio_file"`
}

// legacyResponse is the body shape of the original /pron_assesst endpoint.
type legacyResponse struct {
	ContentAssessmentResult legacyContent      `json:"content_assessment_result"`
	ContentAssessment       string             `json:"content_assessmment"`
	PronunciationResults    []speech.Utterance `json:"pronunciation_assessment_results"`
}

type legacyContent struct {
	GrammarScore    float64 `json:"grammar_score"`
	VocabularyScore float64 `json:"vocabulary_score"`
	TopicScore      float64 `json:"topic_score"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (h *handler) assessFile(w http.ResponseWriter, r *http.Request) (*assessment.Result, bool) {
	var req assessmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	if strings.TrimSpace(req.AudioFile) == "" {
		h.writeError(w, r, assessment.ErrEmptyAudio)
		return nil, false
	}

	res, err := h.deps.Assessments.Assess(r.Context(), assessment.Request{
		AudioPath: req.AudioFile,
		Language:  req.Language,
		Topic:     req.Topic,
	})
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return res, true
}

func (h *handler) createAssessment(w http.ResponseWriter, r *http.Request) {
	if res, ok := h.assessFile(w, r); ok {
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *handler) legacyAssessment(w http.ResponseWriter, r *http.Request) {
	res, ok := h.assessFile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, legacyResponse{
		ContentAssessmentResult: legacyContent{
			GrammarScore:    res.Content.Grammar,
			VocabularyScore: res.Content.Vocabulary,
			TopicScore:      res.Content.Topic,
		},
		ContentAssessment:    res.Text,
		PronunciationResults: res.Utterances,
	})
}

// parseUpload bounds and parses a multipart request. It writes the error
// response itself and reports whether the handler should continue; the
// caller must RemoveAll the form.
func (h *handler) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	tooLarge := func() {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: errorDetail{
			Code:    "too_large",
			Message: "upload exceeds " + strconv.FormatInt(h.deps.UploadMaxBytes, 10) + " bytes",
		}})
	}
	if r.ContentLength > h.deps.UploadMaxBytes {
		tooLarge()
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.deps.UploadMaxBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge()
			return false
		}
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

// removeUpload deletes a stored upload once the call that needed it returns.
func (h *handler) removeUpload(path string) {
	if err := os.Remove(path); err != nil {
		h.log.Warn().Err(err).Str("path", path).Msg("Failed to remove upload")
	}
}

// uploadAssessment stores the multipart "audio" part in a temp file for the
// duration of the assessment.
func (h *handler) uploadAssessment(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	topic := r.FormValue("topic")
	if strings.TrimSpace(topic) == "" {
		h.writeError(w, r, assessment.ErrEmptyTopic)
		return
	}

	path, err := h.saveUpload(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer h.removeUpload(path)

	res, err := h.deps.Assessments.Assess(r.Context(), assessment.Request{
		AudioPath: path,
		Language:  r.FormValue("language"),
		Topic:     topic,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) saveUpload(r *http.Request) (string, error) {
	file, hdr, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return "", assessment.ErrEmptyAudio
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer file.Close()
	if hdr.Size == 0 {
		return "", assessment.ErrEmptyAudio
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("detect upload type: %w", err)
	}
	if !mtype.Is("audio/wav") {
		return "", fmt.Errorf("%w: got %s", errNotWAVAudio, mtype.String())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	if _, err := wav.ReadHeader(file); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	dir := h.deps.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, uuid.NewString()+".wav")
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

// synthesize answers with the WAV audio, or a JSON error when the remote
// service canceled the synthesis.
func (h *handler) synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.deps.Speech.Synthesize(r.Context(), req.Text, req.Language)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Synthesis-Id", out.RequestID)
	if out.Status == speech.StatusCanceled {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: errorDetail{
			Code:    "remote_canceled",
			Message: "synthesis canceled by remote service",
			Details: out.Cancellation,
		}})
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Audio)
}

func (h *handler) recognize(w http.ResponseWriter, r *http.Request) {
	var req recognitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.AudioFile) == "" {
		h.writeError(w, r, assessment.ErrEmptyAudio)
		return
	}

	out, err := h.deps.Speech.RecognizeOnce(r.Context(), req.Language, req.AudioFile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// recognizeUpload runs a single-shot recognition on the multipart "audio"
// part, so the browser can transcribe a recording without a server path.
func (h *handler) recognizeUpload(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	path, err := h.saveUpload(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer h.removeUpload(path)

	out, err := h.deps.Speech.RecognizeOnce(r.Context(), r.FormValue("language"), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) listLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   h.deps.Languages.Default(),
		"languages": h.deps.Languages.All(),
	})
}
