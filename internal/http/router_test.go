package http

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"speech-assessment-service/internal/audio/wav"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
	"speech-assessment-service/internal/service/speech/mock"
)

type testServer struct {
	handler   http.Handler
	uploadDir string
}

func newTestServer(t *testing.T, p *mock.Provider, maxWait time.Duration) *testServer {
	t.Helper()
	if p == nil {
		p = mock.New()
	}
	if maxWait == 0 {
		maxWait = 2 * time.Second
	}
	dir := t.TempDir()
	return &testServer{
		uploadDir: dir,
		handler: NewRouter(Deps{
			Assessments: assessment.NewBridge(p, assessment.Options{MaxWait: maxWait, MaxConcurrent: 2}),
			Speech: speech.NewService(speech.ServiceOptions{
				Synthesizer: p, SynthesizerName: "mock",
				Recognizer: p, RecognizerName: "mock",
			}),
			UploadDir:      dir,
			UploadMaxBytes: 64 << 10,
		}),
	}
}

func (s *testServer) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) postJSON(path string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return s.do(http.MethodPost, path, "application/json", bytes.NewReader(b))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
	return body.Error
}

func multipartBody(t *testing.T, fields map[string]string, audio []byte) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if audio != nil {
		fw, _ := mw.CreateFormFile("audio", "answer.wav")
		fw.Write(audio)
	}
	mw.Close()
	return mw.FormDataContentType(), &buf
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil, 0)

	if rec := s.do(http.MethodGet, "/v1/liveness", "", nil); rec.Code != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/v1/readiness", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readiness: expected 200, got %d", rec.Code)
	}

	notReady := NewRouter(Deps{Ready: func() bool { return false }})
	rec := httptest.NewRecorder()
	notReady.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/readiness", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before ready, got %d", rec.Code)
	}
}

func TestUI(t *testing.T) {
	s := newTestServer(t, nil, 0)
	rec := s.do(http.MethodGet, "/", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, path := range []string{"/v1/assessments/upload", "/v1/recognitions/upload", "/v1/synthesis"} {
		if !strings.Contains(rec.Body.String(), path) {
			t.Errorf("expected the UI page to call %s", path)
		}
	}
}

func TestListLanguages(t *testing.T) {
	s := newTestServer(t, nil, 0)
	rec := s.do(http.MethodGet, "/v1/languages", "", nil)

	var body struct {
		Default   string `json:"default"`
		Languages []struct {
			Code string `json:"code"`
		} `json:"languages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if body.Default != "en-US" || len(body.Languages) != 15 {
		t.Errorf("unexpected catalog: %+v", body)
	}
}

func TestCreateAssessment(t *testing.T) {
	s := newTestServer(t, nil, 0)
	rec := s.postJSON("/v1/assessments", assessmentRequest{AudioFile: "answer.wav", Topic: "technology", Language: "en-us"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res assessment.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if !res.ContentAvailable || res.Content.Topic != 91 || len(res.Utterances) != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Language != "en-US" || res.Termination != assessment.TerminationStopped {
		t.Errorf("unexpected metadata: %s %s", res.Language, res.Termination)
	}
}

func TestLegacyAssessment(t *testing.T) {
	s := newTestServer(t, nil, 0)
	rec := s.postJSON("/pron_assesst", map[string]string{"audio_file": "./audio.wav", "topic": "how IT impact to our world"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]json.RawMessage
	json.Unmarshal(rec.Body.Bytes(), &body)
	for _, key := range []string{"content_assessment_result", "content_assessmment", "pronunciation_assessment_results"} {
		if _, ok := body[key]; !ok {
			t.Errorf("expected key %s in legacy response", key)
		}
	}
}

func TestCreateAssessment_Errors(t *testing.T) {
	noResults := mock.NewWithScript(mock.Script{{Kind: mock.EventStarted}, {Kind: mock.EventStopped}})
	canceled := mock.NewWithScript(mock.Script{
		{Kind: mock.EventCanceled, Cancellation: speech.NewCancellation(speech.CancelError, "AuthenticationFailure", "bad key")},
	})
	hanging := mock.NewWithScript(mock.Script{{Kind: mock.EventStarted}})

	tests := []struct {
		name     string
		provider *mock.Provider
		maxWait  time.Duration
		body     any
		status   int
		code     string
	}{
		{"empty topic", nil, 0, assessmentRequest{AudioFile: "a.wav", Topic: " "}, http.StatusBadRequest, "invalid_argument"},
		{"empty audio", nil, 0, assessmentRequest{Topic: "t"}, http.StatusBadRequest, "invalid_argument"},
		{"bad json", nil, 0, "not an object", http.StatusBadRequest, "invalid_argument"},
		{"bad language", nil, 0, assessmentRequest{AudioFile: "a.wav", Topic: "t", Language: "tlh"}, http.StatusBadRequest, "unsupported_language"},
		{"no results", noResults, 0, assessmentRequest{AudioFile: "a.wav", Topic: "t"}, http.StatusUnprocessableEntity, "no_results"},
		{"remote canceled", canceled, 0, assessmentRequest{AudioFile: "a.wav", Topic: "t"}, http.StatusBadGateway, "remote_canceled"},
		{"timeout", hanging, 50 * time.Millisecond, assessmentRequest{AudioFile: "a.wav", Topic: "t"}, http.StatusGatewayTimeout, "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.provider, tt.maxWait)
			rec := s.postJSON("/v1/assessments", tt.body)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got.Code)
			}
		})
	}
}

func TestUploadAssessment(t *testing.T) {
	p := mock.New()
	s := newTestServer(t, p, 0)

	ct, body := multipartBody(t, map[string]string{"topic": "travel", "language": "fr-FR"}, wav.Encode(16000, 1, 16, make([]byte, 3200)))
	rec := s.do(http.MethodPost, "/v1/assessments/upload", ct, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	req := p.Sessions()[0].Request
	if !strings.HasPrefix(req.AudioPath, s.uploadDir) || req.Language != "fr-FR" || req.Topic != "travel" {
		t.Errorf("unexpected forwarded request: %+v", req)
	}
	entries, _ := os.ReadDir(s.uploadDir)
	if len(entries) != 0 {
		t.Errorf("expected upload removed, found %d files", len(entries))
	}
}

func TestUploadAssessment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		audio  []byte
		status int
		code   string
	}{
		{"missing audio", map[string]string{"topic": "t"}, nil, http.StatusBadRequest, "invalid_argument"},
		{"empty audio", map[string]string{"topic": "t"}, []byte{}, http.StatusBadRequest, "invalid_argument"},
		{"not wav", map[string]string{"topic": "t"}, []byte("ID3\x04\x00\x00\x00\x00\x00\x00 mp3 bytes"), http.StatusBadRequest, "invalid_audio"},
		{"missing topic", nil, wav.Encode(16000, 1, 16, nil), http.StatusBadRequest, "invalid_argument"},
		{"too large", map[string]string{"topic": "t"}, wav.Encode(16000, 1, 16, make([]byte, 128<<10)), http.StatusRequestEntityTooLarge, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mock.New()
			s := newTestServer(t, p, 0)
			ct, body := multipartBody(t, tt.fields, tt.audio)
			rec := s.do(http.MethodPost, "/v1/assessments/upload", ct, body)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got.Code)
			}
			if len(p.Sessions()) != 0 {
				t.Error("expected no session opened")
			}
		})
	}
}

func TestSynthesis(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rec := s.postJSON("/v1/synthesis", synthesisRequest{Text: "hello world", Language: "en-US"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("expected audio/wav, got %s", ct)
	}
	if _, err := wav.ReadHeader(rec.Body); err != nil {
		t.Errorf("expected WAV body: %v", err)
	}

	rec = s.postJSON("/v1/synthesis", synthesisRequest{Text: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty text, got %d", rec.Code)
	}
}

// canceledSpeech implements SpeechOperations with a remote cancellation.
type canceledSpeech struct{}

func (canceledSpeech) Synthesize(ctx context.Context, text, language string) (*speech.SynthesisOutcome, error) {
	cn := speech.NewCancellation(speech.CancelError, "TooManyRequests", "quota exceeded")
	return &speech.SynthesisOutcome{RequestID: "req-1", Status: speech.StatusCanceled, Cancellation: &cn}, nil
}

func (canceledSpeech) RecognizeOnce(ctx context.Context, language, audioPath string) (*speech.RecognitionOutcome, error) {
	return nil, speech.ErrMicrophoneUnsupported
}

func TestSynthesis_Canceled(t *testing.T) {
	h := NewRouter(Deps{Speech: canceledSpeech{}})
	b, _ := json.Marshal(synthesisRequest{Text: "hi"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/synthesis", bytes.NewReader(b)))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	got := decodeError(t, rec)
	details, _ := got.Details.(map[string]any)
	if got.Code != "remote_canceled" || details["errorDetails"] != "quota exceeded" {
		t.Errorf("unexpected error body: %+v", got)
	}
}

func TestRecognition(t *testing.T) {
	s := newTestServer(t, nil, 0)

	rec := s.postJSON("/v1/recognitions", recognitionRequest{Language: "en-US", AudioFile: "clip.wav"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out speech.RecognitionOutcome
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != speech.StatusRecognized || out.Text == "" {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.Echo == nil || out.Echo.Status != speech.StatusCompleted {
		t.Errorf("expected completed echo, got %+v", out.Echo)
	}

	rec = s.postJSON("/v1/recognitions", recognitionRequest{Language: "en-US"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without audio_file, got %d", rec.Code)
	}
}

// recordingSpeech implements SpeechOperations and records the audio path it
// was given, along with whether the file existed during the call.
type recordingSpeech struct {
	canceledSpeech
	language  string
	audioPath string
	existed   bool
}

func (r *recordingSpeech) RecognizeOnce(ctx context.Context, language, audioPath string) (*speech.RecognitionOutcome, error) {
	r.language, r.audioPath = language, audioPath
	_, err := os.Stat(audioPath)
	r.existed = err == nil
	return &speech.RecognitionOutcome{RequestID: "req-2", Status: speech.StatusRecognized, Language: language, Text: "hello there"}, nil
}

func TestRecognitionUpload(t *testing.T) {
	dir := t.TempDir()
	sp := &recordingSpeech{}
	h := NewRouter(Deps{Speech: sp, UploadDir: dir, UploadMaxBytes: 64 << 10})

	ct, body := multipartBody(t, map[string]string{"language": "de-DE"}, wav.Encode(16000, 1, 16, make([]byte, 3200)))
	req := httptest.NewRequest(http.MethodPost, "/v1/recognitions/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out speech.RecognitionOutcome
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Text != "hello there" {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if sp.language != "de-DE" || !strings.HasPrefix(sp.audioPath, dir) || !sp.existed {
		t.Errorf("unexpected forwarded call: language=%s path=%s existed=%v", sp.language, sp.audioPath, sp.existed)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected upload removed, found %d files", len(entries))
	}
}

func TestRecognitionUpload_Errors(t *testing.T) {
	tests := []struct {
		name   string
		audio  []byte
		status int
		code   string
	}{
		{"missing audio", nil, http.StatusBadRequest, "invalid_argument"},
		{"not wav", []byte("ID3\x04\x00\x00\x00\x00\x00\x00 mp3 bytes"), http.StatusBadRequest, "invalid_audio"},
		{"too large", wav.Encode(16000, 1, 16, make([]byte, 128<<10)), http.StatusRequestEntityTooLarge, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &recordingSpeech{}
			h := NewRouter(Deps{Speech: sp, UploadDir: t.TempDir(), UploadMaxBytes: 64 << 10})

			ct, body := multipartBody(t, map[string]string{"language": "en-US"}, tt.audio)
			req := httptest.NewRequest(http.MethodPost, "/v1/recognitions/upload", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, got.Code)
			}
			if sp.audioPath != "" {
				t.Error("expected no recognition call")
			}
		})
	}
}
