package http

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
)

//go:embed static
var staticFiles embed.FS

// Assessor runs a blocking assessment (assessment.Bridge).
type Assessor interface {
	Assess(ctx context.Context, req assessment.Request) (*assessment.Result, error)
}

// SpeechOperations runs the single-shot operations (speech.Service).
type SpeechOperations interface {
	Synthesize(ctx context.Context, text, language string) (*speech.SynthesisOutcome, error)
	RecognizeOnce(ctx context.Context, language, audioPath string) (*speech.RecognitionOutcome, error)
}

// Deps are the collaborators of the router. Ready may be nil.
type Deps struct {
	Assessments    Assessor
	Speech         SpeechOperations
	Languages      *languages.Catalog
	Metrics        *metrics.Metrics
	UploadDir      string
	UploadMaxBytes int64
	Ready          func() bool
}

type handler struct {
	deps Deps
	log  zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Deps) http.Handler {
	if deps.Languages == nil {
		deps.Languages = languages.MustDefault()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.UploadMaxBytes <= 0 {
		deps.UploadMaxBytes = 25 << 20
	}
	h := &handler{deps: deps, log: logging.WithComponent("http")}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// UI
	ui, _ := fs.Sub(staticFiles, "static")
	r.Handle("/", http.FileServer(http.FS(ui)))

	// Path kept from the first release of the API.
	r.Post("/pron_assesst", h.legacyAssessment)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/assessments", h.createAssessment)
		r.Post("/assessments/upload", h.uploadAssessment)
		r.Post("/synthesis", h.synthesize)
		r.Post("/recognitions", h.recognize)
		r.Post("/recognitions/upload", h.recognizeUpload)
		r.Get("/languages", h.listLanguages)
	})

	return r
}

// observe logs each request and counts it by route pattern.
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.deps.Metrics.RecordRequest("http", r.Method+" "+route, strconv.Itoa(status))

		h.log.Info().
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
