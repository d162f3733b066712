package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "speech-assessment-service/internal/api/grpc"
	"speech-assessment-service/internal/config"
	"speech-assessment-service/internal/events"
	httpapi "speech-assessment-service/internal/http"
	"speech-assessment-service/internal/languages"
	"speech-assessment-service/internal/observability"
	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/observability/metrics"
	"speech-assessment-service/internal/service/assessment"
	"speech-assessment-service/internal/service/speech"
	"speech-assessment-service/internal/service/speech/azure"
	"speech-assessment-service/internal/service/speech/google"
	"speech-assessment-service/internal/service/speech/mock"
)

const shutdownTimeout = 15 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Languages *languages.Catalog
	Publisher *events.Publisher
	Bridge    *assessment.Bridge
	Speech    *speech.Service

	observability *observability.Server
	httpServer    *http.Server
	grpcServer    *grpc.Server
	health        *health.Server
	closers       []func() error
	ready         atomic.Bool
}

// providers are the speech backends selected by configuration.
type providers struct {
	assessor     speech.Assessor
	synthesizer  speech.Synthesizer
	recognizer   speech.Recognizer
	recognizerBy string
	closers      []func() error
}

// New constructs a new Application from the provided configuration. cfg
// must already be validated.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	catalog, err := languages.Load(cfg.Service.LanguagesFile)
	if err != nil {
		return nil, err
	}
	a.Languages = catalog

	p, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.closers...)

	a.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicAssessment: cfg.Kafka.TopicAssessment,
		TopicSpeech:     cfg.Kafka.TopicSpeech,
		Principal:       cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	a.Bridge = assessment.NewBridge(p.assessor, assessment.Options{
		MaxWait:       cfg.Assessment.MaxWait,
		MaxConcurrent: cfg.Assessment.MaxConcurrent,
		Languages:     catalog,
		Metrics:       metrics.DefaultMetrics,
		Publisher:     a.Publisher,
	})
	a.Speech = speech.NewService(speech.ServiceOptions{
		Synthesizer:     p.synthesizer,
		SynthesizerName: cfg.Speech.Provider,
		Recognizer:      p.recognizer,
		RecognizerName:  p.recognizerBy,
		Languages:       catalog,
		Metrics:         metrics.DefaultMetrics,
		Publisher:       a.Publisher,
	})

	a.observability = observability.NewServer(":" + cfg.Observability.MetricsPort)

	a.httpServer = &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Assessments:    a.Bridge,
			Speech:         a.Speech,
			Languages:      catalog,
			Metrics:        metrics.DefaultMetrics,
			UploadDir:      cfg.Upload.Dir,
			UploadMaxBytes: cfg.Upload.MaxBytes,
			Ready:          a.ready.Load,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)))
	a.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.health)
	grpcapi.Register(a.grpcServer, a.Bridge)
	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(a.grpcServer)

	a.Logger.Info().
		Str("speechProvider", cfg.Speech.Provider).
		Str("recognizerProvider", p.recognizerBy).
		Int("languages", len(catalog.All())).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Speech assessment application created")
	return a, nil
}

func buildProviders(ctx context.Context, cfg *config.Config) (*providers, error) {
	p := &providers{recognizerBy: cfg.Speech.RecognizerProvider}

	var az *azure.Provider
	if cfg.UsesAzure() {
		var err error
		az, err = azure.New(azure.Config{
			SubscriptionKey: cfg.Speech.AzureKey,
			Region:          cfg.Speech.AzureRegion,
			Playback:        cfg.Speech.Playback,
		})
		if err != nil {
			return nil, err
		}
	}
	var mk *mock.Provider
	if cfg.Speech.Provider == config.ProviderMock || cfg.Speech.RecognizerProvider == config.ProviderMock {
		mk = mock.New()
	}

	switch cfg.Speech.Provider {
	case config.ProviderAzure:
		p.assessor, p.synthesizer = az, az
	case config.ProviderMock:
		p.assessor, p.synthesizer = mk, mk
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Speech.Provider)
	}

	switch cfg.Speech.RecognizerProvider {
	case config.ProviderAzure:
		p.recognizer = az
	case config.ProviderMock:
		p.recognizer = mk
	case config.ProviderGoogle:
		g, err := google.New(ctx, google.Config{SampleRateHz: cfg.Speech.GoogleSampleRateHz})
		if err != nil {
			return nil, err
		}
		p.recognizer = g
		p.closers = append(p.closers, g.Close)
	default:
		return nil, fmt.Errorf("unknown recognizer provider %q", cfg.Speech.RecognizerProvider)
	}
	return p, nil
}

// Run serves HTTP, gRPC and observability until ctx is canceled or a
// server fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	grpcLis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.observability.ListenAndServe)
	g.Go(func() error {
		a.Logger.Info().Str("addr", a.httpServer.Addr).Msg("Starting HTTP server")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.Logger.Info().Str("addr", grpcLis.Addr().String()).Msg("Starting gRPC server")
		if err := a.grpcServer.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	a.start()

	g.Go(func() error {
		<-gctx.Done()
		a.Shutdown()
		return nil
	})
	return g.Wait()
}

// start marks the application ready for traffic.
func (a *Application) start() {
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	a.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.health.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	a.observability.SetReady(true)

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Speech assessment service started")
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Speech assessment service shutting down")
	a.ready.Store(false)

	a.health.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	a.grpcServer.GracefulStop()
	if err := a.observability.Shutdown(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Observability server shutdown")
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.Logger.Warn().Err(err).Msg("Close failed")
		}
	}
}
