// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderAzure  = "azure"
	ProviderGoogle = "google"
	ProviderMock   = "mock"
)

type Config struct {
	Service       ServiceConfig
	Speech        SpeechConfig
	Assessment    AssessmentConfig
	Upload        UploadConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name          string
	HTTPPort      string
	GRPCPort      string
	LanguagesFile string
}

// SpeechConfig selects the remote providers and carries their credentials.
// RecognizerProvider falls back to Provider when unset.
type SpeechConfig struct {
	Provider           string
	RecognizerProvider string
	AzureKey           string
	AzureRegion        string
	Playback           bool
	GoogleSampleRateHz int
}

type AssessmentConfig struct {
	MaxWait       time.Duration
	MaxConcurrent int
}

type UploadConfig struct {
	MaxBytes int64
	Dir      string
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicAssessment string
	TopicSpeech     string
	Principal       string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	loadDotEnv()

	name := envOrDefault("SERVICE_NAME", "svc-speech-assessment")
	provider := strings.ToLower(envOrDefault("SPEECH_PROVIDER", ProviderAzure))

	return &Config{
		Service: ServiceConfig{
			Name:          name,
			HTTPPort:      envOrDefault("HTTP_PORT", "8501"),
			GRPCPort:      envOrDefault("GRPC_PORT", "50051"),
			LanguagesFile: os.Getenv("LANGUAGES_FILE"),
		},
		Speech: SpeechConfig{
			Provider:           provider,
			RecognizerProvider: strings.ToLower(envOrDefault("RECOGNIZER_PROVIDER", provider)),
			AzureKey:           os.Getenv("AZURE_SPEECH_SUBSCRIPTION_KEY"),
			AzureRegion:        os.Getenv("AZURE_SPEECH_REGION"),
			Playback:           envOrDefaultBool("SPEECH_PLAYBACK", false),
			GoogleSampleRateHz: envOrDefaultInt("GOOGLE_SAMPLE_RATE_HZ", 16000),
		},
		Assessment: AssessmentConfig{
			MaxWait:       envOrDefaultDuration("ASSESSMENT_MAX_WAIT", 5*time.Minute),
			MaxConcurrent: envOrDefaultInt("ASSESSMENT_MAX_CONCURRENT", 4),
		},
		Upload: UploadConfig{
			MaxBytes: envOrDefaultInt64("UPLOAD_MAX_BYTES", 25*1024*1024),
			Dir:      envOrDefault("UPLOAD_DIR", os.TempDir()),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envList("KAFKA_BROKERS"),
			TopicAssessment: envOrDefault("KAFKA_TOPIC_ASSESSMENT", "speech.assessment.completed"),
			TopicSpeech:     envOrDefault("KAFKA_TOPIC_SPEECH", "speech.operation.completed"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", name),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

// Validate reports configuration that would otherwise fail mid-request.
func (c *Config) Validate() error {
	if err := validProvider(c.Speech.Provider, ProviderAzure, ProviderMock); err != nil {
		return fmt.Errorf("SPEECH_PROVIDER: %w", err)
	}
	if err := validProvider(c.Speech.RecognizerProvider, ProviderAzure, ProviderGoogle, ProviderMock); err != nil {
		return fmt.Errorf("RECOGNIZER_PROVIDER: %w", err)
	}
	if c.UsesAzure() {
		if c.Speech.AzureKey == "" {
			return errors.New("AZURE_SPEECH_SUBSCRIPTION_KEY is required for the azure provider")
		}
		if c.Speech.AzureRegion == "" {
			return errors.New("AZURE_SPEECH_REGION is required for the azure provider")
		}
	}
	if c.Assessment.MaxWait <= 0 {
		return errors.New("ASSESSMENT_MAX_WAIT must be positive")
	}
	if c.Assessment.MaxConcurrent <= 0 {
		return errors.New("ASSESSMENT_MAX_CONCURRENT must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	return nil
}

// UsesAzure reports whether any speech role is served by Azure.
func (c *Config) UsesAzure() bool {
	return c.Speech.Provider == ProviderAzure || c.Speech.RecognizerProvider == ProviderAzure
}

func validProvider(name string, allowed ...string) error {
	for _, a := range allowed {
		if name == a {
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q (allowed: %s)", name, strings.Join(allowed, ", "))
}

func loadDotEnv() {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring unreadable .env: %v\n", err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
