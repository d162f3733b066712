// Package google provides a Google Cloud Speech-to-Text recognizer.
package google

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"speech-assessment-service/internal/audio/wav"
	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/service/speech"
)

// Config holds recognition defaults. SampleRateHz is used only when the WAV
// header does not carry one.
type Config struct {
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
}

func DefaultConfig() Config {
	return Config{
		LanguageCode:  "en-US",
		SampleRateHz:  16000,
		AudioEncoding: "LINEAR16",
	}
}

// recognizeClient is the part of *gspeech.Client the adapter needs.
type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

type clientAdapter struct {
	c *gspeech.Client
}

func (c clientAdapter) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return c.c.Recognize(ctx, req)
}

func (c clientAdapter) Close() error {
	return c.c.Close()
}

// Adapter implements speech.Recognizer using Google Cloud Speech-to-Text.
// It reads WAV files only; microphone capture is not supported.
type Adapter struct {
	client recognizeClient
	cfg    Config
	log    zerolog.Logger
}

// New creates a new Google recognizer.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := gspeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create google speech client: %w", err)
	}
	return newWithClient(clientAdapter{c}, cfg), nil
}

func newWithClient(c recognizeClient, cfg Config) *Adapter {
	def := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	if cfg.AudioEncoding == "" {
		cfg.AudioEncoding = def.AudioEncoding
	}
	return &Adapter{client: c, cfg: cfg, log: logging.WithComponent("google")}
}

// RecognizeOnce sends the whole file in one synchronous Recognize call and
// joins the top alternative of every result.
func (a *Adapter) RecognizeOnce(ctx context.Context, language, audioPath string) (*speech.Recognition, error) {
	if audioPath == "" {
		return nil, speech.ErrMicrophoneUnsupported
	}
	if language == "" {
		language = a.cfg.LanguageCode
	}

	rc, err := a.buildRequest(language, audioPath)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Recognize(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("google recognize: %w", err)
	}
	return toRecognition(resp), nil
}

func (a *Adapter) buildRequest(language, audioPath string) (*speechpb.RecognizeRequest, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	h, err := wav.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", audioPath, err)
	}
	pcm, err := io.ReadAll(io.LimitReader(f, int64(h.DataSize)))
	if err != nil {
		return nil, fmt.Errorf("read audio samples: %w", err)
	}

	rate := int32(h.SampleRate)
	if rate <= 0 {
		rate = int32(a.cfg.SampleRateHz)
	}
	a.log.Debug().
		Str("audioPath", audioPath).
		Int32("sampleRate", rate).
		Uint16("channels", h.Channels).
		Int64("durationMs", h.DurationMs()).
		Msg("Sending audio to Google Speech-to-Text")

	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          parseAudioEncoding(a.cfg.AudioEncoding),
			SampleRateHertz:   rate,
			AudioChannelCount: int32(h.Channels),
			LanguageCode:      language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}, nil
}

func toRecognition(resp *speechpb.RecognizeResponse) *speech.Recognition {
	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return &speech.Recognition{Reason: speech.ReasonNoMatch}
	}
	return &speech.Recognition{
		Reason: speech.ReasonRecognizedSpeech,
		Text:   strings.Join(parts, " "),
	}
}

// Close releases the client connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// parseAudioEncoding maps an upper-case encoding name, falling back to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]
	if !ok || v == int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_LINEAR16
	}
	return speechpb.RecognitionConfig_AudioEncoding(v)
}
