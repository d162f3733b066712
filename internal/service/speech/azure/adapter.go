// Package azure implements the speech provider interfaces on the Azure
// Cognitive Services Speech SDK.
package azure

import (
	"context"
	"errors"
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	azspeech "github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/rs/zerolog"

	"speech-assessment-service/internal/observability/logging"
	"speech-assessment-service/internal/service/speech"
	"speech-assessment-service/internal/service/speech/azure/props"
)

var ErrMissingCredentials = errors.New("azure speech requires a subscription key and region")

type Config struct {
	SubscriptionKey string
	Region          string
	// Playback also plays synthesized audio on the default speaker.
	Playback bool
}

// Provider implements speech.Assessor, speech.Recognizer and
// speech.Synthesizer. Every call builds its own SDK objects, so a Provider
// is safe for concurrent use.
type Provider struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config) (*Provider, error) {
	if cfg.SubscriptionKey == "" || cfg.Region == "" {
		return nil, ErrMissingCredentials
	}
	return &Provider{cfg: cfg, log: logging.WithComponent("azure")}, nil
}

func (p *Provider) recognitionConfig(language string) (*azspeech.SpeechConfig, error) {
	conf, err := azspeech.NewSpeechConfigFromSubscription(p.cfg.SubscriptionKey, p.cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("create speech config: %w", err)
	}
	if err := conf.SetSpeechRecognitionLanguage(language); err != nil {
		conf.Close()
		return nil, fmt.Errorf("set recognition language: %w", err)
	}
	return conf, nil
}

// audioInput reads a WAV file, or the default microphone for an empty path.
func audioInput(path string) (*audio.AudioConfig, error) {
	if path == "" {
		cfg, err := audio.NewAudioConfigFromDefaultMicrophoneInput()
		if err != nil {
			return nil, fmt.Errorf("open default microphone: %w", err)
		}
		return cfg, nil
	}
	cfg, err := audio.NewAudioConfigFromWavFileInput(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file %s: %w", path, err)
	}
	return cfg, nil
}

func (p *Provider) RecognizeOnce(ctx context.Context, language, audioPath string) (*speech.Recognition, error) {
	conf, err := p.recognitionConfig(language)
	if err != nil {
		return nil, err
	}
	defer conf.Close()

	audioCfg, err := audioInput(audioPath)
	if err != nil {
		return nil, err
	}
	defer audioCfg.Close()

	recognizer, err := azspeech.NewSpeechRecognizerFromConfig(conf, audioCfg)
	if err != nil {
		return nil, fmt.Errorf("create speech recognizer: %w", err)
	}
	defer recognizer.Close()

	var outcome azspeech.SpeechRecognitionOutcome
	select {
	case outcome = <-recognizer.RecognizeOnceAsync():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer outcome.Close()
	if outcome.Error != nil {
		return nil, fmt.Errorf("recognize once: %w", outcome.Error)
	}

	res := outcome.Result
	rec := &speech.Recognition{Reason: resultReason(res.Reason), Text: res.Text}
	if rec.Reason == speech.ReasonCanceled {
		cn := props.RecognitionCancellation(res.Properties.GetProperty(common.SpeechServiceResponseJSONErrorDetails, ""))
		rec.Cancellation = &cn
	}
	return rec, nil
}

func (p *Provider) Synthesize(ctx context.Context, text, language string) (*speech.Synthesis, error) {
	conf, err := azspeech.NewSpeechConfigFromSubscription(p.cfg.SubscriptionKey, p.cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("create speech config: %w", err)
	}
	defer conf.Close()
	if err := conf.SetSpeechSynthesisLanguage(language); err != nil {
		return nil, fmt.Errorf("set synthesis language: %w", err)
	}

	var out *audio.AudioConfig
	if p.cfg.Playback {
		out, err = audio.NewAudioConfigFromDefaultSpeakerOutput()
		if err != nil {
			return nil, fmt.Errorf("open default speaker: %w", err)
		}
		defer out.Close()
	}

	synthesizer, err := azspeech.NewSpeechSynthesizerFromConfig(conf, out)
	if err != nil {
		return nil, fmt.Errorf("create speech synthesizer: %w", err)
	}
	defer synthesizer.Close()

	var outcome azspeech.SpeechSynthesisOutcome
	select {
	case outcome = <-synthesizer.SpeakTextAsync(text):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer outcome.Close()
	if outcome.Error != nil {
		return nil, fmt.Errorf("speak text: %w", outcome.Error)
	}

	if outcome.Result.Reason == common.SynthesizingAudioCompleted {
		return &speech.Synthesis{Completed: true, Audio: outcome.Result.AudioData}, nil
	}

	details, err := azspeech.NewCancellationDetailsFromSpeechSynthesisResult(outcome.Result)
	if err != nil {
		return nil, fmt.Errorf("read cancellation details: %w", err)
	}
	cn := speech.NewCancellation(cancellationReason(details.Reason), fmt.Sprint(details.ErrorCode), details.ErrorDetails)
	return &speech.Synthesis{Cancellation: &cn}, nil
}

func resultReason(r common.ResultReason) speech.ResultReason {
	switch r {
	case common.RecognizedSpeech:
		return speech.ReasonRecognizedSpeech
	case common.NoMatch:
		return speech.ReasonNoMatch
	case common.Canceled:
		return speech.ReasonCanceled
	default:
		return speech.ReasonUnknown
	}
}

func cancellationReason(r common.CancellationReason) speech.CancellationReason {
	switch r {
	case common.Error:
		return speech.CancelError
	case common.EndOfStream:
		return speech.CancelEndOfStream
	case common.CancelledByUser:
		return speech.CancelByUser
	default:
		return speech.CancelUnknown
	}
}
