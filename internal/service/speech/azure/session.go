package azure

import (
	"context"
	"fmt"
	"sync"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	azspeech "github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/rs/zerolog"

	"speech-assessment-service/internal/service/speech"
	"speech-assessment-service/internal/service/speech/azure/detailed"
	"speech-assessment-service/internal/service/speech/azure/props"
)

// NewAssessmentSession builds a recognizer with pronunciation assessment on
// the hundred-mark scale at phoneme granularity, miscue off, prosody on and
// content assessment against req.Topic. The parameters are stored on the
// recognizer's property collection under their native name.
func (p *Provider) NewAssessmentSession(ctx context.Context, req speech.AssessmentRequest) (speech.AssessmentSession, error) {
	s := &assessmentSession{log: p.log.With().Str("audioPath", req.AudioPath).Logger()}

	var err error
	if s.conf, err = p.recognitionConfig(req.Language); err != nil {
		return nil, err
	}
	if err := s.conf.SetPropertyByString(props.RequestDetailedResult, "true"); err != nil {
		s.Close()
		return nil, fmt.Errorf("request detailed results: %w", err)
	}
	if s.audio, err = audioInput(req.AudioPath); err != nil {
		s.Close()
		return nil, err
	}
	if s.recognizer, err = azspeech.NewSpeechRecognizerFromConfig(s.conf, s.audio); err != nil {
		s.Close()
		return nil, fmt.Errorf("create speech recognizer: %w", err)
	}

	params, err := props.ForTopic(req.Topic).JSON()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("encode pronunciation assessment params: %w", err)
	}
	if err := s.recognizer.Properties.SetPropertyByString(props.PronunciationAssessmentParams, params); err != nil {
		s.Close()
		return nil, fmt.Errorf("apply pronunciation assessment params: %w", err)
	}
	return s, nil
}

type assessmentSession struct {
	conf       *azspeech.SpeechConfig
	audio      *audio.AudioConfig
	recognizer *azspeech.SpeechRecognizer
	log        zerolog.Logger

	stopOnce sync.Once
	stopErr  error
}

// Start wires the SDK events to cb. The SDK invokes them on its own threads.
func (s *assessmentSession) Start(ctx context.Context, cb speech.Callback) error {
	s.recognizer.SessionStarted(func(e azspeech.SessionEventArgs) {
		defer e.Close()
		cb.OnSessionStarted(e.SessionID)
	})
	s.recognizer.SessionStopped(func(e azspeech.SessionEventArgs) {
		defer e.Close()
		cb.OnSessionStopped(e.SessionID)
	})
	s.recognizer.Recognized(func(e azspeech.SpeechRecognitionEventArgs) {
		defer e.Close()
		cb.OnRecognized(s.utterance(e.Result))
	})
	s.recognizer.Canceled(func(e azspeech.SpeechRecognitionCanceledEventArgs) {
		defer e.Close()
		cb.OnCanceled(speech.NewCancellation(cancellationReason(e.Reason), fmt.Sprint(e.ErrorCode), e.ErrorDetails))
	})

	select {
	case err := <-s.recognizer.StartContinuousRecognitionAsync():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *assessmentSession) utterance(r azspeech.SpeechRecognitionResult) speech.Utterance {
	u := speech.Utterance{
		Reason:   resultReason(r.Reason),
		Text:     r.Text,
		Offset:   r.Offset,
		Duration: r.Duration,
	}
	if u.Reason != speech.ReasonRecognizedSpeech {
		return u
	}
	scores, err := detailed.Parse(r.Properties.GetProperty(common.SpeechServiceResponseJSONResult, ""))
	if err != nil {
		s.log.Warn().Err(err).Msg("Ignoring unreadable assessment scores")
		return u
	}
	u.Pronunciation = scores.Pronunciation
	u.Content = scores.Content
	return u
}

func (s *assessmentSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		select {
		case s.stopErr = <-s.recognizer.StopContinuousRecognitionAsync():
		case <-ctx.Done():
			s.stopErr = ctx.Err()
		}
	})
	return s.stopErr
}

func (s *assessmentSession) Close() error {
	if s.recognizer != nil {
		s.recognizer.Close()
	}
	if s.audio != nil {
		s.audio.Close()
	}
	if s.conf != nil {
		s.conf.Close()
	}
	return nil
}
