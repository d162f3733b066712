// Package detailed parses the detailed JSON result the Azure Speech service
// attaches to each recognized utterance when pronunciation assessment is on.
package detailed

import (
	"fmt"

	"github.com/goccy/go-json"

	"speech-assessment-service/internal/service/speech"
)

type result struct {
	RecognitionStatus string  `json:"RecognitionStatus"`
	DisplayText       string  `json:"DisplayText"`
	NBest             []nbest `json:"NBest"`
}

type nbest struct {
	Display                 string                   `json:"Display"`
	PronunciationAssessment *pronunciationAssessment `json:"PronunciationAssessment"`
	ContentAssessment       *contentAssessment       `json:"ContentAssessment"`
}

type pronunciationAssessment struct {
	AccuracyScore     float64 `json:"AccuracyScore"`
	FluencyScore      float64 `json:"FluencyScore"`
	CompletenessScore float64 `json:"CompletenessScore"`
	PronScore         float64 `json:"PronScore"`
	ProsodyScore      float64 `json:"ProsodyScore"`
}

type contentAssessment struct {
	GrammarScore    float64 `json:"GrammarScore"`
	VocabularyScore float64 `json:"VocabularyScore"`
	TopicScore      float64 `json:"TopicScore"`
}

// Scores holds what one utterance's detailed result carries. Content is nil
// unless the service attached content assessment, which it only does for
// the last utterance of a session.
type Scores struct {
	Pronunciation speech.PronunciationScores
	Content       *speech.ContentScores
}

// Parse reads the best hypothesis. An empty document yields zero scores.
func Parse(raw string) (Scores, error) {
	var s Scores
	if raw == "" {
		return s, nil
	}

	var r result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return s, fmt.Errorf("parse detailed result: %w", err)
	}
	if len(r.NBest) == 0 {
		return s, nil
	}

	best := r.NBest[0]
	if pa := best.PronunciationAssessment; pa != nil {
		s.Pronunciation = speech.PronunciationScores{
			Accuracy:      pa.AccuracyScore,
			Fluency:       pa.FluencyScore,
			Completeness:  pa.CompletenessScore,
			Pronunciation: pa.PronScore,
			Prosody:       pa.ProsodyScore,
		}
	}
	if ca := best.ContentAssessment; ca != nil {
		s.Content = &speech.ContentScores{
			Grammar:    ca.GrammarScore,
			Vocabulary: ca.VocabularyScore,
			Topic:      ca.TopicScore,
		}
	}
	return s, nil
}
