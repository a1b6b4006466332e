package pipeline

import (
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Quality score components.
const (
	QualityBase         = 0.5
	QualityIdealTokens  = 0.2 // token count within the ideal band
	QualityHeading      = 0.1 // non-empty heading
	QualityDepth        = 0.1 // hierarchy depth above one
	QualitySentences    = 0.1 // between MinSentences and MaxSentences sentences
	QualityMinSentences = 2
	QualityMaxSentences = 10
)

// QualityValidator scores chunks and decides which are persisted.
type QualityValidator struct {
	ideal      model.TokenBand
	minQuality float64
}

// NewQualityValidator creates a validator with the ideal token band and the minimum accepted score.
func NewQualityValidator(ideal model.TokenBand, minQuality float64) *QualityValidator {
	return &QualityValidator{ideal: ideal, minQuality: minQuality}
}

// Score returns the heuristic quality of a chunk in [0,1].
func (v *QualityValidator) Score(chunk *model.Chunk) float64 {
	score := QualityBase
	if v.ideal.Contains(chunk.TokenCount) {
		score += QualityIdealTokens
	}
	if chunk.Heading != "" {
		score += QualityHeading
	}
	if len(chunk.HierarchyPath) > 1 {
		score += QualityDepth
	}
	sentences := len(helper.SentenceSpans(chunk.Content))
	if sentences >= QualityMinSentences && sentences <= QualityMaxSentences {
		score += QualitySentences
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Accept reports whether the chunk's quality score reaches the minimum.
func (v *QualityValidator) Accept(chunk *model.Chunk) bool {
	return chunk.QualityScore >= v.minQuality
}
