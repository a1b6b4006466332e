package confidence

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Signals are the inputs of one assessment. Answer and Citations are
// empty when no answer was generated; their components are then skipped.
type Signals struct {
	Results   []*model.RetrievalResult
	Analysis  *model.QueryAnalysis
	Answer    string
	Complete  bool
	Citations *model.CitationReport
}

// Assessor combines component scores into a calibrated confidence.
type Assessor struct {
	config model.ConfidenceConfig
}

// NewAssessor creates a new confidence assessor
func NewAssessor(config model.ConfidenceConfig) *Assessor {
	return &Assessor{config: config}
}

// Assess scores every measurable component, aggregates them and applies
// the fallback rule table when the aggregate is below the threshold.
func (a *Assessor) Assess(signals Signals) *model.ConfidenceAssessment {
	components := a.Components(signals)
	score := a.Aggregate(components)

	assessment := &model.ConfidenceAssessment{
		Components: components,
		Score:      score,
		Issues:     Issues(components),
	}

	hasResults := len(primary(signals.Results)) > 0
	if !hasResults || score < a.config.FallbackThreshold {
		fallback := SelectFallback(components, hasResults, signals.Analysis)
		fallback.Confidence = math.Min(score, fallback.Confidence)
		assessment.Score = fallback.Confidence
		assessment.Fallback = fallback
	}
	assessment.Level = a.Level(assessment.Score)
	return assessment
}

// Components measures the four component scores.
func (a *Assessor) Components(signals Signals) model.ComponentScores {
	var components model.ComponentScores

	retrieval := RetrievalScore(signals.Results)
	components.Retrieval = &retrieval

	if signals.Analysis != nil {
		contextScore := ContextScore(*signals.Analysis, signals.Results)
		components.Context = &contextScore
	}

	if strings.TrimSpace(signals.Answer) != "" {
		content := 0.0
		if signals.Citations != nil {
			content = signals.Citations.Quality
		}
		components.Content = &content

		generation := GenerationScore(signals.Answer, signals.Complete, a.config.MinAnswerWords)
		components.Generation = &generation
	}
	return components
}

// RetrievalScore is 0.6 times the best score plus 0.4 times the mean of
// the top three. Expansion results are ignored.
func RetrievalScore(results []*model.RetrievalResult) float64 {
	scores := make([]float64, 0, len(results))
	for _, r := range primary(results) {
		scores = append(scores, clamp(r.Score))
	}
	if len(scores) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))

	top := scores[:min(3, len(scores))]
	mean := 0.0
	for _, s := range top {
		mean += s
	}
	mean /= float64(len(top))
	return clamp(0.6*scores[0] + 0.4*mean)
}

// ContextScore averages query clarity and the share of query terms
// covered by the results.
func ContextScore(analysis model.QueryAnalysis, results []*model.RetrievalResult) float64 {
	if len(analysis.Terms) == 0 {
		return clamp(analysis.Clarity)
	}

	covered := make(map[string]bool, len(analysis.Terms))
	for _, r := range results {
		words := helper.WordSet(r.Chunk.Content, 0)
		for _, term := range analysis.Terms {
			if _, ok := words[term]; ok {
				covered[term] = true
			}
		}
	}
	coverage := float64(len(covered)) / float64(len(analysis.Terms))
	return clamp(0.5*analysis.Clarity + 0.5*coverage)
}

// GenerationScore weighs the completion signal and the answer length
// against the minimum word count equally.
func GenerationScore(answer string, complete bool, minWords int) float64 {
	score := 0.0
	if complete {
		score += 0.5
	}
	if minWords <= 0 {
		minWords = 1
	}
	score += 0.5 * math.Min(1, float64(helper.CountWords(answer))/float64(minWords))
	return clamp(score)
}

// Aggregate is the weighted average over the measured components with
// the weights renormalised to those present.
func (a *Assessor) Aggregate(components model.ComponentScores) float64 {
	w := a.config.Weights
	pairs := []struct {
		score  *float64
		weight float64
	}{
		{components.Retrieval, w.Retrieval},
		{components.Content, w.Content},
		{components.Context, w.Context},
		{components.Generation, w.Generation},
	}

	total, weights := 0.0, 0.0
	for _, p := range pairs {
		if p.score == nil || p.weight <= 0 {
			continue
		}
		total += p.weight * *p.score
		weights += p.weight
	}
	if weights == 0 {
		return 0
	}
	return clamp(total / weights)
}

// Level maps a score onto its confidence bucket.
func (a *Assessor) Level(score float64) model.ConfidenceLevel {
	switch {
	case score >= a.config.HighThreshold:
		return model.ConfidenceHigh
	case score >= a.config.MediumThreshold:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Issues describes every weak component.
func Issues(components model.ComponentScores) []string {
	var issues []string
	if components.Retrieval != nil && *components.Retrieval < RetrievalFloor {
		issues = append(issues, fmt.Sprintf("retrieved sources match the query weakly (%.2f)", *components.Retrieval))
	}
	if components.Content != nil && *components.Content < CitationFloor {
		issues = append(issues, fmt.Sprintf("few citations could be validated (%.2f)", *components.Content))
	}
	if components.Context != nil && *components.Context < ContextFloor {
		issues = append(issues, fmt.Sprintf("query is unclear or poorly covered (%.2f)", *components.Context))
	}
	if components.Generation != nil && *components.Generation < GenerationFloor {
		issues = append(issues, fmt.Sprintf("answer is incomplete or short (%.2f)", *components.Generation))
	}
	return issues
}

func primary(results []*model.RetrievalResult) []*model.RetrievalResult {
	var out []*model.RetrievalResult
	for _, r := range results {
		if r.ExpandedFrom == nil {
			out = append(out, r)
		}
	}
	return out
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
