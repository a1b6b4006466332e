package confidence

import (
	"fmt"
	"strings"

	"github.com/siherrmann/grounder/model"
)

// Component floors used by the fallback rules and issue reporting.
const (
	RetrievalFloor  = 0.4
	CitationFloor   = 0.5
	ContextFloor    = 0.5
	GenerationFloor = 0.5
)

type fallbackRule struct {
	strategy    model.FallbackStrategy
	matches     func(c model.ComponentScores, hasResults bool) bool
	cap         float64
	message     string
	suggestions []string
}

// Rules are checked in order; the first match wins.
var fallbackRules = []fallbackRule{
	{
		strategy: model.FallbackNoRelevantSources,
		matches:  func(_ model.ComponentScores, hasResults bool) bool { return !hasResults },
		cap:      0.1,
		message:  "No relevant sources were found for this question.",
		suggestions: []string{
			"Rephrase the question using terms that appear in the documents",
			"Check that the relevant documents have been ingested",
			"Lower the similarity threshold",
		},
	},
	{
		strategy: model.FallbackLowRetrievalConfidence,
		matches:  func(c model.ComponentScores, _ bool) bool { return below(c.Retrieval, RetrievalFloor) },
		cap:      0.3,
		message:  "The retrieved sources only partially match the question.",
		suggestions: []string{
			"Add more specific terms to the question",
			"Try the hybrid strategy to include keyword matches",
		},
	},
	{
		strategy: model.FallbackPoorCitationQuality,
		matches:  func(c model.ComponentScores, _ bool) bool { return below(c.Content, CitationFloor) },
		cap:      0.4,
		message:  "The answer could not be verified against the retrieved sources.",
		suggestions: []string{
			"Review the cited passages before relying on the answer",
			"Ask for an answer that cites its sources",
		},
	},
	{
		strategy: model.FallbackQueryAmbiguity,
		matches:  func(c model.ComponentScores, _ bool) bool { return below(c.Context, ContextFloor) },
		cap:      0.35,
		message:  "The question is ambiguous.",
		suggestions: []string{
			"Name the system, component or document the question is about",
			"Split the question into smaller questions",
		},
	},
}

// SelectFallback returns the fallback of the first matching rule. When no
// rule matches the aggregate itself was low and low retrieval confidence
// is reported without a cap.
func SelectFallback(components model.ComponentScores, hasResults bool, analysis *model.QueryAnalysis) *model.FallbackResponse {
	for _, rule := range fallbackRules {
		if !rule.matches(components, hasResults) {
			continue
		}
		fallback := &model.FallbackResponse{
			Strategy:    rule.strategy,
			Message:     rule.message,
			Confidence:  rule.cap,
			Suggestions: append([]string(nil), rule.suggestions...),
		}
		if analysis != nil && len(analysis.Terms) > 0 && rule.strategy != model.FallbackPoorCitationQuality {
			fallback.Suggestions = append(fallback.Suggestions, fmt.Sprintf("Search for: %s", strings.Join(analysis.Terms, ", ")))
		}
		return fallback
	}

	return &model.FallbackResponse{
		Strategy:    model.FallbackLowRetrievalConfidence,
		Message:     "The answer is only weakly supported by the retrieved sources.",
		Confidence:  1,
		Suggestions: []string{"Verify the answer against the cited sources"},
	}
}

func below(score *float64, floor float64) bool {
	return score != nil && *score < floor
}
