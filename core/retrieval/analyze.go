package retrieval

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

var intentPatterns = []struct {
	intent  model.Intent
	pattern *regexp.Regexp
}{
	{model.IntentComparison, regexp.MustCompile(`(?i)\b(compare|comparison|difference between|differ|vs\.?|versus|better than|pros and cons)\b`)},
	{model.IntentList, regexp.MustCompile(`(?i)^(list|enumerate|name (all|the))\b|\b(types|kinds|examples|categories) of\b|^which\b|^what are the\b`)},
	{model.IntentProcedure, regexp.MustCompile(`(?i)^how (do|to|can|should|does|would)\b|\bhow to\b|\b(steps|procedure|process|guide) (to|for)\b`)},
	{model.IntentDefinition, regexp.MustCompile(`(?i)^(what is|what's|what are|what does|who is|define)\b|\b(definition|meaning) of\b|\bmean\??$`)},
}

var vaguePrefix = regexp.MustCompile(`(?i)^(it|this|that|they|these|those|he|she)\b`)

// DetectIntent classifies a query by its question form.
func DetectIntent(query string) model.Intent {
	q := strings.TrimSpace(query)
	for _, p := range intentPatterns {
		if p.pattern.MatchString(q) {
			return p.intent
		}
	}
	return model.IntentGeneral
}

// Clarity scores how specific a query is, from its key terms, a detected
// intent, named entities and a vague leading pronoun.
func Clarity(intent model.Intent, terms, entities []string, query string) float64 {
	clarity := 0.3 + 0.4*min(1, float64(len(terms))/3)
	if intent != model.IntentGeneral {
		clarity += 0.2
	}
	if len(entities) > 0 {
		clarity += 0.1
	}
	if vaguePrefix.MatchString(strings.TrimSpace(query)) && helper.CountWords(query) < 6 {
		clarity -= 0.2
	}
	return max(0, min(1, clarity))
}

// Analyze describes a query independently of any results.
func (e *Engine) Analyze(ctx context.Context, query string) model.QueryAnalysis {
	intent := DetectIntent(query)
	terms := helper.Keywords(query)

	var entities []string
	if e.entities != nil {
		found, err := e.entities.Extract(ctx, query)
		if err != nil {
			e.logger.Warn("Entity extraction failed", slog.String("error", err.Error()))
		}
		for _, entity := range found {
			entities = append(entities, entity.Name)
		}
	}

	return model.QueryAnalysis{
		Intent:    intent,
		Terms:     terms,
		Entities:  entities,
		WordCount: helper.CountWords(query),
		Clarity:   Clarity(intent, terms, entities, query),
	}
}
