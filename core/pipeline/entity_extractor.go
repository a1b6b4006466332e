package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/grounder/helper"
)

// Entity is a named entity found in a text.
type Entity struct {
	Name  string
	Type  string
	Score float64
}

// EntityExtractor finds named entities in a text. It feeds query analysis.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

var (
	quotedTerm  = regexp.MustCompile(`"([^"]{2,60})"`)
	acronymTerm = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,9}\b`)
)

// HeuristicEntityExtractor finds quoted terms, acronyms and runs of
// capitalised words that do not start a sentence.
type HeuristicEntityExtractor struct{}

// Extract returns the distinct entities of text in order of appearance.
func (HeuristicEntityExtractor) Extract(_ context.Context, text string) ([]Entity, error) {
	seen := make(map[string]bool)
	var entities []Entity
	add := func(name, entityType string) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] || helper.IsStopword(key) {
			return
		}
		seen[key] = true
		entities = append(entities, Entity{Name: name, Type: entityType, Score: 1})
	}

	for _, m := range quotedTerm.FindAllStringSubmatch(text, -1) {
		add(m[1], "TERM")
	}
	for _, m := range acronymTerm.FindAllString(text, -1) {
		add(m, "ACRONYM")
	}

	for _, sentence := range helper.SplitSentences(text) {
		fields := strings.Fields(sentence)
		var run []string
		flush := func() {
			if len(run) > 0 {
				add(strings.Join(run, " "), "MISC")
				run = nil
			}
		}
		for i, field := range fields {
			word := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			r := []rune(word)
			capitalised := len(r) > 1 && unicode.IsUpper(r[0]) && !acronymTerm.MatchString(word)
			if i > 0 && capitalised {
				run = append(run, word)
				if word != field {
					flush()
				}
				continue
			}
			flush()
		}
		flush()
	}
	return entities, nil
}

// HugotEntityExtractor runs a token classification (NER) model through hugot.
type HugotEntityExtractor struct {
	session  *hugot.Session
	pipeline *pipelines.TokenClassificationPipeline
	mu       sync.Mutex
}

// NewHugotEntityExtractor creates an entity extractor using the distilbert-NER
// model. Detects PER, ORG, LOC and MISC entities.
func NewHugotEntityExtractor() (*HugotEntityExtractor, error) {
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}),
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return &HugotEntityExtractor{session: session, pipeline: nerPipeline}, nil
}

// Extract runs NER over text.
func (e *HugotEntityExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	result, err := e.pipeline.RunPipeline([]string{text})
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to run NER: %w", err)
	}
	if len(result.Entities) == 0 {
		return nil, nil
	}

	var entities []Entity
	for _, entity := range result.Entities[0] {
		entities = append(entities, Entity{
			Name:  strings.TrimSpace(entity.Word),
			Type:  normalizeEntityType(entity.Entity),
			Score: float64(entity.Score),
		})
	}
	return entities, nil
}

// Close destroys the hugot session.
func (e *HugotEntityExtractor) Close() error {
	return e.session.Destroy()
}

// normalizeEntityType removes B- and I- prefixes from NER labels
func normalizeEntityType(label string) string {
	if strings.HasPrefix(label, "B-") || strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}
