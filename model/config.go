package model

import (
	"fmt"
	"os"
	"time"

	"github.com/siherrmann/grounder/helper"
	"gopkg.in/yaml.v3"
)

// TokenBand is the accepted [Min,Max] token range of a scale.
type TokenBand struct {
	Min int `yaml:"min" json:"min" validate:"gte=1"`
	Max int `yaml:"max" json:"max" validate:"gtefield=Min"`
}

// Contains reports whether tokens lies within the band.
func (b TokenBand) Contains(tokens int) bool {
	return tokens >= b.Min && tokens <= b.Max
}

// ChunkingConfig configures the structure parser, chunker, refiner and quality validator.
type ChunkingConfig struct {
	Bands           map[Scale]TokenBand `yaml:"bands" json:"bands"`
	IdealBand       TokenBand           `yaml:"ideal_band" json:"ideal_band"`
	ParentThreshold float64             `yaml:"parent_threshold" json:"parent_threshold" validate:"gte=0,lte=1"`
	MinQuality      float64             `yaml:"min_quality" json:"min_quality" validate:"gte=0,lte=1"`
	Tokenizer       string              `yaml:"tokenizer" json:"tokenizer" validate:"oneof=approximate tiktoken"`

	Refine             bool    `yaml:"refine" json:"refine"`
	RefineThreshold    float64 `yaml:"refine_threshold" json:"refine_threshold" validate:"gte=0,lte=1"`
	RefineMinChars     int     `yaml:"refine_min_chars" json:"refine_min_chars" validate:"gte=0"`
	RefineUseEmbedding bool    `yaml:"refine_use_embedding" json:"refine_use_embedding"`
}

// BoostMode selects where the domain keyword boost is applied.
type BoostMode string

const (
	BoostNone   BoostMode = "none"
	BoostText   BoostMode = "text"
	BoostVector BoostMode = "vector"
)

// EmbeddingConfig configures the multi-scale embedder.
type EmbeddingConfig struct {
	Model         string          `yaml:"model" json:"model" validate:"required"`
	Dimension     int             `yaml:"dimension" json:"dimension" validate:"gte=1"`
	Types         []EmbeddingType `yaml:"types" json:"types" validate:"min=1,dive,oneof=content contextual hierarchical semantic"`
	CacheTTL      time.Duration   `yaml:"cache_ttl" json:"cache_ttl"`
	MaxRetries    int             `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	RetryBackoff  time.Duration   `yaml:"retry_backoff" json:"retry_backoff"`
	CallTimeout   time.Duration   `yaml:"call_timeout" json:"call_timeout"`
	RateLimit     float64         `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"` // calls per second, 0 disables
	DomainTerms   []string        `yaml:"domain_terms" json:"domain_terms"`
	BoostMode     BoostMode       `yaml:"boost_mode" json:"boost_mode" validate:"oneof=none text vector"`
	BoostWeight   float64         `yaml:"boost_weight" json:"boost_weight" validate:"gte=1"`
	SemanticTerms int             `yaml:"semantic_terms" json:"semantic_terms" validate:"gte=1"`
}

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	KeywordWeight  float64                   `yaml:"keyword_weight" json:"keyword_weight" validate:"gte=0,lte=1"`
	CandidateLimit int                       `yaml:"candidate_limit" json:"candidate_limit" validate:"gte=1"`
	TypeWeights    map[EmbeddingType]float64 `yaml:"type_weights" json:"type_weights"`
	IntentBoost    float64                   `yaml:"intent_boost" json:"intent_boost" validate:"gte=0"`
}

// AssemblyConfig configures the context assembler.
type AssemblyConfig struct {
	Expand             bool    `yaml:"expand" json:"expand"`
	MaxExpansion       int     `yaml:"max_expansion" json:"max_expansion" validate:"gte=0"`
	ExpansionDiscount  float64 `yaml:"expansion_discount" json:"expansion_discount" validate:"gte=0,lte=1"`
	RedundancyCeiling  float64 `yaml:"redundancy_ceiling" json:"redundancy_ceiling" validate:"gt=0,lte=1"`
	InterleaveSources  bool    `yaml:"interleave_sources" json:"interleave_sources"`
	MitigateLostMiddle bool    `yaml:"mitigate_lost_middle" json:"mitigate_lost_middle"`
	MaxTokens          int     `yaml:"max_tokens" json:"max_tokens" validate:"gte=0"` // 0 disables
}

// ConfidenceWeights are the component weights of the aggregate.
type ConfidenceWeights struct {
	Retrieval  float64 `yaml:"retrieval" json:"retrieval" validate:"gte=0"`
	Content    float64 `yaml:"content" json:"content" validate:"gte=0"`
	Context    float64 `yaml:"context" json:"context" validate:"gte=0"`
	Generation float64 `yaml:"generation" json:"generation" validate:"gte=0"`
}

// ConfidenceConfig configures the confidence assessor.
type ConfidenceConfig struct {
	Weights           ConfidenceWeights `yaml:"weights" json:"weights"`
	HighThreshold     float64           `yaml:"high_threshold" json:"high_threshold" validate:"gte=0,lte=1"`
	MediumThreshold   float64           `yaml:"medium_threshold" json:"medium_threshold" validate:"gte=0,lte=1"`
	FallbackThreshold float64           `yaml:"fallback_threshold" json:"fallback_threshold" validate:"gte=0,lte=1"`
	MinAnswerWords    int               `yaml:"min_answer_words" json:"min_answer_words" validate:"gte=1"`
}

// CitationConfig configures the citation manager.
type CitationConfig struct {
	Format          CitationFormat `yaml:"format" json:"format" validate:"oneof=inline numbered academic detailed"`
	MinClaimOverlap float64        `yaml:"min_claim_overlap" json:"min_claim_overlap" validate:"gte=0,lte=1"`
}

// IngestionConfig configures the orchestrator.
type IngestionConfig struct {
	Workers          int  `yaml:"workers" json:"workers" validate:"gte=1"`
	StopOnError      bool `yaml:"stop_on_error" json:"stop_on_error"`
	MaxDocumentChars int  `yaml:"max_document_chars" json:"max_document_chars" validate:"gte=1"`
}

// Config is the immutable pipeline configuration.
// It is built once and copied into each component at construction.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding" json:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Assembly   AssemblyConfig   `yaml:"assembly" json:"assembly"`
	Confidence ConfidenceConfig `yaml:"confidence" json:"confidence"`
	Citation   CitationConfig   `yaml:"citation" json:"citation"`
	Ingestion  IngestionConfig  `yaml:"ingestion" json:"ingestion"`
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		Chunking: ChunkingConfig{
			Bands: map[Scale]TokenBand{
				ScaleDocument:  {Min: 20, Max: 8000},
				ScaleSection:   {Min: 20, Max: 1500},
				ScaleParagraph: {Min: 10, Max: 400},
				ScaleSentence:  {Min: 5, Max: 80},
			},
			IdealBand:       TokenBand{Min: 20, Max: 400},
			ParentThreshold: 0.3,
			MinQuality:      0.55,
			Tokenizer:       "approximate",
			Refine:          false,
			RefineThreshold: 0.3,
			RefineMinChars:  50,
		},
		Embedding: EmbeddingConfig{
			Model:         "hashing-384",
			Dimension:     384,
			Types:         []EmbeddingType{EmbeddingTypeContent},
			CacheTTL:      time.Hour,
			MaxRetries:    3,
			RetryBackoff:  200 * time.Millisecond,
			BoostMode:     BoostNone,
			BoostWeight:   1.5,
			SemanticTerms: 12,
		},
		Retrieval: RetrievalConfig{
			KeywordWeight:  0.3,
			CandidateLimit: 50,
			TypeWeights: map[EmbeddingType]float64{
				EmbeddingTypeContent:      1.0,
				EmbeddingTypeContextual:   0.8,
				EmbeddingTypeHierarchical: 0.6,
				EmbeddingTypeSemantic:     0.6,
			},
			IntentBoost: 0.15,
		},
		Assembly: AssemblyConfig{
			Expand:             true,
			MaxExpansion:       3,
			ExpansionDiscount:  0.8,
			RedundancyCeiling:  0.8,
			InterleaveSources:  false,
			MitigateLostMiddle: true,
		},
		Confidence: ConfidenceConfig{
			Weights: ConfidenceWeights{
				Retrieval:  0.4,
				Content:    0.25,
				Context:    0.2,
				Generation: 0.15,
			},
			HighThreshold:     0.75,
			MediumThreshold:   0.5,
			FallbackThreshold: 0.5,
			MinAnswerWords:    20,
		},
		Citation: CitationConfig{
			Format:          CitationNumbered,
			MinClaimOverlap: 0.3,
		},
		Ingestion: IngestionConfig{
			Workers:          4,
			StopOnError:      false,
			MaxDocumentChars: 10_000_000,
		},
	}
}

// Band returns the token band of a scale.
func (c ChunkingConfig) Band(scale Scale) TokenBand {
	if band, ok := c.Bands[scale]; ok {
		return band
	}
	return DefaultConfig().Chunking.Bands[scale]
}

// Validate checks the configuration once before it is handed to the components.
func (c Config) Validate() error {
	if err := helper.Validate(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, scale := range Scales {
		band := c.Chunking.Band(scale)
		if band.Min < 1 || band.Max < band.Min {
			return fmt.Errorf("%w: invalid token band for scale %s", ErrValidation, scale)
		}
	}
	w := c.Confidence.Weights
	if w.Retrieval+w.Content+w.Context+w.Generation <= 0 {
		return fmt.Errorf("%w: confidence weights must not all be zero", ErrValidation)
	}
	if c.Confidence.MediumThreshold > c.Confidence.HighThreshold {
		return fmt.Errorf("%w: medium threshold above high threshold", ErrValidation)
	}
	return nil
}

// LoadConfig overlays a YAML file onto DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return config, helper.NewError("read config", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, helper.NewError("parse config", err)
	}
	if err := config.Validate(); err != nil {
		return config, helper.NewError("validate config", err)
	}
	return config, nil
}
