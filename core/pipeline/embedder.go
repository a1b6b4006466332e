package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	"golang.org/x/time/rate"
)

// ChunkFailure records an embedding that could not be produced.
type ChunkFailure struct {
	ChunkID uuid.UUID
	Type    model.EmbeddingType
	Err     error
}

// EmbedResult is the outcome of embedding a set of chunks.
type EmbedResult struct {
	Embeddings []*model.Embedding
	Failures   []ChunkFailure
	CacheHits  int
}

// Embedder computes every configured embedding type for chunks with
// caching, domain keyword boosting, retries and rate limiting.
type Embedder struct {
	provider    Provider
	config      model.EmbeddingConfig
	cache       *cache.Cache
	limiter     *rate.Limiter
	domainTerms []string
	logger      *slog.Logger

	mu         sync.Mutex
	dimensions map[model.EmbeddingType]int
}

// NewEmbedder creates an embedder. A zero cache TTL disables caching and a
// zero rate limit disables limiting.
func NewEmbedder(provider Provider, config model.EmbeddingConfig, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Embedder{
		provider:   provider,
		config:     config,
		logger:     logger,
		dimensions: make(map[model.EmbeddingType]int),
	}
	if config.CacheTTL > 0 {
		e.cache = cache.New(config.CacheTTL, 2*config.CacheTTL)
	}
	if config.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	for _, term := range config.DomainTerms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			e.domainTerms = append(e.domainTerms, term)
		}
	}
	return e
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.config.Model
}

// Types returns the enabled embedding types.
func (e *Embedder) Types() []model.EmbeddingType {
	return e.config.Types
}

// TextFor returns the text sent to the provider for an embedding type.
func (e *Embedder) TextFor(chunk *model.Chunk, embeddingType model.EmbeddingType) string {
	switch embeddingType {
	case model.EmbeddingTypeContextual:
		if chunk.Heading != "" {
			return chunk.Heading + "\n\n" + chunk.Content
		}
	case model.EmbeddingTypeHierarchical:
		if len(chunk.HierarchyPath) > 0 {
			return strings.Join(chunk.HierarchyPath, " > ") + "\n\n" + chunk.Content
		}
	case model.EmbeddingTypeSemantic:
		return e.semanticText(chunk.Content)
	}
	return chunk.Content
}

func (e *Embedder) semanticText(text string) string {
	keywords := helper.Keywords(text)
	if len(keywords) == 0 {
		return text
	}
	if len(keywords) > e.config.SemanticTerms && e.config.SemanticTerms > 0 {
		keywords = keywords[:e.config.SemanticTerms]
	}
	return strings.Join(keywords, " ")
}

// EmbedChunks embeds every chunk with every enabled type. Provider failures
// are recorded per chunk and do not stop the batch; only a cancelled
// context returns an error. progress is called after every chunk.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []*model.Chunk, progress func(done, total int)) (*EmbedResult, error) {
	result := &EmbedResult{}
	for i, chunk := range chunks {
		for _, embeddingType := range e.config.Types {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			embedding, cached, err := e.Embed(ctx, chunk, embeddingType)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, ctxErr
				}
				result.Failures = append(result.Failures, ChunkFailure{ChunkID: chunk.ID, Type: embeddingType, Err: err})
				continue
			}
			if cached {
				result.CacheHits++
			}
			result.Embeddings = append(result.Embeddings, embedding)
		}
		if progress != nil {
			progress(i+1, len(chunks))
		}
	}
	return result, nil
}

// Embed computes one embedding of a chunk and reports whether it came from the cache.
func (e *Embedder) Embed(ctx context.Context, chunk *model.Chunk, embeddingType model.EmbeddingType) (*model.Embedding, bool, error) {
	vector, cached, err := e.vector(ctx, e.TextFor(chunk, embeddingType), embeddingType)
	if err != nil {
		return nil, false, helper.NewError(fmt.Sprintf("embed chunk %s (%s)", chunk.ID, embeddingType), err)
	}
	return &model.Embedding{
		ChunkID:   chunk.ID,
		Type:      embeddingType,
		Model:     e.config.Model,
		Vector:    vector,
		CreatedAt: time.Now(),
	}, cached, nil
}

// EmbedQuery embeds a query for comparison against one embedding type.
func (e *Embedder) EmbedQuery(ctx context.Context, query string, embeddingType model.EmbeddingType) ([]float32, error) {
	text := query
	if embeddingType == model.EmbeddingTypeSemantic {
		text = e.semanticText(query)
	}
	vector, _, err := e.vector(ctx, text, embeddingType)
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}
	return vector, nil
}

func (e *Embedder) vector(ctx context.Context, text string, embeddingType model.EmbeddingType) ([]float32, bool, error) {
	if e.config.BoostMode == model.BoostText {
		text = e.boostText(text)
	}

	key := helper.ContentHash(text) + ":" + e.config.Model + ":" + string(embeddingType)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			return append([]float32(nil), v.([]float32)...), true, nil
		}
	}

	vector, err := e.call(ctx, text, embeddingType)
	if err != nil {
		return nil, false, err
	}

	if e.config.BoostMode == model.BoostVector {
		if terms := e.matchedTerms(text); len(terms) > 0 {
			boost, err := e.call(ctx, strings.Join(terms, " "), embeddingType)
			if err != nil {
				return nil, false, err
			}
			vector = boostVector(vector, boost, e.config.BoostWeight)
		}
	}

	if e.cache != nil {
		e.cache.Set(key, append([]float32(nil), vector...), cache.DefaultExpiration)
	}
	return vector, false, nil
}

// call requests a vector with rate limiting, a per-call timeout and retries.
// Invalid vectors and unembeddable input are not retried.
func (e *Embedder) call(ctx context.Context, text string, embeddingType model.EmbeddingType) ([]float32, error) {
	var vector []float32
	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx := ctx
		if e.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.config.CallTimeout)
			defer cancel()
		}

		v, err := e.provider.Embed(callCtx, text, e.config.Model)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, ErrUnembeddable) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := e.validate(v, embeddingType); err != nil {
			return backoff.Permanent(err)
		}
		vector = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if e.config.RetryBackoff > 0 {
		b.InitialInterval = e.config.RetryBackoff
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(e.config.MaxRetries, 0))), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		e.logger.Warn("Embedding provider call failed, retrying", slog.String("embedding_type", string(embeddingType)), slog.Duration("wait", wait), slog.String("error", err.Error()))
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", model.ErrProvider, err)
	}
	return vector, nil
}

// validate rejects empty and non-finite vectors and vectors whose dimension
// differs from the configured or first seen dimension of the type.
func (e *Embedder) validate(vector []float32, embeddingType model.EmbeddingType) error {
	if !helper.IsFiniteVector(vector) {
		return errors.New("provider returned an empty or non-finite vector")
	}
	if e.config.Dimension > 0 && len(vector) != e.config.Dimension {
		return fmt.Errorf("provider returned dimension %d, expected %d", len(vector), e.config.Dimension)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if dim, ok := e.dimensions[embeddingType]; ok && dim != len(vector) {
		return fmt.Errorf("provider returned dimension %d for %s, expected %d", len(vector), embeddingType, dim)
	}
	e.dimensions[embeddingType] = len(vector)
	return nil
}

// matchedTerms returns the domain terms occurring in text.
func (e *Embedder) matchedTerms(text string) []string {
	if len(e.domainTerms) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var terms []string
	for _, term := range e.domainTerms {
		if strings.Contains(lower, term) {
			terms = append(terms, term)
		}
	}
	return terms
}

// boostText repeats matched domain terms so they weigh more in the provider's pooling.
func (e *Embedder) boostText(text string) string {
	terms := e.matchedTerms(text)
	if len(terms) == 0 {
		return text
	}
	repeats := int(math.Round(e.config.BoostWeight)) - 1
	if repeats < 1 {
		repeats = 1
	}
	var b strings.Builder
	b.WriteString(text)
	for _, term := range terms {
		for i := 0; i < repeats; i++ {
			b.WriteString(" ")
			b.WriteString(term)
		}
	}
	return b.String()
}

// boostVector adds the term vector scaled by weight-1 and renormalises.
func boostVector(vector, terms []float32, weight float64) []float32 {
	if len(vector) != len(terms) {
		return vector
	}
	boosted := make([]float32, len(vector))
	for i := range vector {
		boosted[i] = vector[i] + float32(weight-1)*terms[i]
	}
	return helper.Normalize(boosted)
}
