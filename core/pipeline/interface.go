package pipeline

import (
	"context"
	"errors"

	"github.com/siherrmann/grounder/model"
)

// ErrUnembeddable is wrapped by providers for input or configuration that
// fails the same way on every call. The embedder does not retry it.
var ErrUnembeddable = errors.New("input cannot be embedded")

// Provider computes an embedding vector for a text with the given model.
type Provider interface {
	Embed(ctx context.Context, text string, model string) ([]float32, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, text string, model string) ([]float32, error)

// Embed calls f.
func (f ProviderFunc) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	return f(ctx, text, model)
}

// TokenCounter estimates the number of tokens of a text.
type TokenCounter interface {
	Count(text string) int
}

// SimilarityFunc compares two adjacent sentences for boundary refinement.
// The result is expected in [0,1].
type SimilarityFunc func(ctx context.Context, a, b string) (float64, error)

// ChunkStats counts what happened to the chunks of one document.
type ChunkStats struct {
	Created  int
	Rejected int
	Refined  int
	ByScale  map[model.Scale]int
}
