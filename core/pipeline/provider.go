package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/siherrmann/grounder/helper"
)

// HashingProvider is a deterministic offline provider that maps the words
// and word bigrams of a text into a fixed number of signed buckets.
type HashingProvider struct {
	Dimension int
}

// NewHashingProvider creates a hashing provider with the given dimension.
func NewHashingProvider(dimension int) *HashingProvider {
	return &HashingProvider{Dimension: dimension}
}

// Embed returns the normalised hashed bag of words of text. The model is ignored.
func (p *HashingProvider) Embed(ctx context.Context, text string, _ string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Dimension <= 0 {
		return nil, fmt.Errorf("%w: hashing provider dimension must be positive", ErrUnembeddable)
	}

	words := helper.Words(text)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: no words to embed", ErrUnembeddable)
	}

	vector := make([]float32, p.Dimension)
	for i, w := range words {
		weight := float32(1)
		if helper.IsStopword(w) {
			weight = 0.25
		}
		p.add(vector, w, weight)
		if i > 0 {
			p.add(vector, words[i-1]+" "+w, 0.5)
		}
	}
	return helper.Normalize(vector), nil
}

func (p *HashingProvider) add(vector []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	index := int(sum % uint64(p.Dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[index] += weight
}
