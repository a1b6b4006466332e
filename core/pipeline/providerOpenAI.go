package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider requests embeddings from the OpenAI embeddings API.
type OpenAIProvider struct {
	client     openai.Client
	dimensions int64
}

// NewOpenAIProvider creates a provider. A dimensions value above zero asks
// the API for shortened vectors.
func NewOpenAIProvider(apiKey string, dimensions int, opts ...option.RequestOption) *OpenAIProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		dimensions: int64(dimensions),
	}
}

// Embed requests the embedding of text with the given model.
func (p *OpenAIProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(p.dimensions)
	}

	response, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && isClientError(apiErr.StatusCode) {
			return nil, fmt.Errorf("%w: failed to request embedding: %w", ErrUnembeddable, err)
		}
		return nil, fmt.Errorf("failed to request embedding: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	vector := make([]float32, len(response.Data[0].Embedding))
	for i, v := range response.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// isClientError reports 4xx responses that a retry cannot fix.
// Timeouts and rate limits stay retryable.
func isClientError(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}
