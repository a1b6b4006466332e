package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/grounder/helper"
)

// DefaultHugotModel produces 384-dimensional sentence embeddings.
const DefaultHugotModel = "sentence-transformers/all-MiniLM-L6-v2"

// HugotProvider runs a local sentence transformer through hugot.
type HugotProvider struct {
	model    string
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.Mutex
}

// NewHugotProvider downloads the model if needed and starts a hugot session with the Go backend.
func NewHugotProvider(modelName string) (*HugotProvider, error) {
	if modelName == "" {
		modelName = DefaultHugotModel
	}
	modelPath, err := helper.PrepareModel(modelName, "onnx/model.onnx")
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "grounder-embedder",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &HugotProvider{
		model:    modelName,
		session:  session,
		pipeline: sentencePipeline,
	}, nil
}

// Embed generates the embedding of text. The model must be empty or the loaded model.
func (p *HugotProvider) Embed(ctx context.Context, text string, model string) ([]float32, error) {
	if model != "" && model != p.model {
		return nil, fmt.Errorf("%w: hugot provider serves %s, not %s", ErrUnembeddable, p.model, model)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return result.Embeddings[0], nil
}

// Close destroys the hugot session.
func (p *HugotProvider) Close() error {
	return p.session.Destroy()
}
