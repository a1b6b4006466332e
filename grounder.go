package grounder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/core/assembly"
	"github.com/siherrmann/grounder/core/citation"
	"github.com/siherrmann/grounder/core/confidence"
	"github.com/siherrmann/grounder/core/graph"
	"github.com/siherrmann/grounder/core/ingestion"
	"github.com/siherrmann/grounder/core/pipeline"
	"github.com/siherrmann/grounder/core/retrieval"
	"github.com/siherrmann/grounder/database"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Store is everything the pipeline needs from persistence.
// database.Store and memory.Store both satisfy it.
type Store interface {
	ingestion.Store
	retrieval.Store
	graph.ChunkGraph
	Document(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error)
	Jobs(ctx context.Context, sourceID string) ([]*model.IngestionJob, error)
	SourceStats(ctx context.Context, sourceID string) (*model.SourceStats, error)
	Close() error
}

// Grounder wires ingestion, retrieval, assembly, citations and confidence
// over one store.
type Grounder struct {
	Store        Store
	Chunker      *pipeline.Chunker
	Refiner      *pipeline.Refiner // nil when refinement is disabled
	Embedder     *pipeline.Embedder
	Engine       *retrieval.Engine
	Assembler    *assembly.Assembler
	Assessor     *confidence.Assessor
	Citations    *citation.Manager
	Orchestrator *ingestion.Orchestrator

	provider pipeline.Provider
	config   model.Config
	log      *slog.Logger
}

// AnswerAssessment is the verdict on a generated answer.
type AnswerAssessment struct {
	Citations  *model.CitationReport       `json:"citations"`
	Confidence *model.ConfidenceAssessment `json:"confidence"`
}

// NewGrounder creates a Postgres backed Grounder. A nil provider uses the
// offline hashing provider with the configured dimension.
func NewGrounder(dbConfig *helper.DatabaseConfiguration, provider pipeline.Provider, config model.Config) (*Grounder, error) {
	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)

	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate config", err)
	}

	db := helper.NewDatabase("grounder", dbConfig, logger)
	store, err := database.NewStore(db, config.Embedding.Dimension, false)
	if err != nil {
		return nil, helper.NewError("create store", err)
	}

	return NewGrounderWithStore(store, provider, config, logger)
}

// NewGrounderWithStore creates a Grounder over a caller supplied store.
func NewGrounderWithStore(store Store, provider pipeline.Provider, config model.Config, logger *slog.Logger) (*Grounder, error) {
	if logger == nil {
		logger = helper.NewLogger(os.Stdout, slog.LevelInfo)
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate config", err)
	}
	if provider == nil {
		provider = pipeline.NewHashingProvider(config.Embedding.Dimension)
	}

	counter, err := pipeline.NewTokenCounter(config.Chunking.Tokenizer)
	if err != nil {
		return nil, helper.NewError("create token counter", err)
	}

	var refiner *pipeline.Refiner
	if config.Chunking.Refine {
		var similarity pipeline.SimilarityFunc
		if config.Chunking.RefineUseEmbedding {
			similarity = pipeline.EmbeddingSimilarity(provider, config.Embedding.Model)
		}
		refiner = pipeline.NewRefiner(similarity, config.Chunking.RefineThreshold, config.Chunking.RefineMinChars, counter, logger)
	}

	chunker := pipeline.NewChunker(config.Chunking, counter, logger)
	embedder := pipeline.NewEmbedder(provider, config.Embedding, logger)

	g := &Grounder{
		Store:        store,
		Chunker:      chunker,
		Refiner:      refiner,
		Embedder:     embedder,
		Engine:       retrieval.NewEngine(store, embedder, config.Retrieval, logger),
		Assembler:    assembly.NewAssembler(store, config.Assembly, logger),
		Assessor:     confidence.NewAssessor(config.Confidence),
		Citations:    citation.NewManager(config.Citation),
		Orchestrator: ingestion.NewOrchestrator(store, chunker, refiner, embedder, config, logger),
		provider:     provider,
		config:       config,
		log:          logger,
	}

	logger.Info("Initialized Grounder", slog.String("model", config.Embedding.Model), slog.Int("dimension", config.Embedding.Dimension))
	return g, nil
}

// Config returns the configuration the Grounder was built with.
func (g *Grounder) Config() model.Config {
	return g.config
}

// IngestDocument runs one document through the ingestion pipeline.
// The result is never nil, even when an error is returned.
func (g *Grounder) IngestDocument(ctx context.Context, doc *model.Document) (*model.IngestionResult, error) {
	return g.Orchestrator.Ingest(ctx, doc)
}

// IngestFile reads a file and ingests it as the given source version.
func (g *Grounder) IngestFile(ctx context.Context, path string, sourceID string, version int, metadata model.Metadata) (*model.IngestionResult, error) {
	doc, err := model.NewDocumentFromFile(path, sourceID, version, metadata)
	if err != nil {
		return &model.IngestionResult{SourceID: sourceID, Version: version, Error: err.Error()}, helper.NewError("read document", err)
	}
	return g.Orchestrator.Ingest(ctx, doc)
}

// IngestBatch ingests documents with the configured worker pool.
func (g *Grounder) IngestBatch(ctx context.Context, docs []*model.Document) *model.BatchResult {
	return g.Orchestrator.IngestBatch(ctx, docs)
}

// Query retrieves, assembles and scores context for a question.
// Empty or weak results still produce a response with a fallback.
// Only invalid queries and store failures return an error.
func (g *Grounder) Query(ctx context.Context, query model.RetrievalQuery) (*model.QueryResponse, error) {
	start := time.Now()
	query = retrieval.Normalize(query)

	result, err := g.Engine.Retrieve(ctx, query)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	assembled, err := g.Assembler.Assemble(ctx, result.Results)
	if err != nil {
		return nil, helper.NewError("assemble context", err)
	}

	assessment := g.Assessor.Assess(confidence.Signals{
		Results:  result.Results,
		Analysis: &result.Analysis,
	})

	response := &model.QueryResponse{
		Chunks: assembled.Results,
		Metadata: model.ResponseMetadata{
			Strategy:            query.Strategy,
			Metric:              query.Metric,
			TotalResults:        result.Total,
			RetrievedResults:    len(result.Results),
			Expanded:            assembled.Expanded,
			Deduplicated:        assembled.Deduplicated,
			TotalTokens:         assembled.TotalTokens,
			SimilarityThreshold: query.SimilarityThreshold,
			ProcessingTime:      time.Since(start),
		},
		QueryAnalysis: result.Analysis,
		Confidence:    assessment,
		Citations:     g.Citations.FromResults(assembled.Results),
		Fallback:      assessment.Fallback,
	}

	g.log.Debug("Query answered",
		slog.String("strategy", string(query.Strategy)),
		slog.Int("chunks", len(response.Chunks)),
		slog.Float64("confidence", assessment.Score),
	)
	return response, nil
}

// AssessAnswer validates the citations of a generated answer against the
// response it was generated from and scores the combined confidence.
func (g *Grounder) AssessAnswer(response *model.QueryResponse, answer string, complete bool) *AnswerAssessment {
	var results []*model.RetrievalResult
	var analysis *model.QueryAnalysis
	if response != nil {
		results = response.Chunks
		analysis = &response.QueryAnalysis
	}

	report := g.Citations.Validate(answer, results)
	assessment := g.Assessor.Assess(confidence.Signals{
		Results:   results,
		Analysis:  analysis,
		Answer:    answer,
		Complete:  complete,
		Citations: report,
	})

	return &AnswerAssessment{Citations: report, Confidence: assessment}
}

// Job returns the persisted state of an ingestion job.
func (g *Grounder) Job(ctx context.Context, jobID uuid.UUID) (*model.IngestionJob, error) {
	return g.Orchestrator.Job(ctx, jobID)
}

// CancelJob stops a running ingestion job at its next step boundary.
func (g *Grounder) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	return g.Orchestrator.Cancel(ctx, jobID)
}

// Navigate walks the chunk hierarchy breadth-first from chunkID along the
// given relations. No relations means parent, child and sibling.
func (g *Grounder) Navigate(ctx context.Context, chunkID uuid.UUID, maxHops int, relations ...graph.Relation) ([]*graph.TraversalResult, error) {
	return graph.BFS(ctx, g.Store, chunkID, maxHops, relations)
}

// Ancestors returns the parent chain of a chunk, nearest first.
func (g *Grounder) Ancestors(ctx context.Context, chunkID uuid.UUID) ([]*model.Chunk, error) {
	return graph.Ancestors(ctx, g.Store, chunkID)
}

// SourceStats returns the aggregate statistics of a source.
func (g *Grounder) SourceStats(ctx context.Context, sourceID string) (*model.SourceStats, error) {
	return g.Store.SourceStats(ctx, sourceID)
}

// Close closes the underlying store and the provider if it holds resources.
func (g *Grounder) Close() error {
	var errs []error
	if closer, ok := g.provider.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if g.Store != nil {
		errs = append(errs, g.Store.Close())
	}
	return errors.Join(errs...)
}
