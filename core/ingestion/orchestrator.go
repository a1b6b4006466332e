package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/core/pipeline"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Store is the write side of the document store used during ingestion.
type Store interface {
	DocumentExists(ctx context.Context, sourceID string, version int) (bool, error)
	// SaveDocument persists a document with its chunks and embeddings atomically.
	SaveDocument(ctx context.Context, doc *model.Document, chunks []*model.Chunk, embeddings []*model.Embedding) error
	IncrementSourceStats(ctx context.Context, sourceID string, version, chunks, embeddings int) (*model.SourceStats, error)
	UpsertJob(ctx context.Context, job *model.IngestionJob) error
	Job(ctx context.Context, id uuid.UUID) (*model.IngestionJob, error)
}

// Orchestrator drives documents through validation, chunking, embedding
// and storage as ingestion jobs.
type Orchestrator struct {
	store    Store
	chunker  *pipeline.Chunker
	refiner  *pipeline.Refiner
	embedder *pipeline.Embedder
	config   model.Config
	logger   *slog.Logger

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelCauseFunc
}

// NewOrchestrator creates a new orchestrator. A nil refiner skips semantic
// boundary refinement.
func NewOrchestrator(store Store, chunker *pipeline.Chunker, refiner *pipeline.Refiner, embedder *pipeline.Embedder, config model.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		chunker:  chunker,
		refiner:  refiner,
		embedder: embedder,
		config:   config,
		logger:   logger,
		running:  make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// Validate rejects documents before a job is created.
func (o *Orchestrator) Validate(doc *model.Document) error {
	if doc == nil {
		return helper.NewError("validate document", fmt.Errorf("%w: document is nil", model.ErrValidation))
	}
	if err := doc.Validate(); err != nil {
		return helper.NewError("validate document", err)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return helper.NewError("validate document", fmt.Errorf("%w: document content is empty", model.ErrValidation))
	}
	if len(doc.Content) > o.config.Ingestion.MaxDocumentChars {
		return helper.NewError("validate document", fmt.Errorf("%w: document exceeds %d characters", model.ErrValidation, o.config.Ingestion.MaxDocumentChars))
	}
	return nil
}

// Ingest runs one document through the pipeline. The returned result is
// never nil. Validation errors create no job; every later failure leaves
// the job failed with its error recorded. The caller's document is not
// modified; the assigned id and statistics are reported in the result.
func (o *Orchestrator) Ingest(ctx context.Context, doc *model.Document) (*model.IngestionResult, error) {
	start := time.Now()
	result := &model.IngestionResult{}
	if doc != nil {
		result.SourceID = doc.SourceID
		result.Version = doc.Version
	}

	if err := o.Validate(doc); err != nil {
		result.Error = err.Error()
		result.ProcessingTime = time.Since(start)
		return result, err
	}

	working := *doc
	if doc.Metadata != nil {
		working.Metadata = doc.Metadata.Clone()
	}
	doc = &working

	now := time.Now()
	job := &model.IngestionJob{
		ID:        uuid.New(),
		SourceID:  doc.SourceID,
		Version:   doc.Version,
		Type:      model.JobTypeDocument,
		Status:    model.JobStatusPending,
		Step:      model.StepPending,
		CreatedAt: now,
		Stats: model.JobStats{
			ChunksByScale: map[model.Scale]int{},
			StepDurations: map[model.JobStep]time.Duration{},
		},
	}
	if err := o.store.UpsertJob(ctx, job); err != nil {
		err = helper.NewError("create job", fmt.Errorf("%w: %w", model.ErrPersistence, err))
		result.Error = err.Error()
		result.ProcessingTime = time.Since(start)
		return result, err
	}
	result.JobID = &job.ID

	jobCtx, cancel := context.WithCancelCause(ctx)
	o.mu.Lock()
	o.running[job.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, job.ID)
		o.mu.Unlock()
		cancel(nil)
	}()

	r := &run{o: o, ctx: jobCtx, job: job, doc: doc, result: result, stepStart: time.Now()}
	err := r.execute()
	result.ProcessingTime = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Success = true
	return result, nil
}

// Cancel marks a running job for cancellation. The job stops issuing
// provider calls at the next step boundary and ends failed. Cancelling a
// job that already finished is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobID uuid.UUID) error {
	o.mu.Lock()
	cancel, ok := o.running[jobID]
	o.mu.Unlock()
	if ok {
		cancel(model.ErrCancelled)
		o.logger.Info("Cancelling job", slog.String("job_id", jobID.String()))
		return nil
	}

	if _, err := o.store.Job(ctx, jobID); err != nil {
		return helper.NewError("cancel job", err)
	}
	return nil
}

// Running returns the ids of the jobs in flight.
func (o *Orchestrator) Running() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	return ids
}

// Job returns the persisted job record.
func (o *Orchestrator) Job(ctx context.Context, jobID uuid.UUID) (*model.IngestionJob, error) {
	job, err := o.store.Job(ctx, jobID)
	if err != nil {
		return nil, helper.NewError("select job", err)
	}
	return job, nil
}

// run is the state of one job execution.
type run struct {
	o         *Orchestrator
	ctx       context.Context
	job       *model.IngestionJob
	doc       *model.Document
	result    *model.IngestionResult
	stepStart time.Time
}

func (r *run) execute() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during %s: %v", r.job.Step, p)
		}
		if err != nil {
			err = r.fail(err)
		} else if !r.job.Status.Terminal() {
			err = r.fail(errors.New("job ended without reaching a terminal state"))
		}
	}()

	if err := r.validate(); err != nil {
		return err
	}
	set, err := r.chunk()
	if err != nil {
		return err
	}
	embedded, err := r.embed(set.Chunks)
	if err != nil {
		return err
	}
	if err := r.store(set.Chunks, embedded.Embeddings); err != nil {
		return err
	}
	r.updateStatistics()
	return r.complete()
}

func (r *run) validate() error {
	now := time.Now()
	r.job.Status = model.JobStatusRunning
	r.job.StartedAt = &now
	if err := r.transition(model.StepValidatingDocument, 10); err != nil {
		return err
	}

	exists, err := r.o.store.DocumentExists(r.ctx, r.doc.SourceID, r.doc.Version)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	if exists {
		return fmt.Errorf("%w: %s version %d", model.ErrDocumentVersionExists, r.doc.SourceID, r.doc.Version)
	}

	if r.doc.ID == uuid.Nil {
		r.doc.ID = uuid.New()
	}
	r.doc.ComputeStats()
	r.result.Document = model.DocumentSummary{
		ID:        r.doc.ID,
		Title:     r.doc.Title,
		PageCount: r.doc.PageCount,
		CharCount: r.doc.CharCount,
		WordCount: r.doc.WordCount,
	}
	return nil
}

func (r *run) chunk() (*pipeline.ChunkSet, error) {
	step := model.StepChunking
	if r.o.refiner != nil {
		step = model.StepAdvancedProcessing
	}
	if err := r.transition(step, 30); err != nil {
		return nil, err
	}

	set, stats := r.o.chunker.Chunk(r.ctx, r.doc, r.o.refiner)
	r.job.Stats.ChunksCreated = stats.Created
	r.job.Stats.ChunksRejected = stats.Rejected
	r.job.Stats.ChunksRefined = stats.Refined
	r.job.Stats.ChunksByScale = stats.ByScale

	tokens, quality := 0, 0.0
	for _, c := range set.Chunks {
		tokens += c.TokenCount
		quality += c.QualityScore
	}
	if set.Len() > 0 {
		r.job.Stats.AverageTokens = float64(tokens) / float64(set.Len())
		r.job.Stats.AverageQuality = quality / float64(set.Len())
	}
	r.result.Chunks = model.ChunkSummary{
		Total:          stats.Created + stats.Rejected,
		Rejected:       stats.Rejected,
		AverageTokens:  r.job.Stats.AverageTokens,
		AverageQuality: r.job.Stats.AverageQuality,
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: no chunk passed quality validation", model.ErrValidation)
	}
	return set, nil
}

func (r *run) embed(chunks []*model.Chunk) (*pipeline.EmbedResult, error) {
	if err := r.transition(model.StepEmbedding, 50); err != nil {
		return nil, err
	}

	progress := func(done, total int) {
		if total == 0 {
			return
		}
		p := 50 + 30*done/total
		if p == r.job.Progress {
			return
		}
		r.job.Progress = p
		if err := r.o.store.UpsertJob(context.WithoutCancel(r.ctx), r.job); err != nil {
			r.o.logger.Warn("Persisting embedding progress failed", slog.String("job_id", r.job.ID.String()), slog.String("error", err.Error()))
		}
	}

	embedded, err := r.o.embedder.EmbedChunks(r.ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	r.job.Stats.EmbeddingsGenerated = len(embedded.Embeddings)
	r.job.Stats.EmbeddingsFailed = len(embedded.Failures)
	r.job.Stats.CacheHits = embedded.CacheHits
	r.result.Embeddings = model.EmbeddingSummary{
		Model:     r.o.embedder.Model(),
		Dimension: r.o.config.Embedding.Dimension,
		Generated: len(embedded.Embeddings),
		Failed:    len(embedded.Failures),
	}
	for _, f := range embedded.Failures {
		r.o.logger.Warn("Chunk embedding failed",
			slog.String("job_id", r.job.ID.String()),
			slog.String("chunk_id", f.ChunkID.String()),
			slog.String("type", string(f.Type)),
			slog.String("error", f.Err.Error()),
		)
	}

	if len(embedded.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: all %d embeddings failed", model.ErrProvider, len(embedded.Failures))
	}
	return embedded, nil
}

func (r *run) store(chunks []*model.Chunk, embeddings []*model.Embedding) error {
	if err := r.transition(model.StepStoring, 85); err != nil {
		return err
	}

	if err := r.o.store.SaveDocument(r.ctx, r.doc, chunks, embeddings); err != nil {
		if errors.Is(err, model.ErrDocumentVersionExists) {
			return err
		}
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	r.job.DocumentID = &r.doc.ID
	r.result.Chunks.Stored = len(chunks)
	return nil
}

// updateStatistics never fails the job: the document is already stored.
func (r *run) updateStatistics() {
	if err := r.transition(model.StepUpdatingStatistics, 95); err != nil {
		r.o.logger.Warn("Persisting job step failed", slog.String("job_id", r.job.ID.String()), slog.String("error", err.Error()))
	}
	_, err := r.o.store.IncrementSourceStats(context.WithoutCancel(r.ctx), r.doc.SourceID, r.doc.Version, r.result.Chunks.Stored, r.result.Embeddings.Generated)
	if err != nil {
		r.o.logger.Error("Updating source statistics failed", slog.String("job_id", r.job.ID.String()), slog.String("source_id", r.doc.SourceID), slog.String("error", err.Error()))
	}
}

func (r *run) complete() error {
	r.finishStep()
	now := time.Now()
	r.job.Status = model.JobStatusCompleted
	r.job.Step = model.StepCompleted
	r.job.Progress = 100
	r.job.CompletedAt = &now
	if err := r.o.store.UpsertJob(context.WithoutCancel(r.ctx), r.job); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	r.o.logger.Info("Job completed",
		slog.String("job_id", r.job.ID.String()),
		slog.String("source_id", r.doc.SourceID),
		slog.Int("chunks", r.result.Chunks.Stored),
		slog.Int("embeddings", r.result.Embeddings.Generated),
	)
	return nil
}

// transition checks for cancellation, then persists the new step before it runs.
func (r *run) transition(step model.JobStep, progress int) error {
	if err := r.checkpoint(); err != nil {
		return err
	}
	r.finishStep()
	r.job.Step = step
	r.job.Progress = progress
	if err := r.o.store.UpsertJob(r.ctx, r.job); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	r.o.logger.Info("Job transition", slog.String("job_id", r.job.ID.String()), slog.String("step", string(step)), slog.Int("progress", progress))
	return nil
}

func (r *run) checkpoint() error {
	if r.ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(r.ctx), model.ErrCancelled) {
		return model.ErrCancelled
	}
	return fmt.Errorf("%w: %w", model.ErrCancelled, r.ctx.Err())
}

func (r *run) finishStep() {
	if r.job.Step != model.StepPending {
		r.job.Stats.StepDurations[r.job.Step] += time.Since(r.stepStart)
	}
	r.stepStart = time.Now()
}

// fail records err on the job and persists it even if the job context is
// cancelled. It returns the error wrapped with the failed step.
func (r *run) fail(err error) error {
	if cause := r.checkpoint(); cause != nil && errors.Is(err, context.Canceled) {
		err = cause
	}
	step := r.job.Step
	r.finishStep()

	now := time.Now()
	r.job.Status = model.JobStatusFailed
	r.job.Step = model.StepFailed
	r.job.Error = err.Error()
	r.job.CompletedAt = &now
	if uerr := r.o.store.UpsertJob(context.WithoutCancel(r.ctx), r.job); uerr != nil {
		r.o.logger.Error("Persisting failed job failed", slog.String("job_id", r.job.ID.String()), slog.String("error", uerr.Error()))
	}
	r.o.logger.Error("Job failed",
		slog.String("job_id", r.job.ID.String()),
		slog.String("step", string(step)),
		slog.String("error", err.Error()),
	)
	return helper.NewError(fmt.Sprintf("ingest %s@%d at %s", r.doc.SourceID, r.doc.Version, step), err)
}
