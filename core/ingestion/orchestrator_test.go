package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/core/pipeline"
	"github.com/siherrmann/grounder/database/memory"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSaveStore struct {
	*memory.Store
}

func (failingSaveStore) SaveDocument(context.Context, *model.Document, []*model.Chunk, []*model.Embedding) error {
	return errors.New("connection refused")
}

func testConfig() model.Config {
	config := model.DefaultConfig()
	config.Embedding.Dimension = 64
	config.Embedding.RetryBackoff = time.Millisecond
	config.Embedding.MaxRetries = 0
	return config
}

func newOrchestrator(store Store, provider pipeline.Provider, config model.Config) *Orchestrator {
	logger := helper.NewLogger(io.Discard, slog.LevelError)
	chunker := pipeline.NewChunker(config.Chunking, pipeline.ApproximateCounter{}, logger)
	embedder := pipeline.NewEmbedder(provider, config.Embedding, logger)
	return NewOrchestrator(store, chunker, nil, embedder, config, logger)
}

func handbook(version int) *model.Document {
	return &model.Document{SourceID: "ops-handbook", Version: version, Title: "Operations Handbook", Content: helper.SampleHandbook()}
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	orchestrator := newOrchestrator(store, pipeline.NewHashingProvider(64), testConfig())

	var first *model.IngestionResult
	t.Run("Valid call Ingest", func(t *testing.T) {
		result, err := orchestrator.Ingest(ctx, handbook(1))
		require.NoError(t, err)
		first = result

		assert.True(t, result.Success)
		assert.Equal(t, "ops-handbook", result.SourceID)
		require.NotNil(t, result.JobID)
		assert.NotEqual(t, uuid.Nil, result.Document.ID)
		assert.Greater(t, result.Document.WordCount, 1000)
		assert.Greater(t, result.Chunks.Stored, 0)
		assert.Greater(t, result.Chunks.AverageQuality, 0.4)
		assert.Equal(t, result.Chunks.Stored, result.Embeddings.Generated)
		assert.Equal(t, 64, result.Embeddings.Dimension)

		job, err := orchestrator.Job(ctx, *result.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, job.Status)
		assert.Equal(t, model.StepCompleted, job.Step)
		assert.Equal(t, 100, job.Progress)
		assert.NotNil(t, job.StartedAt)
		assert.NotNil(t, job.CompletedAt)
		require.NotNil(t, job.DocumentID)
		assert.Equal(t, result.Document.ID, *job.DocumentID)
		assert.Equal(t, result.Chunks.Stored, job.Stats.ChunksCreated)
		assert.Contains(t, job.Stats.StepDurations, model.StepEmbedding)

		chunks, err := store.ChunksByDocument(ctx, result.Document.ID)
		require.NoError(t, err)
		assert.Len(t, chunks, result.Chunks.Stored)

		stats, err := store.SourceStats(ctx, "ops-handbook")
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Documents)
		assert.Equal(t, result.Chunks.Stored, stats.Chunks)
	})

	t.Run("Existing version fails the job", func(t *testing.T) {
		result, err := orchestrator.Ingest(ctx, handbook(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrDocumentVersionExists)
		assert.False(t, result.Success)
		require.NotNil(t, result.JobID)

		job, err := orchestrator.Job(ctx, *result.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Equal(t, model.StepFailed, job.Step)
		assert.NotEmpty(t, job.Error)

		chunks, err := store.ChunksByDocument(ctx, first.Document.ID)
		require.NoError(t, err)
		assert.Len(t, chunks, first.Chunks.Stored, "earlier version is untouched")
	})

	t.Run("New version creates a new lineage", func(t *testing.T) {
		result, err := orchestrator.Ingest(ctx, handbook(2))
		require.NoError(t, err)
		assert.NotEqual(t, first.Document.ID, result.Document.ID)

		stats, err := store.SourceStats(ctx, "ops-handbook")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Documents)
		assert.Equal(t, 2, stats.LatestVersion)
	})

	t.Run("Caller's document is not modified", func(t *testing.T) {
		doc := handbook(3)
		doc.Metadata = model.Metadata{"team": "sre"}

		result, err := orchestrator.Ingest(ctx, doc)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.Document.ID)
		assert.Equal(t, uuid.Nil, doc.ID)
		assert.Zero(t, doc.WordCount)
		assert.Zero(t, doc.CharCount)
		assert.Equal(t, model.Metadata{"team": "sre"}, doc.Metadata)

		stored, err := store.Document(ctx, result.Document.ID)
		require.NoError(t, err)
		assert.Equal(t, result.Document.WordCount, stored.WordCount)
		assert.Equal(t, "sre", stored.Metadata["team"])
	})

	t.Run("Empty document creates no job", func(t *testing.T) {
		result, err := orchestrator.Ingest(ctx, &model.Document{SourceID: "empty", Version: 1, Content: "  "})
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrValidation)
		assert.Nil(t, result.JobID)
		assert.False(t, result.Success)

		jobs, err := store.Jobs(ctx, "empty")
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("Missing source id is a validation error", func(t *testing.T) {
		_, err := orchestrator.Ingest(ctx, &model.Document{Version: 1, Content: "Some text."})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestIngestFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("All embeddings failing fails the job", func(t *testing.T) {
		store := memory.NewStore()
		provider := pipeline.ProviderFunc(func(context.Context, string, string) ([]float32, error) {
			return nil, errors.New("model unavailable")
		})
		orchestrator := newOrchestrator(store, provider, testConfig())

		result, err := orchestrator.Ingest(ctx, handbook(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrProvider)
		assert.Greater(t, result.Embeddings.Failed, 0)

		job, err := orchestrator.Job(ctx, *result.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)

		exists, err := store.DocumentExists(ctx, "ops-handbook", 1)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Store failure is a persistence error", func(t *testing.T) {
		store := failingSaveStore{memory.NewStore()}
		orchestrator := newOrchestrator(store, pipeline.NewHashingProvider(64), testConfig())

		result, err := orchestrator.Ingest(ctx, handbook(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrPersistence)

		job, err := orchestrator.Job(ctx, *result.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Contains(t, job.Error, "connection refused")
	})

	t.Run("Cancelled job stops calling the provider", func(t *testing.T) {
		store := memory.NewStore()
		var orchestrator *Orchestrator
		var calls atomic.Int32
		hashing := pipeline.NewHashingProvider(64)
		provider := pipeline.ProviderFunc(func(ctx context.Context, text string, model string) ([]float32, error) {
			if calls.Add(1) == 1 {
				for _, id := range orchestrator.Running() {
					require.NoError(t, orchestrator.Cancel(context.Background(), id))
				}
			}
			return hashing.Embed(ctx, text, model)
		})
		orchestrator = newOrchestrator(store, provider, testConfig())

		result, err := orchestrator.Ingest(ctx, handbook(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrCancelled)
		assert.Equal(t, int32(1), calls.Load())
		assert.Empty(t, orchestrator.Running())

		job, err := orchestrator.Job(ctx, *result.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, job.Status)

		exists, err := store.DocumentExists(ctx, "ops-handbook", 1)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Cancel of an unknown job", func(t *testing.T) {
		orchestrator := newOrchestrator(memory.NewStore(), pipeline.NewHashingProvider(64), testConfig())
		err := orchestrator.Cancel(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestIngestBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Malformed document does not affect the batch", func(t *testing.T) {
		store := memory.NewStore()
		orchestrator := newOrchestrator(store, pipeline.NewHashingProvider(64), testConfig())

		batch := orchestrator.IngestBatch(ctx, []*model.Document{
			handbook(1),
			{SourceID: "broken", Version: 1, Content: ""},
		})
		assert.False(t, batch.Success)
		assert.Equal(t, 2, batch.TotalDocuments)
		assert.Equal(t, 1, batch.SuccessCount)
		assert.Equal(t, 1, batch.FailureCount)
		require.Len(t, batch.Results, 2)
		assert.Equal(t, "ops-handbook", batch.Results[0].SourceID)
		assert.True(t, batch.Results[0].Success)
		assert.Equal(t, "broken", batch.Results[1].SourceID)
		assert.False(t, batch.Results[1].Success)
		assert.Equal(t, batch.Results[0].Chunks.Stored, batch.TotalChunks)

		chunks, err := store.ChunksByDocument(ctx, batch.Results[0].Document.ID)
		require.NoError(t, err)
		assert.Len(t, chunks, batch.Results[0].Chunks.Stored)
	})

	t.Run("Stop on error skips remaining documents", func(t *testing.T) {
		config := testConfig()
		config.Ingestion.Workers = 1
		config.Ingestion.StopOnError = true
		orchestrator := newOrchestrator(memory.NewStore(), pipeline.NewHashingProvider(64), config)

		batch := orchestrator.IngestBatch(ctx, []*model.Document{
			{SourceID: "broken", Version: 1, Content: ""},
			handbook(1),
		})
		assert.Equal(t, 0, batch.SuccessCount)
		assert.Equal(t, 2, batch.FailureCount)
		assert.Contains(t, batch.Results[1].Error, "skipped")
	})

	t.Run("Parallel workers ingest every document", func(t *testing.T) {
		config := testConfig()
		config.Ingestion.Workers = 3
		orchestrator := newOrchestrator(memory.NewStore(), pipeline.NewHashingProvider(64), config)

		docs := make([]*model.Document, 5)
		for i := range docs {
			docs[i] = handbook(i + 1)
		}
		batch := orchestrator.IngestBatch(ctx, docs)
		assert.True(t, batch.Success)
		assert.Equal(t, 5, batch.SuccessCount)
		for i, r := range batch.Results {
			assert.Equal(t, i+1, r.Version)
		}
	})
}
