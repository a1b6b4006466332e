package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	loadSql "github.com/siherrmann/grounder/sql"
)

// Store bundles all handlers behind one persistence interface.
// Its method set matches memory.Store so both can back the engine.
type Store struct {
	DB           *helper.Database
	DocumentsDB  *DocumentsDBHandler
	ChunksDB     *ChunksDBHandler
	EmbeddingsDB *EmbeddingsDBHandler
	JobsDB       *JobsDBHandler
	SourcesDB    *SourcesDBHandler
}

// NewStore initializes the extensions and creates all handlers in dependency order.
func NewStore(db *helper.Database, dimension int, force bool) (*Store, error) {
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	documents, err := NewDocumentsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := NewChunksDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	embeddings, err := NewEmbeddingsDBHandler(db, dimension, force)
	if err != nil {
		return nil, helper.NewError("create embeddings handler", err)
	}

	jobs, err := NewJobsDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create jobs handler", err)
	}

	sources, err := NewSourcesDBHandler(db, force)
	if err != nil {
		return nil, helper.NewError("create sources handler", err)
	}

	return &Store{
		DB:           db,
		DocumentsDB:  documents,
		ChunksDB:     chunks,
		EmbeddingsDB: embeddings,
		JobsDB:       jobs,
		SourcesDB:    sources,
	}, nil
}

// DocumentExists reports whether the (source id, version) pair was ingested.
func (s *Store) DocumentExists(ctx context.Context, sourceID string, version int) (bool, error) {
	return s.DocumentsDB.DocumentExists(ctx, sourceID, version)
}

// SaveDocument stores a document with all its chunks and embeddings in one transaction.
// Readers never observe a partially stored document.
func (s *Store) SaveDocument(ctx context.Context, doc *model.Document, chunks []*model.Chunk, embeddings []*model.Embedding) error {
	return s.DB.WithTransaction(ctx, func(tx *sql.Tx) error {
		err := s.DocumentsDB.WithQuerier(tx).InsertDocument(ctx, doc)
		if err != nil {
			return err
		}

		chunkHandler := s.ChunksDB.WithQuerier(tx)
		for _, chunk := range chunks {
			chunk.DocumentID = doc.ID
			if err := chunkHandler.InsertChunk(ctx, chunk); err != nil {
				return helper.NewError("insert chunk", err)
			}
		}

		embeddingHandler := s.EmbeddingsDB.WithQuerier(tx)
		for _, embedding := range embeddings {
			if err := embeddingHandler.InsertEmbedding(ctx, embedding); err != nil {
				return helper.NewError("insert embedding", err)
			}
		}

		return nil
	})
}

// Document returns a stored document without content.
func (s *Store) Document(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	return s.DocumentsDB.SelectDocument(ctx, id)
}

// DocumentsBySource returns all versions of a source ordered by version.
func (s *Store) DocumentsBySource(ctx context.Context, sourceID string) ([]*model.Document, error) {
	return s.DocumentsDB.SelectDocumentsBySource(ctx, sourceID)
}

// Chunk returns a chunk by id.
func (s *Store) Chunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	return s.ChunksDB.SelectChunk(ctx, id)
}

// Chunks returns chunks in the order of ids, skipping unknown ids.
func (s *Store) Chunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error) {
	return s.ChunksDB.SelectChunks(ctx, ids)
}

// ChunksByDocument returns a document's chunks ordered by chunk index.
func (s *Store) ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error) {
	return s.ChunksDB.SelectChunksByDocument(ctx, documentID)
}

// Embeddings returns the vectors stored for a chunk.
func (s *Store) Embeddings(ctx context.Context, chunkID uuid.UUID) ([]*model.Embedding, error) {
	return s.EmbeddingsDB.SelectEmbeddings(ctx, chunkID)
}

// Nearest returns the k most similar chunks by one embedding type.
func (s *Store) Nearest(ctx context.Context, vector []float32, embeddingType model.EmbeddingType, metric model.Metric, k int, threshold float64, filter model.QueryFilter) ([]*model.ScoredChunk, error) {
	return s.EmbeddingsDB.SelectNearestChunks(ctx, vector, embeddingType, metric, k, threshold, filter)
}

// KeywordSearch ranks chunks by full text match against the terms.
func (s *Store) KeywordSearch(ctx context.Context, terms []string, k int, filter model.QueryFilter) ([]*model.ScoredChunk, error) {
	return s.ChunksDB.SearchChunksByKeywords(ctx, terms, k, filter)
}

// UpsertJob persists the job state.
func (s *Store) UpsertJob(ctx context.Context, job *model.IngestionJob) error {
	return s.JobsDB.UpsertJob(ctx, job)
}

// Job returns a job by id.
func (s *Store) Job(ctx context.Context, id uuid.UUID) (*model.IngestionJob, error) {
	return s.JobsDB.SelectJob(ctx, id)
}

// Jobs returns all jobs of a source ordered by creation time.
func (s *Store) Jobs(ctx context.Context, sourceID string) ([]*model.IngestionJob, error) {
	return s.JobsDB.SelectJobsBySource(ctx, sourceID)
}

// IncrementSourceStats atomically adds one document to the source statistics.
func (s *Store) IncrementSourceStats(ctx context.Context, sourceID string, version, chunks, embeddings int) (*model.SourceStats, error) {
	return s.SourcesDB.IncrementSourceStats(ctx, sourceID, version, chunks, embeddings)
}

// SourceStats returns the statistics of a source.
func (s *Store) SourceStats(ctx context.Context, sourceID string) (*model.SourceStats, error) {
	return s.SourcesDB.SelectSourceStats(ctx, sourceID)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.DB != nil && s.DB.Instance != nil {
		return s.DB.Instance.Close()
	}
	return nil
}
