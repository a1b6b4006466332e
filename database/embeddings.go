package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	loadSql "github.com/siherrmann/grounder/sql"
)

// EmbeddingsDBHandlerFunctions defines the interface for Embeddings database operations.
type EmbeddingsDBHandlerFunctions interface {
	InsertEmbedding(ctx context.Context, embedding *model.Embedding) error
	SelectEmbeddings(ctx context.Context, chunkID uuid.UUID) ([]*model.Embedding, error)
	SelectNearestChunks(ctx context.Context, vector []float32, embeddingType model.EmbeddingType, metric model.Metric, k int, threshold float64, filter model.QueryFilter) ([]*model.ScoredChunk, error)
}

// EmbeddingsDBHandler handles embedding-related database operations
type EmbeddingsDBHandler struct {
	db        *helper.Database
	q         helper.Querier
	dimension int
}

// NewEmbeddingsDBHandler creates a new embeddings database handler.
// The vector column is created with the given dimension; the chunks table must exist.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEmbeddingsDBHandler(db *helper.Database, dimension int, force bool) (*EmbeddingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if dimension <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("%w: dimension must be positive, got %d", model.ErrValidation, dimension))
	}

	embeddingsDbHandler := &EmbeddingsDBHandler{
		db:        db,
		q:         db.Instance,
		dimension: dimension,
	}

	err := loadSql.LoadEmbeddingsSql(embeddingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load embeddings sql", err)
	}

	err = embeddingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EmbeddingsDBHandler", "dimension", dimension)

	return embeddingsDbHandler, nil
}

// CreateTable creates the 'embeddings' table and its default HNSW index.
// If the table already exists, it does not create it again.
func (h *EmbeddingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_embeddings($1);`, h.dimension)
	if err != nil {
		log.Panicf("error initializing embeddings table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table embeddings")

	return nil
}

// WithQuerier returns a handler that runs its statements on q, typically a transaction.
func (h *EmbeddingsDBHandler) WithQuerier(q helper.Querier) *EmbeddingsDBHandler {
	return &EmbeddingsDBHandler{db: h.db, q: q, dimension: h.dimension}
}

// Dimension returns the vector dimension of the embeddings column.
func (h *EmbeddingsDBHandler) Dimension() int {
	return h.dimension
}

// InsertEmbedding stores a vector for a chunk. An existing (chunk, type) pair is left untouched.
func (h *EmbeddingsDBHandler) InsertEmbedding(ctx context.Context, embedding *model.Embedding) error {
	if len(embedding.Vector) != h.dimension {
		return helper.NewError("insert embedding", fmt.Errorf("%w: expected dimension %d, got %d", model.ErrValidation, h.dimension, len(embedding.Vector)))
	}

	_, err := h.q.ExecContext(
		ctx,
		`SELECT insert_embedding($1, $2, $3, $4)`,
		embedding.ChunkID,
		string(embedding.Type),
		embedding.Model,
		pgvector.NewVector(embedding.Vector),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// SelectEmbeddings retrieves all embeddings of a chunk
func (h *EmbeddingsDBHandler) SelectEmbeddings(ctx context.Context, chunkID uuid.UUID) ([]*model.Embedding, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT chunk_id, embedding_type, model, embedding, created_at FROM select_embeddings($1)`,
		chunkID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	embeddings := []*model.Embedding{}
	for rows.Next() {
		embedding := &model.Embedding{}
		var embeddingType string
		var vector pgvector.Vector
		err := rows.Scan(
			&embedding.ChunkID,
			&embeddingType,
			&embedding.Model,
			&vector,
			&embedding.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		embedding.Type = model.EmbeddingType(embeddingType)
		embedding.Vector = vector.Slice()
		embeddings = append(embeddings, embedding)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return embeddings, nil
}

// SelectNearestChunks returns at most k chunks ordered by similarity of their
// embedding of the given type to vector. Only scores >= threshold are returned.
func (h *EmbeddingsDBHandler) SelectNearestChunks(ctx context.Context, vector []float32, embeddingType model.EmbeddingType, metric model.Metric, k int, threshold float64, filter model.QueryFilter) ([]*model.ScoredChunk, error) {
	if k <= 0 {
		return []*model.ScoredChunk{}, nil
	}
	if len(vector) != h.dimension {
		return nil, helper.NewError("select nearest chunks", fmt.Errorf("%w: expected dimension %d, got %d", model.ErrValidation, h.dimension, len(vector)))
	}

	rows, err := h.q.QueryContext(
		ctx,
		`SELECT `+chunkColumns+`, n.score
		FROM select_nearest_chunks($1, $2, $3, $4, $5, $6, $7, $8, $9) AS n
		JOIN chunks ON chunks.id = n.chunk_id
		ORDER BY n.score DESC, chunks.id`,
		pgvector.NewVector(vector),
		string(embeddingType),
		string(metric),
		k,
		threshold,
		stringArray(filter.SourceIDs),
		uuidArray(filter.DocumentIDs),
		stringArray(scaleStrings(filter.Scales)),
		filter.MinQuality,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectScoredChunks(rows)
}
