package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	loadSql "github.com/siherrmann/grounder/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	InsertChunk(ctx context.Context, chunk *model.Chunk) error
	SelectChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error)
	SelectChunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error)
	SelectChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error)
	SearchChunksByKeywords(ctx context.Context, terms []string, k int, filter model.QueryFilter) ([]*model.ScoredChunk, error)
	DeleteChunk(ctx context.Context, id uuid.UUID) error
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewChunksDBHandler creates a new chunks database handler.
// The documents table must exist since chunks reference it.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(db *helper.Database, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadChunksSql(chunksDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table with its full text and lookup indexes.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks();`)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// WithQuerier returns a handler that runs its statements on q, typically a transaction.
func (h *ChunksDBHandler) WithQuerier(q helper.Querier) *ChunksDBHandler {
	return &ChunksDBHandler{db: h.db, q: q}
}

// InsertChunk inserts a new chunk
func (h *ChunksDBHandler) InsertChunk(ctx context.Context, chunk *model.Chunk) error {
	var page sql.NullInt64
	if chunk.Page != nil {
		page = sql.NullInt64{Int64: int64(*chunk.Page), Valid: true}
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT insert_chunk($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		chunk.ID,
		chunk.DocumentID,
		chunk.DocumentVersion,
		chunk.SourceID,
		chunk.DocumentTitle,
		string(chunk.Scale),
		chunk.TokenCount,
		chunk.Content,
		chunk.Heading,
		stringArray(chunk.HierarchyPath),
		chunk.QualityScore,
		uuid.NullUUID{UUID: derefUUID(chunk.ParentID), Valid: chunk.ParentID != nil},
		uuidArray(chunk.ChildIDs),
		uuidArray(chunk.SiblingIDs),
		chunk.ChunkIndex,
		chunk.StartPos,
		chunk.EndPos,
		page,
		chunk.Refined,
		chunk.Metadata,
	)

	err := row.Scan(&chunk.CreatedAt)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by id
func (h *ChunksDBHandler) SelectChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	row := h.q.QueryRowContext(
		ctx,
		`SELECT `+chunkColumns+` FROM select_chunk($1) AS chunks`,
		id,
	)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError(fmt.Sprintf("select chunk %s", id), model.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectChunks retrieves chunks in the order of ids. Unknown ids are skipped.
func (h *ChunksDBHandler) SelectChunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error) {
	if len(ids) == 0 {
		return []*model.Chunk{}, nil
	}

	rows, err := h.q.QueryContext(
		ctx,
		`SELECT `+chunkColumns+` FROM select_chunks($1) AS chunks`,
		uuidArray(ids),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectChunks(rows)
}

// SelectChunksByDocument retrieves all chunks of a document ordered by chunk index
func (h *ChunksDBHandler) SelectChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT `+chunkColumns+` FROM select_chunks_by_document($1) AS chunks`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return collectChunks(rows)
}

// SearchChunksByKeywords ranks chunks by full text match against any of the terms.
// Scores lie in [0, 1).
func (h *ChunksDBHandler) SearchChunksByKeywords(ctx context.Context, terms []string, k int, filter model.QueryFilter) ([]*model.ScoredChunk, error) {
	if len(terms) == 0 || k <= 0 {
		return []*model.ScoredChunk{}, nil
	}

	rows, err := h.q.QueryContext(
		ctx,
		`SELECT `+chunkColumns+`, n.score
		FROM search_chunks_by_keywords($1, $2, $3, $4, $5, $6) AS n
		JOIN chunks ON chunks.id = n.chunk_id
		ORDER BY n.score DESC, chunks.id`,
		stringArray(terms),
		k,
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

// DeleteChunk deletes a chunk by id
func (h *ChunksDBHandler) DeleteChunk(ctx context.Context, id uuid.UUID) error {
	_, err := h.q.ExecContext(
		ctx,
		`SELECT delete_chunk($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

const chunkColumns = `chunks.id, chunks.document_id, chunks.document_version, chunks.source_id,
	chunks.document_title, chunks.scale, chunks.token_count, chunks.content, chunks.heading,
	chunks.hierarchy_path, chunks.quality_score, chunks.parent_id, chunks.child_ids, chunks.sibling_ids,
	chunks.chunk_index, chunks.start_pos, chunks.end_pos, chunks.page, chunks.refined,
	chunks.metadata, chunks.created_at`

func scanChunk(row scanner, extra ...any) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	var scale string
	var hierarchy, children, siblings pq.StringArray
	var parent uuid.NullUUID
	var page sql.NullInt64

	dest := []any{
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentVersion,
		&chunk.SourceID,
		&chunk.DocumentTitle,
		&scale,
		&chunk.TokenCount,
		&chunk.Content,
		&chunk.Heading,
		&hierarchy,
		&chunk.QualityScore,
		&parent,
		&children,
		&siblings,
		&chunk.ChunkIndex,
		&chunk.StartPos,
		&chunk.EndPos,
		&page,
		&chunk.Refined,
		&chunk.Metadata,
		&chunk.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, err
	}

	chunk.Scale = model.Scale(scale)
	chunk.HierarchyPath = []string(hierarchy)
	if parent.Valid {
		id := parent.UUID
		chunk.ParentID = &id
	}
	if page.Valid {
		p := int(page.Int64)
		chunk.Page = &p
	}
	if chunk.ChildIDs, err = parseUUIDs(children); err != nil {
		return nil, err
	}
	if chunk.SiblingIDs, err = parseUUIDs(siblings); err != nil {
		return nil, err
	}

	return chunk, nil
}

func collectChunks(rows *sql.Rows) ([]*model.Chunk, error) {
	defer rows.Close()

	chunks := []*model.Chunk{}
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		chunks = append(chunks, chunk)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}

func collectScoredChunks(rows *sql.Rows) ([]*model.ScoredChunk, error) {
	defer rows.Close()

	scored := []*model.ScoredChunk{}
	for rows.Next() {
		var score float64
		chunk, err := scanChunk(rows, &score)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		scored = append(scored, &model.ScoredChunk{Chunk: chunk, Score: score})
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return scored, nil
}

// stringArray never yields SQL NULL so cardinality() filters see an empty array.
func stringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func scaleStrings(scales []model.Scale) []string {
	out := make([]string, len(scales))
	for i, s := range scales {
		out[i] = string(s)
	}
	return out
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
