package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	loadSql "github.com/siherrmann/grounder/sql"
)

// SourcesDBHandler handles per-source statistics
type SourcesDBHandler struct {
	db *helper.Database
}

// NewSourcesDBHandler creates a new source statistics database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSourcesDBHandler(db *helper.Database, force bool) (*SourcesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	sourcesDbHandler := &SourcesDBHandler{
		db: db,
	}

	err := loadSql.LoadSourcesSql(sourcesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load sources sql", err)
	}

	err = sourcesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SourcesDBHandler")

	return sourcesDbHandler, nil
}

// CreateTable creates the 'source_stats' table in the database.
func (h *SourcesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_source_stats();`)
	if err != nil {
		log.Panicf("error initializing source_stats table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table source_stats")

	return nil
}

// IncrementSourceStats adds one document with its chunk and embedding counts to the source.
// The update is a single upsert statement so concurrent callers never lose an increment.
func (h *SourcesDBHandler) IncrementSourceStats(ctx context.Context, sourceID string, version, chunks, embeddings int) (*model.SourceStats, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT `+sourceColumns+` FROM increment_source_stats($1, $2, $3, $4)`,
		sourceID,
		version,
		chunks,
		embeddings,
	)

	stats, err := scanSourceStats(row)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return stats, nil
}

// SelectSourceStats retrieves the statistics of a source
func (h *SourcesDBHandler) SelectSourceStats(ctx context.Context, sourceID string) (*model.SourceStats, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT `+sourceColumns+` FROM select_source_stats($1)`,
		sourceID,
	)

	stats, err := scanSourceStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError(fmt.Sprintf("select source stats %s", sourceID), model.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return stats, nil
}

const sourceColumns = `source_id, documents, chunks, embeddings, latest_version, last_ingested_at`

func scanSourceStats(row scanner) (*model.SourceStats, error) {
	stats := &model.SourceStats{}
	err := row.Scan(
		&stats.SourceID,
		&stats.Documents,
		&stats.Chunks,
		&stats.Embeddings,
		&stats.LatestVersion,
		&stats.LastIngestedAt,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
