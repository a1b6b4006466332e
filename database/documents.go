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

// DocumentsDBHandlerFunctions defines the interface for Documents database operations.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(ctx context.Context, doc *model.Document) error
	SelectDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	SelectDocumentsBySource(ctx context.Context, sourceID string) ([]*model.Document, error)
	DocumentExists(ctx context.Context, sourceID string, version int) (bool, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
	q  helper.Querier
}

// NewDocumentsDBHandler creates a new documents database handler.
// It loads the document-related SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
		q:  db.Instance,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// WithQuerier returns a handler that runs its statements on q, typically a transaction.
func (h *DocumentsDBHandler) WithQuerier(q helper.Querier) *DocumentsDBHandler {
	return &DocumentsDBHandler{db: h.db, q: q}
}

// InsertDocument inserts a new document version.
// A second insert of the same (source id, version) returns model.ErrDocumentVersionExists.
func (h *DocumentsDBHandler) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	row := h.q.QueryRowContext(
		ctx,
		`SELECT insert_document($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID,
		doc.SourceID,
		doc.Version,
		doc.Title,
		doc.Source,
		doc.PageCount,
		doc.CharCount,
		doc.WordCount,
		doc.Metadata,
	)

	err := row.Scan(&doc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return helper.NewError(fmt.Sprintf("insert %s@%d", doc.SourceID, doc.Version), model.ErrDocumentVersionExists)
		}
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by id
func (h *DocumentsDBHandler) SelectDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := h.q.QueryRowContext(
		ctx,
		`SELECT `+documentColumns+` FROM select_document($1)`,
		id,
	)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError(fmt.Sprintf("select document %s", id), model.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// SelectDocumentsBySource retrieves all versions of a source ordered by version
func (h *DocumentsDBHandler) SelectDocumentsBySource(ctx context.Context, sourceID string) ([]*model.Document, error) {
	rows, err := h.q.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM select_documents_by_source($1)`,
		sourceID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var documents []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		documents = append(documents, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return documents, nil
}

// DocumentExists reports whether the (source id, version) pair is stored
func (h *DocumentsDBHandler) DocumentExists(ctx context.Context, sourceID string, version int) (bool, error) {
	var exists bool
	err := h.q.QueryRowContext(
		ctx,
		`SELECT document_exists($1, $2)`,
		sourceID,
		version,
	).Scan(&exists)
	if err != nil {
		return false, helper.NewError("scan", err)
	}

	return exists, nil
}

// DeleteDocument deletes a document and, by cascade, its chunks and embeddings
func (h *DocumentsDBHandler) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	_, err := h.q.ExecContext(
		ctx,
		`SELECT delete_document($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

const documentColumns = `id, source_id, version, title, source, page_count, char_count, word_count, metadata, created_at`

func scanDocument(row scanner) (*model.Document, error) {
	doc := &model.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.SourceID,
		&doc.Version,
		&doc.Title,
		&doc.Source,
		&doc.PageCount,
		&doc.CharCount,
		&doc.WordCount,
		&doc.Metadata,
		&doc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
