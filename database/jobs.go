package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	loadSql "github.com/siherrmann/grounder/sql"
)

// JobsDBHandlerFunctions defines the interface for ingestion job database operations.
type JobsDBHandlerFunctions interface {
	UpsertJob(ctx context.Context, job *model.IngestionJob) error
	SelectJob(ctx context.Context, id uuid.UUID) (*model.IngestionJob, error)
	SelectJobsBySource(ctx context.Context, sourceID string) ([]*model.IngestionJob, error)
}

// JobsDBHandler handles ingestion job database operations
type JobsDBHandler struct {
	db *helper.Database
}

// NewJobsDBHandler creates a new ingestion jobs database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewJobsDBHandler(db *helper.Database, force bool) (*JobsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	jobsDbHandler := &JobsDBHandler{
		db: db,
	}

	err := loadSql.LoadJobsSql(jobsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load jobs sql", err)
	}

	err = jobsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized JobsDBHandler")

	return jobsDbHandler, nil
}

// CreateTable creates the 'ingestion_jobs' table in the database.
// If the table already exists, it does not create it again.
func (h *JobsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_ingestion_jobs();`)
	if err != nil {
		log.Panicf("error initializing ingestion_jobs table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table ingestion_jobs")

	return nil
}

// UpsertJob inserts or updates a job. Updates to a completed or failed job are ignored.
func (h *JobsDBHandler) UpsertJob(ctx context.Context, job *model.IngestionJob) error {
	stats, err := json.Marshal(job.Stats)
	if err != nil {
		return helper.NewError("marshal job stats", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT upsert_ingestion_job($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID,
		uuid.NullUUID{UUID: derefUUID(job.DocumentID), Valid: job.DocumentID != nil},
		job.SourceID,
		job.Version,
		string(job.Type),
		string(job.Status),
		string(job.Step),
		job.Progress,
		stats,
		job.Error,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)

	var updatedAt sql.NullTime
	err = row.Scan(&updatedAt)
	if err != nil {
		return helper.NewError("scan", err)
	}
	if updatedAt.Valid {
		job.UpdatedAt = updatedAt.Time
	}

	return nil
}

// SelectJob retrieves a job by id
func (h *JobsDBHandler) SelectJob(ctx context.Context, id uuid.UUID) (*model.IngestionJob, error) {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM select_ingestion_job($1)`,
		id,
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError(fmt.Sprintf("select job %s", id), model.ErrNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return job, nil
}

// SelectJobsBySource retrieves all jobs of a source ordered by creation time
func (h *JobsDBHandler) SelectJobsBySource(ctx context.Context, sourceID string) ([]*model.IngestionJob, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM select_ingestion_jobs_by_source($1)`,
		sourceID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	jobs := []*model.IngestionJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		jobs = append(jobs, job)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return jobs, nil
}

const jobColumns = `id, document_id, source_id, version, job_type, status, step, progress,
	stats, error, created_at, started_at, completed_at, updated_at`

func scanJob(row scanner) (*model.IngestionJob, error) {
	job := &model.IngestionJob{}
	var documentID uuid.NullUUID
	var jobType, status, step string
	var stats []byte
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&documentID,
		&job.SourceID,
		&job.Version,
		&jobType,
		&status,
		&step,
		&job.Progress,
		&stats,
		&job.Error,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = model.JobType(jobType)
	job.Status = model.JobStatus(status)
	job.Step = model.JobStep(step)
	if documentID.Valid {
		id := documentID.UUID
		job.DocumentID = &id
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if err := json.Unmarshal(stats, &job.Stats); err != nil {
		return nil, helper.NewError("unmarshal job stats", err)
	}

	return job, nil
}
