package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of an ingestion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobStep is the current step of an ingestion job.
type JobStep string

const (
	StepPending            JobStep = "pending"
	StepValidatingDocument JobStep = "validating_document"
	StepChunking           JobStep = "chunking"
	StepAdvancedProcessing JobStep = "advanced_processing"
	StepEmbedding          JobStep = "embedding"
	StepStoring            JobStep = "storing"
	StepUpdatingStatistics JobStep = "updating_statistics"
	StepCompleted          JobStep = "completed"
	StepFailed             JobStep = "failed"
)

// JobType is the kind of work an ingestion job performs.
type JobType string

const (
	JobTypeDocument JobType = "document_ingestion"
)

// JobStats are the statistics accumulated by a job.
type JobStats struct {
	ChunksCreated       int                       `json:"chunks_created"`
	ChunksRejected      int                       `json:"chunks_rejected"`
	ChunksRefined       int                       `json:"chunks_refined"`
	ChunksByScale       map[Scale]int             `json:"chunks_by_scale,omitempty"`
	EmbeddingsGenerated int                       `json:"embeddings_generated"`
	EmbeddingsFailed    int                       `json:"embeddings_failed"`
	CacheHits           int                       `json:"cache_hits"`
	AverageTokens       float64                   `json:"average_tokens"`
	AverageQuality      float64                   `json:"average_quality"`
	StepDurations       map[JobStep]time.Duration `json:"step_durations,omitempty"`
}

// IngestionJob is created at ingestion start and mutated only by the
// orchestrator driving it. A terminal job is never resumed.
type IngestionJob struct {
	ID          uuid.UUID  `json:"id"`
	DocumentID  *uuid.UUID `json:"document_id,omitempty"`
	SourceID    string     `json:"source_id"`
	Version     int        `json:"version"`
	Type        JobType    `json:"job_type"`
	Status      JobStatus  `json:"status"`
	Step        JobStep    `json:"step"`
	Progress    int        `json:"progress"`
	Stats       JobStats   `json:"stats"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DocumentSummary is the document part of an ingestion result.
type DocumentSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	CharCount int       `json:"char_count"`
	WordCount int       `json:"word_count"`
}

// ChunkSummary is the chunk part of an ingestion result.
type ChunkSummary struct {
	Total          int     `json:"total"`
	Stored         int     `json:"stored"`
	Rejected       int     `json:"rejected"`
	AverageTokens  float64 `json:"average_tokens"`
	AverageQuality float64 `json:"average_quality"`
}

// EmbeddingSummary is the embedding part of an ingestion result.
type EmbeddingSummary struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	Generated int    `json:"generated"`
	Failed    int    `json:"failed"`
}

// IngestionResult summarises the ingestion of one document.
type IngestionResult struct {
	Success        bool             `json:"success"`
	SourceID       string           `json:"source_id"`
	Version        int              `json:"version"`
	JobID          *uuid.UUID       `json:"job_id,omitempty"`
	Document       DocumentSummary  `json:"document"`
	Chunks         ChunkSummary     `json:"chunks"`
	Embeddings     EmbeddingSummary `json:"embeddings"`
	Error          string           `json:"error,omitempty"`
	ProcessingTime time.Duration    `json:"processing_time"`
}

// BatchResult summarises a batch ingestion. Results keep the input order.
type BatchResult struct {
	Success         bool               `json:"success"`
	TotalDocuments  int                `json:"total_documents"`
	SuccessCount    int                `json:"success_count"`
	FailureCount    int                `json:"failure_count"`
	TotalChunks     int                `json:"total_chunks"`
	TotalEmbeddings int                `json:"total_embeddings"`
	Results         []*IngestionResult `json:"results"`
	ProcessingTime  time.Duration      `json:"processing_time"`
}

// SourceStats is the per-source aggregate updated after every ingestion.
type SourceStats struct {
	SourceID       string    `json:"source_id"`
	Documents      int       `json:"documents"`
	Chunks         int       `json:"chunks"`
	Embeddings     int       `json:"embeddings"`
	LatestVersion  int       `json:"latest_version"`
	LastIngestedAt time.Time `json:"last_ingested_at"`
}
