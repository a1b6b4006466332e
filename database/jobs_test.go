package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsUpsertAndSelect(t *testing.T) {
	database := initDB(t)
	jobsDbHandler, err := NewJobsDBHandler(database, true)
	require.NoError(t, err)
	ctx := context.Background()

	sourceID := "jobs-" + uuid.NewString()[:8]
	job := &model.IngestionJob{
		ID:       uuid.New(),
		SourceID: sourceID,
		Version:  1,
		Type:     model.JobTypeDocument,
		Status:   model.JobStatusPending,
		Step:     model.StepPending,
	}

	t.Run("Insert pending job", func(t *testing.T) {
		err := jobsDbHandler.UpsertJob(ctx, job)
		require.NoError(t, err)
		assert.False(t, job.UpdatedAt.IsZero())

		selected, err := jobsDbHandler.SelectJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, selected.Status)
		assert.Nil(t, selected.DocumentID)
		assert.Nil(t, selected.StartedAt)
	})

	t.Run("Update running job with stats", func(t *testing.T) {
		now := time.Now().UTC()
		documentID := uuid.New()
		job.Status = model.JobStatusRunning
		job.Step = model.StepEmbedding
		job.Progress = 60
		job.StartedAt = &now
		job.DocumentID = &documentID
		job.Stats = model.JobStats{
			ChunksCreated: 4,
			ChunksByScale: map[model.Scale]int{model.ScaleParagraph: 3, model.ScaleSection: 1},
			StepDurations: map[model.JobStep]time.Duration{model.StepChunking: time.Second},
		}

		err := jobsDbHandler.UpsertJob(ctx, job)
		require.NoError(t, err)

		selected, err := jobsDbHandler.SelectJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StepEmbedding, selected.Step)
		assert.Equal(t, 60, selected.Progress)
		require.NotNil(t, selected.DocumentID)
		assert.Equal(t, documentID, *selected.DocumentID)
		require.NotNil(t, selected.StartedAt)
		assert.Equal(t, 3, selected.Stats.ChunksByScale[model.ScaleParagraph])
		assert.Equal(t, time.Second, selected.Stats.StepDurations[model.StepChunking])
	})

	t.Run("Terminal job is not changed again", func(t *testing.T) {
		completed := time.Now().UTC()
		job.Status = model.JobStatusCompleted
		job.Step = model.StepCompleted
		job.Progress = 100
		job.CompletedAt = &completed
		require.NoError(t, jobsDbHandler.UpsertJob(ctx, job))

		job.Status = model.JobStatusFailed
		job.Step = model.StepFailed
		require.NoError(t, jobsDbHandler.UpsertJob(ctx, job))

		selected, err := jobsDbHandler.SelectJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, selected.Status)
		assert.Equal(t, 100, selected.Progress)
	})

	t.Run("Select jobs by source", func(t *testing.T) {
		second := &model.IngestionJob{
			ID:       uuid.New(),
			SourceID: sourceID,
			Version:  2,
			Type:     model.JobTypeDocument,
			Status:   model.JobStatusPending,
			Step:     model.StepPending,
		}
		require.NoError(t, jobsDbHandler.UpsertJob(ctx, second))

		jobs, err := jobsDbHandler.SelectJobsBySource(ctx, sourceID)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, job.ID, jobs[0].ID)
		assert.Equal(t, second.ID, jobs[1].ID)
	})

	t.Run("Select unknown job", func(t *testing.T) {
		_, err := jobsDbHandler.SelectJob(ctx, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
