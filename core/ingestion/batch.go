package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/siherrmann/grounder/model"
	"golang.org/x/sync/errgroup"
)

// IngestBatch ingests documents with at most Workers jobs in flight.
// One document's failure does not abort the batch unless StopOnError is
// set, in which case documents not yet started are reported as skipped
// and running jobs are cancelled. Results keep the input order.
func (o *Orchestrator) IngestBatch(ctx context.Context, docs []*model.Document) *model.BatchResult {
	start := time.Now()
	results := make([]*model.IngestionResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, o.config.Ingestion.Workers))
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = skipped(doc, err)
				return nil
			}
			result, err := o.Ingest(gctx, doc)
			results[i] = result
			if err != nil && o.config.Ingestion.StopOnError {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	batch := &model.BatchResult{
		TotalDocuments: len(docs),
		Results:        results,
	}
	for _, r := range results {
		if r.Success {
			batch.SuccessCount++
			batch.TotalChunks += r.Chunks.Stored
			batch.TotalEmbeddings += r.Embeddings.Generated
		} else {
			batch.FailureCount++
		}
	}
	batch.Success = batch.FailureCount == 0
	batch.ProcessingTime = time.Since(start)

	o.logger.Info("Batch ingested",
		slog.Int("documents", batch.TotalDocuments),
		slog.Int("succeeded", batch.SuccessCount),
		slog.Int("failed", batch.FailureCount),
		slog.Duration("duration", batch.ProcessingTime),
	)
	return batch
}

func skipped(doc *model.Document, err error) *model.IngestionResult {
	result := &model.IngestionResult{Error: "skipped: " + err.Error()}
	if doc != nil {
		result.SourceID = doc.SourceID
		result.Version = doc.Version
	}
	return result
}
