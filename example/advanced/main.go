package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/grounder"
	"github.com/siherrmann/grounder/core/pipeline"
	"github.com/siherrmann/grounder/database"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

const runbookContent = `1. Paging

The on-call engineer acknowledges a page within five minutes. Unacknowledged pages
escalate to the secondary after ten minutes and to the team lead after twenty.

Every page links to a runbook entry. Pages without a runbook are reviewed in the weekly
operations meeting and either documented or removed.

2. Triage

Triage starts by checking the status dashboard for correlated alerts. The responder
assigns a severity from one to four and opens an incident channel for severity one and two.

Customer facing incidents get a status page entry within fifteen minutes of triage.

3. Recovery

Rollback is the default mitigation for incidents caused by a deployment. The responder
records every mitigation step with a timestamp in the incident channel.

A postmortem is written for every severity one incident within five working days.`

const storageContent = `# Storage Guide

## Volumes

Volumes are provisioned per workload and replicated across three zones. Snapshots are
taken every six hours and kept for fourteen days.

## Capacity

Capacity alerts fire at seventy percent usage. The storage team rebalances shards
before a volume reaches eighty five percent.`

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := helper.TerminateContainer(context.Background(), teardown); err != nil {
			log.Printf("Failed to stop PostgreSQL container: %v", err)
		}
	}()

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// Local sentence transformer embeddings (384 dimensions)
	provider, err := pipeline.NewHugotProvider(pipeline.DefaultHugotModel)
	if err != nil {
		log.Fatalf("Failed to create hugot provider: %v", err)
	}

	config := model.DefaultConfig()
	config.Embedding.Model = pipeline.DefaultHugotModel
	config.Embedding.Dimension = 384
	config.Embedding.Types = model.EmbeddingTypes
	config.Chunking.Refine = true
	config.Chunking.RefineUseEmbedding = true
	config.Assembly.InterleaveSources = true

	g, err := grounder.NewGrounder(dbConfig, provider, config)
	if err != nil {
		log.Fatalf("Failed to create grounder: %v", err)
	}
	// Closes the store and the hugot session.
	defer g.Close()

	// Named entities of a query raise its clarity in query analysis
	ner, err := pipeline.NewHugotEntityExtractor()
	if err != nil {
		log.Printf("NER model unavailable, keeping heuristic entities: %v", err)
	} else {
		defer ner.Close()
		g.Engine.SetEntityExtractor(ner)
	}

	batch := g.IngestBatch(ctx, []*model.Document{
		{SourceID: "incident-runbook", Version: 1, Title: "Incident Runbook", Content: runbookContent},
		{SourceID: "storage-guide", Version: 1, Title: "Storage Guide", Content: storageContent},
	})
	fmt.Printf("Batch: %d/%d documents, %d chunks, %d embeddings in %s\n",
		batch.SuccessCount, batch.TotalDocuments, batch.TotalChunks, batch.TotalEmbeddings, batch.ProcessingTime)
	for _, r := range batch.Results {
		if r.JobID == nil {
			continue
		}
		job, err := g.Job(ctx, *r.JobID)
		if err != nil {
			log.Fatalf("Failed to load job: %v", err)
		}
		fmt.Printf("  %s@%d: %s (%d%%), chunks by scale %v\n", job.SourceID, job.Version, job.Status, job.Progress, job.Stats.ChunksByScale)
	}

	// Switch the vector index to HNSW tuned for cosine similarity
	if store, ok := g.Store.(*database.Store); ok {
		err = store.EmbeddingsDB.ChangeIndexType(ctx, database.IndexHNSW, model.MetricCosine, map[string]int{"m": 24, "ef_construction": 100})
		if err != nil {
			log.Fatalf("Failed to change index: %v", err)
		}
	}

	question := "What happens when a page is not acknowledged?"
	strategies := []model.StrategyName{
		model.StrategyVectorOnly,
		model.StrategyHybrid,
		model.StrategyMultiScale,
		model.StrategyContextual,
	}

	var best *model.QueryResponse
	for _, strategy := range strategies {
		query := model.DefaultRetrievalQuery(question)
		query.Strategy = strategy
		query.SimilarityThreshold = 0.2

		response, err := g.Query(ctx, query)
		if err != nil {
			log.Fatalf("Failed to query with %s: %v", strategy, err)
		}
		printResponse(response)

		if best == nil || response.Confidence.Score > best.Confidence.Score {
			best = response
		}
	}

	// A generated answer citing the first retrieved chunk and an unknown source
	answer := "Unacknowledged pages escalate to the secondary after ten minutes [1]. " +
		"Pages are also mirrored to email [Source: mail-policy, p. 2]."
	assessment := g.AssessAnswer(best, answer, true)

	fmt.Printf("\nAnswer assessment: %d/%d citations valid (quality %.2f), confidence %.2f (%s)\n",
		assessment.Citations.Validated, assessment.Citations.Total, assessment.Citations.Quality,
		assessment.Confidence.Score, assessment.Confidence.Level)
	for _, c := range assessment.Citations.Citations {
		fmt.Printf("  %-28s valid=%t %s\n", c.Marker, c.Valid, c.Formatted)
	}
	for _, issue := range assessment.Confidence.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
}

func printResponse(response *model.QueryResponse) {
	fmt.Printf("\n=== %s (%d of %d results, %d expanded, %d tokens) ===\n",
		response.Metadata.Strategy, len(response.Chunks), response.Metadata.TotalResults,
		response.Metadata.Expanded, response.Metadata.TotalTokens)
	fmt.Printf("Intent %s, entities %v, clarity %.2f\n",
		response.QueryAnalysis.Intent, response.QueryAnalysis.Entities, response.QueryAnalysis.Clarity)

	for i, r := range response.Chunks {
		origin := "retrieved"
		if r.ExpandedFrom != nil {
			origin = "context"
		}
		fmt.Printf("%d. %.3f %-9s %-9s %s / %s\n", i+1, r.Score, r.Chunk.Scale, origin, r.Chunk.SourceID, r.Chunk.Heading)
	}
	fmt.Printf("Confidence %.2f (%s)\n", response.Confidence.Score, response.Confidence.Level)
	if response.Fallback != nil {
		fmt.Printf("Fallback %s: %s\n", response.Fallback.Strategy, response.Fallback.Message)
	}
}
