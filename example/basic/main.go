package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/siherrmann/grounder"
	"github.com/siherrmann/grounder/database/memory"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

const sampleContent = `# Release Handbook

## Preparing A Release

Every release starts from a green main branch. The release manager tags the commit,
writes the changelog and announces the freeze in the release channel.

Release candidates are built by the pipeline and signed with the project key.
Signed artifacts are uploaded to the staging bucket for verification.

## Verifying Artifacts

Verification downloads every artifact and checks the signature against the published key.
A failed signature blocks the release until the artifact is rebuilt from the tagged commit.

Smoke tests install the candidate on a clean machine and run the upgrade path
from the previous two releases.

## Publishing

Publishing copies verified artifacts from staging to the public bucket and updates
the download page. The release manager closes the freeze once the announcement is sent.
`

func main() {
	ctx := context.Background()
	logger := helper.NewLogger(os.Stdout, slog.LevelWarn)

	config := model.DefaultConfig()
	config.Embedding.Types = model.EmbeddingTypes

	// In-memory store with the offline hashing provider
	g, err := grounder.NewGrounderWithStore(memory.NewStore(), nil, config, logger)
	if err != nil {
		log.Fatalf("Failed to create grounder: %v", err)
	}
	defer g.Close()

	doc := &model.Document{
		SourceID: "release-handbook",
		Version:  1,
		Title:    "Release Handbook",
		Source:   "basic_example",
		Content:  sampleContent,
		Metadata: model.Metadata{"team": "release"},
	}

	fmt.Println("Ingesting document...")
	result, err := g.IngestDocument(ctx, doc)
	if err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}
	fmt.Printf("Document %s stored with %d chunks and %d embeddings (avg quality %.2f)\n",
		result.Document.ID, result.Chunks.Stored, result.Embeddings.Generated, result.Chunks.AverageQuality)

	queryText := "How do I verify the release artifacts?"
	fmt.Printf("\nQuerying: %s\n", queryText)

	query := model.DefaultRetrievalQuery(queryText)
	query.Strategy = model.StrategyHybrid
	query.SimilarityThreshold = 0.1

	response, err := g.Query(ctx, query)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	fmt.Printf("Intent: %s, terms: %v\n", response.QueryAnalysis.Intent, response.QueryAnalysis.Terms)
	for i, r := range response.Chunks {
		fmt.Printf("\n%d. [%s] score %.3f %s\n", i+1, r.Chunk.Scale, r.Score, r.Chunk.Heading)
		fmt.Printf("   %s\n", truncate(r.Chunk.Content, 120))
	}

	fmt.Printf("\nConfidence: %.2f (%s)\n", response.Confidence.Score, response.Confidence.Level)
	if response.Fallback != nil {
		fmt.Printf("Fallback: %s\n", response.Fallback.Message)
		for _, s := range response.Fallback.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}

	fmt.Println("\nSources:")
	for _, c := range response.Citations {
		fmt.Printf("  %s\n", c.Formatted)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
