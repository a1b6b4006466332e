package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/siherrmann/grounder/model"
	"github.com/spf13/cobra"
)

var (
	ingestSource  string
	ingestVersion int
	ingestJSON    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest text or markdown files",
	Long: `Runs every file through chunking, embedding and storage as one ingestion job.
Files are ingested as a batch with the configured worker pool. Without --source
the file name without extension is used as source id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", "", "source id (only with a single file)")
	ingestCmd.Flags().IntVar(&ingestVersion, "version", 1, "document version")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the batch result as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestSource != "" && len(args) > 1 {
		return fmt.Errorf("--source can only be used with a single file")
	}

	g, err := openGrounder(cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	docs := make([]*model.Document, 0, len(args))
	for _, path := range args {
		sourceID := ingestSource
		if sourceID == "" {
			sourceID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		doc, err := model.NewDocumentFromFile(path, sourceID, ingestVersion, nil)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		docs = append(docs, doc)
	}

	batch := g.IngestBatch(context.Background(), docs)
	if ingestJSON {
		data, err := json.MarshalIndent(batch, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal batch result: %w", err)
		}
		cmd.Println(string(data))
	} else {
		printBatch(cmd, batch)
	}

	if !batch.Success {
		return fmt.Errorf("%d of %d documents failed", batch.FailureCount, batch.TotalDocuments)
	}
	return nil
}

func printBatch(cmd *cobra.Command, batch *model.BatchResult) {
	ok := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed).SprintFunc()

	for _, r := range batch.Results {
		if r.Success {
			cmd.Printf("%s %s@%d: %d chunks, %d embeddings (avg quality %.2f)\n",
				ok("OK"), r.SourceID, r.Version, r.Chunks.Stored, r.Embeddings.Generated, r.Chunks.AverageQuality)
			continue
		}
		cmd.Printf("%s %s@%d: %s\n", failed("FAILED"), r.SourceID, r.Version, r.Error)
	}
	cmd.Printf("\n%d/%d documents, %d chunks, %d embeddings in %s\n",
		batch.SuccessCount, batch.TotalDocuments, batch.TotalChunks, batch.TotalEmbeddings, batch.ProcessingTime)
}
