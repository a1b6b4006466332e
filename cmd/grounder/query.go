package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/siherrmann/grounder/model"
	"github.com/spf13/cobra"
)

var (
	queryStrategy  string
	queryLimit     int
	queryThreshold float64
	querySources   []string
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve grounded context for a question",
	Long: `Retrieves chunks with the selected strategy, expands them with their
parents and siblings and prints them with citations and a confidence level.
Weak results come with a fallback and suggestions instead of an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryStrategy, "strategy", string(model.StrategyHybrid), "vector_only, hybrid, multi_scale or contextual")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 5, "maximum number of results")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0.3, "minimum similarity score")
	queryCmd.Flags().StringSliceVar(&querySources, "source", nil, "restrict to source ids")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the response as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	g, err := openGrounder(cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	query := model.DefaultRetrievalQuery(args[0])
	query.Strategy = model.StrategyName(queryStrategy)
	query.MaxResults = queryLimit
	query.SimilarityThreshold = queryThreshold
	query.Filter.SourceIDs = querySources

	response, err := g.Query(context.Background(), query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		data, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	printResponse(cmd, response)
	return nil
}

func printResponse(cmd *cobra.Command, response *model.QueryResponse) {
	if len(response.Chunks) == 0 {
		cmd.Println("No results found.")
	}

	for i, r := range response.Chunks {
		cmd.Printf("  [%d] %s (%.2f, %s)\n", i+1, r.Chunk.DocumentTitle, r.Score, r.Chunk.Scale)
		if locator := r.Chunk.Locator(); locator != "" {
			cmd.Printf("      %s\n", locator)
		}
		cmd.Printf("      %s\n\n", snippet(r.Chunk.Content, 160))
	}

	if response.Confidence != nil {
		level := levelColor(response.Confidence.Level).SprintFunc()
		cmd.Printf("Confidence: %s (%.2f)\n", level(response.Confidence.Level), response.Confidence.Score)
	}

	if response.Fallback != nil {
		cmd.Printf("%s\n", response.Fallback.Message)
		for _, s := range response.Fallback.Suggestions {
			cmd.Printf("  - %s\n", s)
		}
	}

	if len(response.Citations) > 0 {
		cmd.Println("\nSources:")
		for _, c := range response.Citations {
			cmd.Printf("  %s\n", c.Formatted)
		}
	}
}

func levelColor(level model.ConfidenceLevel) *color.Color {
	switch level {
	case model.ConfidenceHigh:
		return color.New(color.FgGreen)
	case model.ConfidenceMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func snippet(content string, n int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "..."
}
