package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job [id]",
	Short: "Show the state of an ingestion job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

var statsCmd = &cobra.Command{
	Use:   "stats [source]",
	Short: "Show the ingestion statistics of a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(statsCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	g, err := openGrounder(cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	job, err := g.Job(context.Background(), id)
	if err != nil {
		return err
	}

	return printJSON(cmd, job)
}

func runStats(cmd *cobra.Command, args []string) error {
	g, err := openGrounder(cmd)
	if err != nil {
		return err
	}
	defer g.Close()

	stats, err := g.SourceStats(context.Background(), args[0])
	if err != nil {
		return err
	}

	return printJSON(cmd, stats)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
