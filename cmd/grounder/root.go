package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/siherrmann/grounder"
	"github.com/siherrmann/grounder/core/pipeline"
	"github.com/siherrmann/grounder/database"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	providerName string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "grounder",
	Short: "Ingest documents and retrieve grounded context",
	Long: `grounder chunks documents at several scales, embeds every chunk and
stores them in Postgres with pgvector. Queries return assembled context with
citations and a confidence assessment.

The database connection is read from GROUNDER_DB_* environment variables
or a .env file in the working directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML pipeline configuration overlaid on the defaults")
	rootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "hashing", "embedding provider: hashing, hugot or openai")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

// openGrounder builds the Grounder used by every command. Tests replace it.
var openGrounder = func(cmd *cobra.Command) (*grounder.Grounder, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(providerName, &config)
	if err != nil {
		return nil, err
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}

	logger := helper.NewLogger(cmd.ErrOrStderr(), logLevel())
	db := helper.NewDatabase("grounder", dbConfig, logger)
	store, err := database.NewStore(db, config.Embedding.Dimension, false)
	if err != nil {
		return nil, err
	}

	return grounder.NewGrounderWithStore(store, provider, config, logger)
}

func loadConfig() (model.Config, error) {
	if configPath == "" {
		return model.DefaultConfig(), nil
	}
	return model.LoadConfig(configPath)
}

// newProvider creates the embedding provider and aligns the embedding
// model and dimension of config with it.
func newProvider(name string, config *model.Config) (pipeline.Provider, error) {
	switch name {
	case "", "hashing":
		return pipeline.NewHashingProvider(config.Embedding.Dimension), nil
	case "hugot":
		config.Embedding.Model = pipeline.DefaultHugotModel
		config.Embedding.Dimension = 384
		return pipeline.NewHugotProvider(pipeline.DefaultHugotModel)
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for the openai provider")
		}
		if config.Embedding.Model == model.DefaultConfig().Embedding.Model {
			config.Embedding.Model = "text-embedding-3-small"
		}
		return pipeline.NewOpenAIProvider(apiKey, config.Embedding.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
