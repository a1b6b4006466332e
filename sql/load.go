package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed embeddings.sql
var embeddingsSQL string

//go:embed jobs.sql
var jobsSQL string

//go:embed sources.sql
var sourcesSQL string

// Function lists for verification
var DocumentsFunctions = []string{
	"init_documents",
	"insert_document",
	"select_document",
	"select_documents_by_source",
	"document_exists",
	"delete_document",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunk",
	"select_chunk",
	"select_chunks",
	"select_chunks_by_document",
	"search_chunks_by_keywords",
	"delete_chunk",
}

var EmbeddingsFunctions = []string{
	"init_embeddings",
	"insert_embedding",
	"select_embeddings",
	"select_nearest_chunks",
}

var JobsFunctions = []string{
	"init_ingestion_jobs",
	"upsert_ingestion_job",
	"select_ingestion_job",
	"select_ingestion_jobs_by_source",
}

var SourcesFunctions = []string{
	"init_source_stats",
	"increment_source_stats",
	"select_source_stats",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return load(db, "documents", documentsSQL, DocumentsFunctions, force)
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return load(db, "chunks", chunksSQL, ChunksFunctions, force)
}

// LoadEmbeddingsSql loads embedding-related SQL functions
func LoadEmbeddingsSql(db *sql.DB, force bool) error {
	return load(db, "embeddings", embeddingsSQL, EmbeddingsFunctions, force)
}

// LoadJobsSql loads ingestion job SQL functions
func LoadJobsSql(db *sql.DB, force bool) error {
	return load(db, "jobs", jobsSQL, JobsFunctions, force)
}

// LoadSourcesSql loads source statistics SQL functions
func LoadSourcesSql(db *sql.DB, force bool) error {
	return load(db, "sources", sourcesSQL, SourcesFunctions, force)
}

// LoadAllSql loads all SQL functions in dependency order
func LoadAllSql(db *sql.DB, force bool) error {
	loaders := []func(*sql.DB, bool) error{
		LoadDocumentsSql,
		LoadChunksSql,
		LoadEmbeddingsSql,
		LoadJobsSql,
		LoadSourcesSql,
	}
	for _, loader := range loaders {
		if err := loader(db, force); err != nil {
			return err
		}
	}

	return nil
}

func load(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
