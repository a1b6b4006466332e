package helper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so handlers can run
// inside or outside of a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database holds the connection pool and the logger used by all handlers.
type Database struct {
	Name     string
	Logger   *slog.Logger
	Instance *sql.DB
}

// DatabaseConfiguration holds the connection parameters.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
	MaxConns int
}

// Environment variables read by NewDatabaseConfiguration.
const (
	EnvDatabaseHost     = "GROUNDER_DB_HOST"
	EnvDatabasePort     = "GROUNDER_DB_PORT"
	EnvDatabaseName     = "GROUNDER_DB_DATABASE"
	EnvDatabaseUsername = "GROUNDER_DB_USERNAME"
	EnvDatabasePassword = "GROUNDER_DB_PASSWORD"
	EnvDatabaseSchema   = "GROUNDER_DB_SCHEMA"
	EnvDatabaseSSLMode  = "GROUNDER_DB_SSLMODE"
)

// NewDatabaseConfiguration reads the configuration from the environment.
// A .env file in the working directory is loaded first if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, NewError("load .env", err)
	}

	config := &DatabaseConfiguration{
		Host:     os.Getenv(EnvDatabaseHost),
		Port:     os.Getenv(EnvDatabasePort),
		Database: os.Getenv(EnvDatabaseName),
		Username: os.Getenv(EnvDatabaseUsername),
		Password: os.Getenv(EnvDatabasePassword),
		Schema:   getEnvDefault(EnvDatabaseSchema, "public"),
		SSLMode:  getEnvDefault(EnvDatabaseSSLMode, "disable"),
		MaxConns: 10,
	}

	if config.Host == "" || config.Port == "" || config.Database == "" || config.Username == "" {
		return nil, NewError("database configuration", fmt.Errorf("%s, %s, %s and %s must be set", EnvDatabaseHost, EnvDatabasePort, EnvDatabaseName, EnvDatabaseUsername))
	}

	return config, nil
}

// ConnectionString renders the configuration as a postgres URL.
func (c *DatabaseConfiguration) ConnectionString() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewDatabase opens the connection pool and verifies it with a ping.
// It panics if the database cannot be reached.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) *Database {
	if logger == nil {
		logger = NewLogger(os.Stdout, slog.LevelInfo)
	}

	db := &Database{
		Name:   name,
		Logger: logger,
	}

	instance, err := db.connect(config)
	if err != nil {
		log.Panicf("error connecting to database %s: %v", name, err)
	}
	db.Instance = instance

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", config.Host))

	return db
}

// NewTestDatabase opens a database with a discarding logger.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	return NewDatabase("test", config, slog.New(slog.NewTextHandler(discard{}, nil)))
}

func (d *Database) connect(config *DatabaseConfiguration) (*sql.DB, error) {
	instance, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, err
	}

	if config.MaxConns > 0 {
		instance.SetMaxOpenConns(config.MaxConns)
		instance.SetMaxIdleConns(config.MaxConns)
	}
	instance.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var pingErr error
	for attempt := 0; attempt < 5; attempt++ {
		if pingErr = instance.PingContext(ctx); pingErr == nil {
			return instance, nil
		}
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}

	_ = instance.Close()
	return nil, pingErr
}

// WithTransaction runs fn inside a transaction. The transaction is committed
// if fn returns nil and rolled back otherwise.
func (d *Database) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.Instance.BeginTx(ctx, nil)
	if err != nil {
		return NewError("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return NewError("rollback", fmt.Errorf("%w (rollback error: %v)", err, rollbackErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewError("commit", err)
	}
	return nil
}

func getEnvDefault(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
