package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const createReferencesTablePostgres = `
	CREATE TABLE IF NOT EXISTS conversation_references (
		conversation_id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresConfig holds pool settings for a PostgreSQL-backed store.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	// Owner identifies this replica; see SQLConfig.Owner.
	Owner string
}

// DefaultPostgresConfig returns default pool settings.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStore opens a PostgreSQL (or CockroachDB) store, for
// deployments that run several bridge replicas against one database.
func NewPostgresStore(dsn string, config *PostgresConfig) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	store, err := newPostgresStoreFromDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owner = config.Owner
	return store, nil
}

func newPostgresStoreFromDB(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createReferencesTablePostgres); err != nil {
		return nil, fmt.Errorf("create conversation_references table: %w", err)
	}
	return &SQLStore{db: db, postgres: true}, nil
}
