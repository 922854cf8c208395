package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLConfig configures the SQLite-backed store.
type SQLConfig struct {
	// Path is the database file. Empty means an in-memory database.
	Path string
	// Owner tags the rows this handle writes. ClearAll removes only
	// those rows, so replicas sharing a database keep each other's
	// references.
	Owner          string
	ConnectTimeout time.Duration
}

// SQLStore persists references in SQLite or PostgreSQL so proactive sends
// survive restarts of the process (until the next ClearAll).
type SQLStore struct {
	db       *sql.DB
	postgres bool
	owner    string
}

const createReferencesTable = `
	CREATE TABLE IF NOT EXISTS conversation_references (
		conversation_id TEXT PRIMARY KEY,
		reference TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	)
`

// NewSQLStore opens the database at cfg.Path and ensures the schema exists.
func NewSQLStore(cfg SQLConfig) (*SQLStore, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	store, err := NewSQLStoreFromDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owner = cfg.Owner
	return store, nil
}

// NewSQLStoreFromDB wraps an existing handle and creates the schema.
func NewSQLStoreFromDB(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, createReferencesTable); err != nil {
		return nil, fmt.Errorf("create conversation_references table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Owner returns the tag written with every saved row.
func (s *SQLStore) Owner() string {
	return s.owner
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) Save(ctx context.Context, id string, ref Reference) error {
	if id == "" {
		return ErrMissingID
	}
	if ref.UpdatedAt.IsZero() {
		ref.UpdatedAt = time.Now()
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal reference: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.bind(`
		INSERT INTO conversation_references (conversation_id, reference, owner, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			reference = excluded.reference,
			owner = excluded.owner,
			updated_at = excluded.updated_at
	`), id, string(payload), s.owner, ref.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save reference: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Reference, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		s.bind(`SELECT reference FROM conversation_references WHERE conversation_id = ?`), id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Reference{}, false, nil
	}
	if err != nil {
		return Reference{}, false, fmt.Errorf("get reference: %w", err)
	}
	var ref Reference
	if err := json.Unmarshal([]byte(payload), &ref); err != nil {
		return Reference{}, false, fmt.Errorf("decode reference: %w", err)
	}
	return ref, true, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reference FROM conversation_references ORDER BY conversation_id`)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var out []Reference
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		var ref Reference
		if err := json.Unmarshal([]byte(payload), &ref); err != nil {
			return nil, fmt.Errorf("decode reference: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return out, nil
}

// ClearAll deletes the references last written by this owner. The most
// recent writer of a conversation owns its row.
func (s *SQLStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		s.bind(`DELETE FROM conversation_references WHERE owner = ?`), s.owner,
	); err != nil {
		return fmt.Errorf("clear references: %w", err)
	}
	return nil
}

func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_references`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return n, nil
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) bind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
