package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/PipeOpsHQ/financeira-functions/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
	now         func() time.Time
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

// WithClock overrides the time used to resolve server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := store.ValidatePath(collection, id); err != nil {
		return nil, err
	}
	return s.load(ctx, s.db, collection, id)
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	now := s.now()
	return s.upsert(ctx, s.db, collection, id, store.ResolveTimestamps(fields, now), now)
}

func (s *Store) Merge(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := store.ValidatePath(collection, id); err != nil {
		return err
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.load(ctx, tx, collection, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	merged := store.MergeFields(existing, store.ResolveTimestamps(fields, now))
	if err := s.upsert(ctx, tx, collection, id, merged, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) List(ctx context.Context, collection string, query store.ListQuery) ([]store.Document, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", store.ErrInvalid)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	const q = `
SELECT id, fields
FROM documents
WHERE collection = ?
ORDER BY seq DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]store.Document, 0, limit)
	for rows.Next() {
		var (
			id        string
			fieldsRaw string
		)
		if err := rows.Scan(&id, &fieldsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		fields, err := decodeFields(fieldsRaw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) load(ctx context.Context, q queryer, collection, id string) (map[string]any, error) {
	var fieldsRaw string
	err := q.QueryRowContext(ctx, `SELECT fields FROM documents WHERE collection = ? AND id = ?;`, collection, id).Scan(&fieldsRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document %s/%s: %w", collection, id, err)
	}
	return decodeFields(fieldsRaw)
}

func (s *Store) upsert(ctx context.Context, q queryer, collection, id string, fields map[string]any, now time.Time) error {
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal document fields: %w", err)
	}
	const stmt = `
INSERT INTO documents (collection, id, fields, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET
  fields=excluded.fields,
  updated_at=excluded.updated_at;
`
	ts := now.UTC().Format(time.RFC3339Nano)
	if _, err := q.ExecContext(ctx, stmt, collection, id, string(raw), ts, ts); err != nil {
		return fmt.Errorf("failed to save document %s/%s: %w", collection, id, err)
	}
	return nil
}

func decodeFields(raw string) (map[string]any, error) {
	fields := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode document fields: %w", err)
	}
	return fields, nil
}
