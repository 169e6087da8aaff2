package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createCacheTableSQL = `
		CREATE TABLE IF NOT EXISTS relay_cache_entries (
			fingerprint TEXT PRIMARY KEY,
			backend_id TEXT NOT NULL,
			task_category TEXT NOT NULL,
			response JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX IF NOT EXISTS idx_relay_cache_backend ON relay_cache_entries(backend_id);
		CREATE INDEX IF NOT EXISTS idx_relay_cache_category ON relay_cache_entries(task_category);
	`

	upsertCacheEntrySQL = `
		INSERT INTO relay_cache_entries (fingerprint, backend_id, task_category, response, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fingerprint) DO UPDATE SET
			backend_id = EXCLUDED.backend_id,
			task_category = EXCLUDED.task_category,
			response = EXCLUDED.response,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	getCacheEntrySQL = `
		SELECT response, task_category, created_at, expires_at
		FROM relay_cache_entries
		WHERE fingerprint = $1
	`

	deleteExpiredEntrySQL = `
		DELETE FROM relay_cache_entries
		WHERE fingerprint = $1 AND expires_at IS NOT NULL AND expires_at <= NOW()
	`
)

// PostgresStore implements Store using PostgreSQL, the durable tier that
// survives restarts. The pool is owned by the caller.
type PostgresStore struct {
	db *pgxpool.Pool
}

// creates a new PostgreSQL cache store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// creates the required tables if they don't exist
func (s *PostgresStore) Initialize(ctx context.Context) error {
	_, err := s.db.Exec(ctx, createCacheTableSQL)
	return err
}

func (s *PostgresStore) Name() string {
	return "postgres"
}

// retrieves an entry, lazily purging it when expired
func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		responseJSON []byte
		category     string
		createdAt    time.Time
		expiresAt    *time.Time
	)

	err := s.db.QueryRow(ctx, getCacheEntrySQL, fingerprint).Scan(&responseJSON, &category, &createdAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry: %w", err)
	}

	entry := &Entry{
		Fingerprint:  fingerprint,
		TaskCategory: core.TaskCategory(category),
		CreatedAt:    createdAt,
	}

	if expiresAt != nil {
		entry.ExpiresAt = *expiresAt
	}

	if entry.Expired(time.Now()) {
		s.db.Exec(ctx, deleteExpiredEntrySQL, fingerprint) //nolint:errcheck // best-effort purge
		return nil, nil
	}

	if err := json.Unmarshal(responseJSON, &entry.Response); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	return entry, nil
}

// stores an entry, overwriting any existing one
func (s *PostgresStore) Set(ctx context.Context, entry *Entry) error {
	responseJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	var expiresAt *time.Time
	if !entry.ExpiresAt.IsZero() {
		expiresAt = &entry.ExpiresAt
	}

	_, err = s.db.Exec(ctx, upsertCacheEntrySQL,
		entry.Fingerprint,
		entry.Response.BackendUsed,
		string(entry.TaskCategory),
		responseJSON,
		entry.CreatedAt,
		expiresAt,
	)
	return err
}

// removes matching entries and returns how many rows were dropped
func (s *PostgresStore) Invalidate(ctx context.Context, pred Predicate) (int, error) {
	if pred.Empty() {
		return 0, nil
	}

	query := "DELETE FROM relay_cache_entries WHERE 1=1"
	args := []any{}

	if pred.Fingerprint != "" {
		args = append(args, pred.Fingerprint)
		query += fmt.Sprintf(" AND fingerprint = $%d", len(args))
	}

	if pred.BackendID != "" {
		args = append(args, pred.BackendID)
		query += fmt.Sprintf(" AND backend_id = $%d", len(args))
	}

	if pred.TaskCategory != "" {
		args = append(args, string(pred.TaskCategory))
		query += fmt.Sprintf(" AND task_category = $%d", len(args))
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

// Close is a no-op; the pgx pool is managed by the process that created it.
func (s *PostgresStore) Close() error {
	return nil
}
