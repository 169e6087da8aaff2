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
	"github.com/pgvector/pgvector-go"
)

const (
	createSemanticTableSQL = `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS relay_semantic_entries (
			fingerprint TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			embedding vector(1536) NOT NULL,
			backend_id TEXT NOT NULL,
			task_category TEXT NOT NULL,
			response JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP WITH TIME ZONE
		);
		CREATE INDEX IF NOT EXISTS idx_relay_semantic_embedding
			ON relay_semantic_entries USING hnsw (embedding vector_cosine_ops);
	`

	upsertSemanticEntrySQL = `
		INSERT INTO relay_semantic_entries (fingerprint, prompt, embedding, backend_id, task_category, response, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (fingerprint) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			embedding = EXCLUDED.embedding,
			backend_id = EXCLUDED.backend_id,
			task_category = EXCLUDED.task_category,
			response = EXCLUDED.response,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	nearestSemanticEntrySQL = `
		SELECT fingerprint, response, task_category, created_at, expires_at,
			1 - (embedding <=> $1) AS similarity
		FROM relay_semantic_entries
		WHERE expires_at IS NULL OR expires_at > NOW()
		ORDER BY embedding <=> $1
		LIMIT 1
	`
)

// DefaultSimilarityThreshold is the cosine similarity floor for treating a
// nearby prompt as a hit.
const DefaultSimilarityThreshold = 0.92

// Embedder turns text into the vector the semantic index searches on.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SemanticIndex answers lookups for prompts that are close in meaning but
// not byte-identical. It is consulted only after every exact tier missed.
type SemanticIndex struct {
	db        *pgxpool.Pool
	embedder  Embedder
	threshold float64
}

// NewSemanticIndex builds a semantic index over the given pool. A zero
// threshold takes the default.
func NewSemanticIndex(db *pgxpool.Pool, embedder Embedder, threshold float64) *SemanticIndex {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	return &SemanticIndex{db: db, embedder: embedder, threshold: threshold}
}

// creates the required tables if they don't exist
func (s *SemanticIndex) Initialize(ctx context.Context) error {
	_, err := s.db.Exec(ctx, createSemanticTableSQL)
	return err
}

// Lookup embeds the prompt and returns the nearest stored entry if its
// similarity clears the threshold.
func (s *SemanticIndex) Lookup(ctx context.Context, prompt string) (*Entry, error) {
	embedding, err := s.embedder.GenerateEmbedding(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	var (
		fingerprint  string
		responseJSON []byte
		category     string
		createdAt    time.Time
		expiresAt    *time.Time
		similarity   float64
	)

	err = s.db.QueryRow(ctx, nearestSemanticEntrySQL, pgvector.NewVector(embedding)).Scan(
		&fingerprint, &responseJSON, &category, &createdAt, &expiresAt, &similarity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to execute semantic search: %w", err)
	}

	if similarity < s.threshold {
		return nil, nil
	}

	entry := &Entry{
		Fingerprint:  fingerprint,
		TaskCategory: core.TaskCategory(category),
		CreatedAt:    createdAt,
	}

	if expiresAt != nil {
		entry.ExpiresAt = *expiresAt
	}

	if err := json.Unmarshal(responseJSON, &entry.Response); err != nil {
		return nil, fmt.Errorf("failed to decode semantic entry: %w", err)
	}

	return entry, nil
}

// Store embeds the prompt and saves the entry for nearby future lookups.
func (s *SemanticIndex) Store(ctx context.Context, entry *Entry, prompt string) error {
	embedding, err := s.embedder.GenerateEmbedding(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	responseJSON, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to encode semantic entry: %w", err)
	}

	var expiresAt *time.Time
	if !entry.ExpiresAt.IsZero() {
		expiresAt = &entry.ExpiresAt
	}

	_, err = s.db.Exec(ctx, upsertSemanticEntrySQL,
		entry.Fingerprint,
		prompt,
		pgvector.NewVector(embedding),
		entry.Response.BackendUsed,
		string(entry.TaskCategory),
		responseJSON,
		entry.CreatedAt,
		expiresAt,
	)
	return err
}

// removes matching entries from the semantic table
func (s *SemanticIndex) Invalidate(ctx context.Context, pred Predicate) (int, error) {
	if pred.Empty() {
		return 0, nil
	}

	query := "DELETE FROM relay_semantic_entries WHERE 1=1"
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
