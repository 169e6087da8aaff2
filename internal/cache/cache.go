package cache

import (
	"context"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
)

// Entry is one stored response. Entries are never mutated after creation,
// only replaced or deleted; the cached flag is applied on the way out.
type Entry struct {
	Fingerprint  string            `json:"fingerprint"`
	Response     core.Response     `json:"response"`
	TaskCategory core.TaskCategory `json:"task_category"`
	CreatedAt    time.Time         `json:"created_at"`

	// ExpiresAt zero means the entry never expires
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the entry's TTL has passed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Predicate selects entries for invalidation. Exactly one field is
// normally set; multiple set fields must all match.
type Predicate struct {
	Fingerprint  string            `json:"fingerprint,omitempty"`
	BackendID    string            `json:"backend_id,omitempty"`
	TaskCategory core.TaskCategory `json:"task_category,omitempty"`
}

// Empty reports whether the predicate selects nothing.
func (p Predicate) Empty() bool {
	return p.Fingerprint == "" && p.BackendID == "" && p.TaskCategory == ""
}

// Matches reports whether the entry satisfies every set field.
func (p Predicate) Matches(e *Entry) bool {
	if p.Empty() {
		return false
	}

	if p.Fingerprint != "" && e.Fingerprint != p.Fingerprint {
		return false
	}

	if p.BackendID != "" && e.Response.BackendUsed != p.BackendID {
		return false
	}

	if p.TaskCategory != "" && e.TaskCategory != p.TaskCategory {
		return false
	}

	return true
}

// Store is one cache tier. A nil entry with nil error is a miss; tiers
// treat expired entries as misses and purge them lazily.
type Store interface {
	Name() string
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Invalidate(ctx context.Context, pred Predicate) (int, error)
	Close() error
}
