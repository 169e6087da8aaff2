package cache

import (
	"context"
	"errors"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/logger"
)

// default internal timeouts; tier latency must never dominate a request
const (
	defaultGetTimeout      = 50 * time.Millisecond
	defaultSetTimeout      = 250 * time.Millisecond
	defaultSemanticTimeout = 2 * time.Second
)

// Options tune the tiered cache.
type Options struct {
	// GetTimeout bounds a single tier read
	GetTimeout time.Duration

	// SetTimeout bounds a single tier write
	SetTimeout time.Duration

	// SemanticTimeout bounds a semantic lookup, which includes an
	// embedding call and is allowed to be slower than exact tiers
	SemanticTimeout time.Duration

	// Semantic enables meaning-based lookup after every exact tier missed
	Semantic *SemanticIndex
}

// Tiered is the cache-aside strategy object callers invoke explicitly.
// Tiers are ordered fastest first; hits in a slower tier are promoted
// forward. Every tier failure degrades to a miss - caching is an
// optimization, never a correctness dependency.
type Tiered struct {
	tiers    []Store
	semantic *SemanticIndex
	stats    *Stats

	getTimeout      time.Duration
	setTimeout      time.Duration
	semanticTimeout time.Duration
}

// NewTiered composes the given tiers, fastest first.
func NewTiered(tiers []Store, opts Options) *Tiered {
	t := &Tiered{
		tiers:           tiers,
		semantic:        opts.Semantic,
		stats:           &Stats{},
		getTimeout:      opts.GetTimeout,
		setTimeout:      opts.SetTimeout,
		semanticTimeout: opts.SemanticTimeout,
	}

	if t.getTimeout <= 0 {
		t.getTimeout = defaultGetTimeout
	}

	if t.setTimeout <= 0 {
		t.setTimeout = defaultSetTimeout
	}

	if t.semanticTimeout <= 0 {
		t.semanticTimeout = defaultSemanticTimeout
	}

	return t
}

// Lookup walks the tiers for the fingerprint, falling back to the semantic
// index when every exact tier misses. A hit comes back as a copy with the
// cached flag set.
func (t *Tiered) Lookup(ctx context.Context, fingerprint, prompt string) (*core.Response, bool) {
	for i, tier := range t.tiers {
		entry, err := t.tierGet(ctx, tier, fingerprint)
		if err != nil {
			t.stats.recordError()
			logger.Warn("cache tier read failed, treating as miss",
				"tier", tier.Name(),
				"error", err,
			)
			continue
		}

		if entry == nil {
			continue
		}

		t.stats.recordHit()
		t.promote(entry, i)

		return cachedCopy(entry), true
	}

	if t.semantic != nil && prompt != "" {
		entry, err := t.semanticLookup(ctx, prompt)
		if err != nil {
			t.stats.recordError()
			logger.Warn("semantic cache lookup failed, treating as miss", "error", err)
		} else if entry != nil {
			t.stats.recordSemanticHit()
			return cachedCopy(entry), true
		}
	}

	t.stats.recordMiss()

	return nil, false
}

// Store writes the response through every tier under the given TTL.
// A non-positive TTL stores nothing. Tier errors are logged and swallowed.
func (t *Tiered) Store(ctx context.Context, fingerprint, prompt string, category core.TaskCategory, resp *core.Response, ttl time.Duration) {
	if ttl <= 0 || resp == nil {
		return
	}

	stored := resp.Clone()
	stored.Cached = false

	now := time.Now()
	entry := &Entry{
		Fingerprint:  fingerprint,
		Response:     *stored,
		TaskCategory: category,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	wrote := false

	for _, tier := range t.tiers {
		tctx, cancel := context.WithTimeout(ctx, t.setTimeout)
		err := tier.Set(tctx, entry)
		cancel()

		if err != nil {
			t.stats.recordError()
			logger.Warn("cache tier write failed",
				"tier", tier.Name(),
				"error", err,
			)
			continue
		}

		wrote = true
	}

	if t.semantic != nil && prompt != "" {
		sctx, cancel := context.WithTimeout(ctx, t.semanticTimeout)
		err := t.semantic.Store(sctx, entry, prompt)
		cancel()

		if err != nil {
			t.stats.recordError()
			logger.Warn("semantic cache write failed", "error", err)
		} else {
			wrote = true
		}
	}

	if wrote {
		t.stats.recordStore()
	}
}

// GetOrCompute is the explicit cache-aside entry point: return a hit, or
// run compute and store its result in the background. Compute failures are
// returned as-is and never cached.
func (t *Tiered) GetOrCompute(ctx context.Context, fingerprint, prompt string, category core.TaskCategory, ttl time.Duration, compute func(context.Context) (*core.Response, error)) (*core.Response, error) {
	if resp, ok := t.Lookup(ctx, fingerprint, prompt); ok {
		return resp, nil
	}

	resp, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	// fire-and-forget: the caller never waits on cache writes
	go t.Store(context.Background(), fingerprint, prompt, category, resp, ttl)

	return resp, nil
}

// Invalidate removes matching entries from every tier and the semantic
// index, returning the total dropped.
func (t *Tiered) Invalidate(ctx context.Context, pred Predicate) (int, error) {
	total := 0
	var errs []error

	for _, tier := range t.tiers {
		n, err := tier.Invalidate(ctx, pred)
		total += n

		if err != nil {
			errs = append(errs, err)
		}
	}

	if t.semantic != nil {
		n, err := t.semantic.Invalidate(ctx, pred)
		total += n

		if err != nil {
			errs = append(errs, err)
		}
	}

	return total, errors.Join(errs...)
}

// Stats returns a snapshot of the counters.
func (t *Tiered) Stats() StatsSnapshot {
	return t.stats.Snapshot()
}

// Close shuts down every tier.
func (t *Tiered) Close() {
	for _, tier := range t.tiers {
		if err := tier.Close(); err != nil {
			logger.Warn("failed to close cache tier", "tier", tier.Name(), "error", err)
		}
	}
}

func (t *Tiered) tierGet(ctx context.Context, tier Store, fingerprint string) (*Entry, error) {
	tctx, cancel := context.WithTimeout(ctx, t.getTimeout)
	defer cancel()

	return tier.Get(tctx, fingerprint)
}

func (t *Tiered) semanticLookup(ctx context.Context, prompt string) (*Entry, error) {
	sctx, cancel := context.WithTimeout(ctx, t.semanticTimeout)
	defer cancel()

	return t.semantic.Lookup(sctx, prompt)
}

// copies a slower-tier hit into every faster tier so the next lookup stops
// earlier
func (t *Tiered) promote(entry *Entry, foundAt int) {
	if foundAt == 0 {
		return
	}

	go func() {
		for _, tier := range t.tiers[:foundAt] {
			ctx, cancel := context.WithTimeout(context.Background(), t.setTimeout)
			err := tier.Set(ctx, entry)
			cancel()

			if err != nil {
				logger.Warn("cache promotion failed", "tier", tier.Name(), "error", err)
			}
		}
	}()
}

// hands out a copy with the cached flag set, leaving the stored entry
// untouched
func cachedCopy(entry *Entry) *core.Response {
	resp := entry.Response.Clone()
	resp.Cached = true

	return resp
}
