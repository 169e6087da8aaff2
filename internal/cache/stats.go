package cache

import "sync/atomic"

// Stats counts cache outcomes for the owning tiered cache instance.
// Counters are owned by the instance, not the process, so tests stay
// isolated from each other.
type Stats struct {
	hits         atomic.Int64
	semanticHits atomic.Int64
	misses       atomic.Int64
	stores       atomic.Int64
	errors       atomic.Int64
}

// StatsSnapshot is a point-in-time read of the counters.
type StatsSnapshot struct {
	Hits         int64 `json:"hits"`
	SemanticHits int64 `json:"semantic_hits"`
	Misses       int64 `json:"misses"`
	Stores       int64 `json:"stores"`
	Errors       int64 `json:"errors"`
}

func (s *Stats) recordHit()         { s.hits.Add(1) }
func (s *Stats) recordSemanticHit() { s.semanticHits.Add(1) }
func (s *Stats) recordMiss()        { s.misses.Add(1) }
func (s *Stats) recordStore()       { s.stores.Add(1) }
func (s *Stats) recordError()       { s.errors.Add(1) }

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:         s.hits.Load(),
		SemanticHits: s.semanticHits.Load(),
		Misses:       s.misses.Load(),
		Stores:       s.stores.Load(),
		Errors:       s.errors.Load(),
	}
}
