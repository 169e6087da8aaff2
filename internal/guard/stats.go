package guard

import "sync/atomic"

// Stats counts permit outcomes for the owning guard instance.
type Stats struct {
	permits           atomic.Int64
	rateRejections    atomic.Int64
	circuitRejections atomic.Int64
}

// StatsSnapshot is a point-in-time read of the counters.
type StatsSnapshot struct {
	Permits           int64 `json:"permits"`
	RateRejections    int64 `json:"rate_rejections"`
	CircuitRejections int64 `json:"circuit_rejections"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Permits:           s.permits.Load(),
		RateRejections:    s.rateRejections.Load(),
		CircuitRejections: s.circuitRejections.Load(),
	}
}
