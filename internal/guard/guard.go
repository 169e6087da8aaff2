package guard

import (
	"sync"
	"time"

	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/errors"
	"codeberg.org/modelrelay/relay/internal/events"
	"golang.org/x/time/rate"
)

// Guard decides whether a backend may be dispatched to right now. It owns
// every circuit and rate budget; no other component mutates them.
type Guard struct {
	// limits is read on every check so hot-reloaded values apply without
	// restart
	limits func() config.Limits

	sink events.Sink

	mu      sync.RWMutex
	entries map[string]*entry

	stats Stats

	// now is swapped in tests to simulate clock advance
	now func() time.Time
}

// entry pairs one backend's circuit with its rate budget. The lock is
// scoped to the backend, so backends never contend with each other.
type entry struct {
	mu      sync.Mutex
	breaker breaker
	limiter *rate.Limiter

	// limiter parameters in effect, rebuilt when limits change
	perWindow int
	window    time.Duration
}

// New builds a guard reading limits through the given func.
func New(limits func() config.Limits, sink events.Sink) *Guard {
	if sink == nil {
		sink = events.NopSink{}
	}

	return &Guard{
		limits:  limits,
		sink:    sink,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Permit reports whether a dispatch to the backend may proceed. A denial
// carries the typed reason: open circuit or exhausted rate budget. Denials
// never count as backend failures.
func (g *Guard) Permit(backendID string) error {
	limits := g.limits()
	e := g.entry(backendID, limits)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := g.now()

	if e.breaker.maybeRecover(now, limits.RecoveryTimeout) {
		g.emitTransition(backendID, StateOpen, StateHalfOpen)
	}

	switch e.breaker.state {
	case StateOpen:
		g.stats.circuitRejections.Add(1)
		return errors.CircuitOpen(backendID, e.breaker.retryAfter(now, limits.RecoveryTimeout))

	case StateHalfOpen:
		if e.breaker.halfOpenCalls >= limits.HalfOpenMaxCalls {
			g.stats.circuitRejections.Add(1)
			return errors.CircuitOpen(backendID, 0)
		}
	}

	e.ensureLimiter(limits)

	reservation := e.limiter.Reserve()
	if !reservation.OK() {
		g.stats.rateRejections.Add(1)
		return errors.RateLimited(backendID, limits.Window)
	}

	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		g.stats.rateRejections.Add(1)

		return errors.RateLimited(backendID, delay)
	}

	// count the trial only once the dispatch is actually going out
	if e.breaker.state == StateHalfOpen {
		e.breaker.halfOpenCalls++
	}

	g.stats.permits.Add(1)

	return nil
}

// ReportSuccess records a successful dispatch for the backend.
func (g *Guard) ReportSuccess(backendID string) {
	limits := g.limits()
	e := g.entry(backendID, limits)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.breaker.onSuccess() {
		g.emitTransition(backendID, StateHalfOpen, StateClosed)
	}
}

// ReportFailure records a failed dispatch for the backend, opening the
// circuit when the threshold is reached.
func (g *Guard) ReportFailure(backendID string) {
	limits := g.limits()
	e := g.entry(backendID, limits)

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.breaker.state
	if e.breaker.onFailure(g.now(), limits.FailureThreshold) {
		g.emitTransition(backendID, from, StateOpen)
	}
}

// State returns the backend's circuit snapshot. Unknown backends report a
// fresh closed circuit, matching create-on-first-use.
func (g *Guard) State(backendID string) CircuitState {
	g.mu.RLock()
	e, ok := g.entries[backendID]
	g.mu.RUnlock()

	if !ok {
		return CircuitState{State: StateClosed}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// surface recovery in reads too, so routing sees HALF_OPEN as soon as
	// the timeout elapses
	limits := g.limits()
	if e.breaker.maybeRecover(g.now(), limits.RecoveryTimeout) {
		g.emitTransition(backendID, StateOpen, StateHalfOpen)
	}

	return e.breaker.snapshot()
}

// Snapshot returns every tracked backend's circuit state.
func (g *Guard) Snapshot() map[string]CircuitState {
	g.mu.RLock()
	ids := make([]string, 0, len(g.entries))
	for id := range g.entries {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	out := make(map[string]CircuitState, len(ids))
	for _, id := range ids {
		out[id] = g.State(id)
	}

	return out
}

// Reset closes the backend's circuit and zeroes its counters. Reports
// whether the backend was tracked.
func (g *Guard) Reset(backendID string) bool {
	g.mu.RLock()
	e, ok := g.entries[backendID]
	g.mu.RUnlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.breaker.state
	e.breaker.reset()

	if from != StateClosed {
		g.emitTransition(backendID, from, StateClosed)
	}

	return true
}

// ResetAll closes every tracked circuit; used by tests and admin tooling.
func (g *Guard) ResetAll() {
	g.mu.RLock()
	ids := make([]string, 0, len(g.entries))
	for id := range g.entries {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	for _, id := range ids {
		g.Reset(id)
	}
}

// Stats returns a snapshot of the permit counters.
func (g *Guard) Stats() StatsSnapshot {
	return g.stats.Snapshot()
}

// returns the backend's entry, creating it closed on first use
func (g *Guard) entry(backendID string, limits config.Limits) *entry {
	g.mu.RLock()
	e, ok := g.entries[backendID]
	g.mu.RUnlock()

	if ok {
		return e
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.entries[backendID]; ok {
		return e
	}

	e = &entry{}
	e.ensureLimiter(limits)
	g.entries[backendID] = e

	return e
}

func (g *Guard) emitTransition(backendID string, from, to State) {
	g.sink.Emit("info", "circuit.transition", map[string]any{
		"backend": backendID,
		"from":    from.String(),
		"to":      to.String(),
	})
}

// builds or rebuilds the token bucket when the configured budget changed
func (e *entry) ensureLimiter(limits config.Limits) {
	if e.limiter != nil && e.perWindow == limits.RequestsPerWindow && e.window == limits.Window {
		return
	}

	perSecond := rate.Limit(float64(limits.RequestsPerWindow) / limits.Window.Seconds())
	e.limiter = rate.NewLimiter(perSecond, limits.RequestsPerWindow)
	e.perWindow = limits.RequestsPerWindow
	e.window = limits.Window
}
