// Package router turns a task category and optional backend preference
// into an ordered candidate list for the orchestrator to try.
package router

import (
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/guard"
)

// CircuitView is the slice of guard state candidate selection consults.
// *guard.Guard satisfies it.
type CircuitView interface {
	State(backendID string) guard.CircuitState
}

// Candidates produces the ordered backends to try for a request: the
// preferred backend first when it is registered and supports the category,
// then the remaining supporters by descending priority (ties broken by
// ascending id). Categories nothing supports fall back to the general
// backends. Backends with an open circuit are dropped; if that would leave
// nothing, the healthiest open backend is kept as a last resort so the
// caller surfaces a real backend error instead of an empty list.
//
// The result is a pure function of its inputs; no state is mutated.
func Candidates(reg *core.Registry, category core.TaskCategory, preferred string, circuits CircuitView) []core.BackendDescriptor {
	supported := reg.Supporting(category)
	if len(supported) == 0 && category != core.TaskGeneral {
		supported = reg.Supporting(core.TaskGeneral)
	}

	if len(supported) == 0 {
		return nil
	}

	ordered := promotePreferred(supported, preferred)

	eligible := make([]core.BackendDescriptor, 0, len(ordered))
	for _, b := range ordered {
		if circuits.State(b.ID).State != guard.StateOpen {
			eligible = append(eligible, b)
		}
	}

	if len(eligible) > 0 {
		return eligible
	}

	return []core.BackendDescriptor{lastResort(ordered, circuits)}
}

// moves the preferred backend to the front when it appears in the list,
// preserving the relative order of the rest
func promotePreferred(backends []core.BackendDescriptor, preferred string) []core.BackendDescriptor {
	out := make([]core.BackendDescriptor, 0, len(backends))

	if preferred != "" {
		for _, b := range backends {
			if b.ID == preferred {
				out = append(out, b)
				break
			}
		}
	}

	for _, b := range backends {
		if len(out) > 0 && b.ID == out[0].ID {
			continue
		}

		out = append(out, b)
	}

	return out
}

// picks the backend with the fewest consecutive failures when every
// candidate's circuit is open. latency history is not tracked, so the
// failure count is the closest available health signal.
func lastResort(backends []core.BackendDescriptor, circuits CircuitView) core.BackendDescriptor {
	best := backends[0]
	bestFailures := circuits.State(best.ID).ConsecutiveFailures

	for _, b := range backends[1:] {
		if failures := circuits.State(b.ID).ConsecutiveFailures; failures < bestFailures {
			best = b
			bestFailures = failures
		}
	}

	return best
}
