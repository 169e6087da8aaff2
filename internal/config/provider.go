package config

import (
	"sync/atomic"

	"codeberg.org/modelrelay/relay/internal/core"
)

// Snapshot is one fully-formed view of the registry plus limits. In-flight
// requests keep the snapshot they started with; updates publish a new one.
type Snapshot struct {
	Registry *core.Registry
	Limits   Limits
}

// Provider hands out configuration snapshots and accepts atomic swaps.
// Readers never block writers and never observe a partial update.
type Provider struct {
	current atomic.Pointer[Snapshot]
}

// NewProvider builds a provider seeded with the initial snapshot.
func NewProvider(registry *core.Registry, limits Limits) *Provider {
	p := &Provider{}
	p.current.Store(&Snapshot{Registry: registry, Limits: limits})

	return p
}

// Snapshot returns the current configuration view.
func (p *Provider) Snapshot() *Snapshot {
	return p.current.Load()
}

// Swap publishes a new registry and limits as one atomic snapshot.
func (p *Provider) Swap(registry *core.Registry, limits Limits) {
	p.current.Store(&Snapshot{Registry: registry, Limits: limits})
}
