package config

import (
	"sync"
	"testing"

	"codeberg.org/modelrelay/relay/internal/core"
)

func registryOf(t *testing.T, ids ...string) *core.Registry {
	t.Helper()

	backends := make([]core.BackendDescriptor, 0, len(ids))
	for _, id := range ids {
		backends = append(backends, core.BackendDescriptor{
			ID:             id,
			Provider:       "anthropic",
			TaskCategories: []core.TaskCategory{core.TaskGeneral},
		})
	}

	reg, err := core.NewRegistry(backends)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	return reg
}

func TestProviderSwap(t *testing.T) {
	p := NewProvider(registryOf(t, "a"), DefaultLimits())

	if got := p.Snapshot().Registry.Len(); got != 1 {
		t.Fatalf("initial registry size = %d, want 1", got)
	}

	limits := DefaultLimits()
	limits.FailureThreshold = 2
	p.Swap(registryOf(t, "a", "b"), limits)

	snap := p.Snapshot()
	if snap.Registry.Len() != 2 {
		t.Errorf("registry size after swap = %d, want 2", snap.Registry.Len())
	}

	if snap.Limits.FailureThreshold != 2 {
		t.Errorf("failure threshold after swap = %d, want 2", snap.Limits.FailureThreshold)
	}
}

func TestProviderSnapshotStableUnderSwap(t *testing.T) {
	p := NewProvider(registryOf(t, "a"), DefaultLimits())

	held := p.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Swap(registryOf(t, "a", "b", "c"), DefaultLimits())
		}()
	}
	wg.Wait()

	// a snapshot taken before the swaps still reads its original registry
	if held.Registry.Len() != 1 {
		t.Errorf("held snapshot mutated: registry size = %d, want 1", held.Registry.Len())
	}

	if p.Snapshot().Registry.Len() != 3 {
		t.Errorf("current snapshot registry size = %d, want 3", p.Snapshot().Registry.Len())
	}
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", limits.FailureThreshold)
	}

	if limits.RecoveryTimeout.Seconds() != 60 {
		t.Errorf("RecoveryTimeout = %v, want 60s", limits.RecoveryTimeout)
	}

	if limits.HalfOpenMaxCalls != 3 {
		t.Errorf("HalfOpenMaxCalls = %d, want 3", limits.HalfOpenMaxCalls)
	}

	if limits.CacheTTL.Seconds() != 3600 {
		t.Errorf("CacheTTL = %v, want 3600s", limits.CacheTTL)
	}

	if limits.MaxPromptLength != 50000 {
		t.Errorf("MaxPromptLength = %d, want 50000", limits.MaxPromptLength)
	}
}
