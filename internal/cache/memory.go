package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage. It is the fastest
// tier and the only one always present.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	done    chan struct{}
	closed  bool

	// now is swapped in tests to simulate clock advance
	now func() time.Time
}

// creates a new in-memory cache store
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]*Entry),
		done:    make(chan struct{}),
		now:     time.Now,
	}

	go store.cleanupLoop()

	return store
}

func (s *MemoryStore) Name() string {
	return "memory"
}

// retrieves an entry, lazily purging it when expired
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[fingerprint]
	if !exists {
		return nil, nil
	}

	if entry.Expired(s.now()) {
		delete(s.entries, fingerprint)
		return nil, nil
	}

	return entry, nil
}

// stores an entry, overwriting any existing one
func (s *MemoryStore) Set(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Fingerprint] = entry

	return nil
}

// removes matching entries and returns how many were dropped
func (s *MemoryStore) Invalidate(_ context.Context, pred Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for fingerprint, entry := range s.entries {
		if pred.Matches(entry) {
			delete(s.entries, fingerprint)
			count++
		}
	}

	return count, nil
}

// stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for fingerprint, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, fingerprint)
		}
	}
}
