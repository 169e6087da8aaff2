package core

import (
	"fmt"
	"sort"
)

// BackendDescriptor is a static registry entry for one model backend.
// Descriptors never change after registry construction; availability is
// tracked separately by the circuit guard.
type BackendDescriptor struct {
	ID             string         `json:"id"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	TaskCategories []TaskCategory `json:"task_categories"`
	Priority       int            `json:"priority"`
	MaxTokens      int            `json:"max_tokens"`

	// Endpoint overrides the provider's default base URL when set
	Endpoint string `json:"endpoint,omitempty"`

	// CredentialEnv names the environment variable holding this backend's
	// credential; empty means the provider default applies
	CredentialEnv string `json:"credential_env,omitempty"`
}

// Supports reports whether the backend declares the given category.
func (d BackendDescriptor) Supports(cat TaskCategory) bool {
	for _, c := range d.TaskCategories {
		if c == cat {
			return true
		}
	}

	return false
}

// Registry is an immutable snapshot of the configured backends. Updates
// publish a whole new registry; in-flight requests keep reading the one
// they started with.
type Registry struct {
	backends []BackendDescriptor
	byID     map[string]BackendDescriptor
}

// NewRegistry builds a registry from descriptors, rejecting duplicates and
// entries missing required fields.
func NewRegistry(backends []BackendDescriptor) (*Registry, error) {
	byID := make(map[string]BackendDescriptor, len(backends))
	ordered := make([]BackendDescriptor, 0, len(backends))

	for _, b := range backends {
		if b.ID == "" {
			return nil, fmt.Errorf("backend descriptor missing id (provider %q, model %q)", b.Provider, b.Model)
		}

		if b.Provider == "" {
			return nil, fmt.Errorf("backend %q missing provider", b.ID)
		}

		if _, exists := byID[b.ID]; exists {
			return nil, fmt.Errorf("duplicate backend id %q", b.ID)
		}

		for _, c := range b.TaskCategories {
			if !c.Valid() {
				return nil, fmt.Errorf("backend %q declares unknown task category %q", b.ID, c)
			}
		}

		byID[b.ID] = b
		ordered = append(ordered, b)
	}

	sortByPreference(ordered)

	return &Registry{backends: ordered, byID: byID}, nil
}

// Get looks up a backend by id.
func (r *Registry) Get(id string) (BackendDescriptor, bool) {
	b, ok := r.byID[id]
	return b, ok
}

// All returns every backend ordered by descending priority, ties broken by
// ascending id. The slice is a copy.
func (r *Registry) All() []BackendDescriptor {
	out := make([]BackendDescriptor, len(r.backends))
	copy(out, r.backends)
	return out
}

// Supporting returns the backends declaring the category, ordered by
// descending priority, ties broken by ascending id.
func (r *Registry) Supporting(cat TaskCategory) []BackendDescriptor {
	var out []BackendDescriptor

	for _, b := range r.backends {
		if b.Supports(cat) {
			out = append(out, b)
		}
	}

	return out
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	return len(r.backends)
}

// orders descriptors by descending priority, then ascending id for
// deterministic candidate lists
func sortByPreference(backends []BackendDescriptor) {
	sort.SliceStable(backends, func(i, j int) bool {
		if backends[i].Priority != backends[j].Priority {
			return backends[i].Priority > backends[j].Priority
		}

		return backends[i].ID < backends[j].ID
	})
}
