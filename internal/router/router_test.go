package router

import (
	"reflect"
	"testing"

	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/guard"
)

type fakeCircuits map[string]guard.CircuitState

func (f fakeCircuits) State(id string) guard.CircuitState {
	return f[id]
}

func open(failures int) guard.CircuitState {
	return guard.CircuitState{State: guard.StateOpen, ConsecutiveFailures: failures}
}

func testRegistry(t *testing.T) *core.Registry {
	t.Helper()

	reg, err := core.NewRegistry([]core.BackendDescriptor{
		{
			ID:       "gh-gpt4o",
			Provider: "github_models",
			Model:    "gpt-4o",
			Priority: 50,
			TaskCategories: []core.TaskCategory{
				core.TaskCodeGeneration,
				core.TaskDocumentation,
			},
		},
		{
			ID:       "claude-sonnet",
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
			Priority: 100,
			TaskCategories: []core.TaskCategory{
				core.TaskCodeGeneration,
				core.TaskRefactoring,
				core.TaskGeneral,
			},
		},
		{
			ID:       "claude-haiku",
			Provider: "anthropic",
			Model:    "claude-haiku-4-5",
			Priority: 50,
			TaskCategories: []core.TaskCategory{
				core.TaskCodeGeneration,
				core.TaskGeneral,
			},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	return reg
}

func ids(backends []core.BackendDescriptor) []string {
	out := make([]string, len(backends))
	for i, b := range backends {
		out[i] = b.ID
	}

	return out
}

func TestCandidates(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		name      string
		category  core.TaskCategory
		preferred string
		circuits  fakeCircuits
		want      []string
	}{
		{
			name:     "priority order with id tiebreak",
			category: core.TaskCodeGeneration,
			circuits: fakeCircuits{},
			want:     []string{"claude-sonnet", "claude-haiku", "gh-gpt4o"},
		},
		{
			name:      "preferred backend moves to front",
			category:  core.TaskCodeGeneration,
			preferred: "gh-gpt4o",
			circuits:  fakeCircuits{},
			want:      []string{"gh-gpt4o", "claude-sonnet", "claude-haiku"},
		},
		{
			name:      "preferred without category support is ignored",
			category:  core.TaskDocumentation,
			preferred: "claude-haiku",
			circuits:  fakeCircuits{},
			want:      []string{"gh-gpt4o"},
		},
		{
			name:      "unregistered preference is ignored",
			category:  core.TaskCodeGeneration,
			preferred: "no-such-backend",
			circuits:  fakeCircuits{},
			want:      []string{"claude-sonnet", "claude-haiku", "gh-gpt4o"},
		},
		{
			name:     "unsupported category falls back to general backends",
			category: core.TaskTesting,
			circuits: fakeCircuits{},
			want:     []string{"claude-sonnet", "claude-haiku"},
		},
		{
			name:     "open circuits are filtered out",
			category: core.TaskCodeGeneration,
			circuits: fakeCircuits{"claude-sonnet": open(5)},
			want:     []string{"claude-haiku", "gh-gpt4o"},
		},
		{
			name:     "half-open backends stay eligible",
			category: core.TaskCodeGeneration,
			circuits: fakeCircuits{
				"claude-sonnet": {State: guard.StateHalfOpen, ConsecutiveFailures: 5},
			},
			want: []string{"claude-sonnet", "claude-haiku", "gh-gpt4o"},
		},
		{
			name:     "all open keeps the healthiest as last resort",
			category: core.TaskCodeGeneration,
			circuits: fakeCircuits{
				"claude-sonnet": open(9),
				"claude-haiku":  open(5),
				"gh-gpt4o":      open(7),
			},
			want: []string{"claude-haiku"},
		},
		{
			name:     "last resort tie keeps the most preferred",
			category: core.TaskCodeGeneration,
			circuits: fakeCircuits{
				"claude-sonnet": open(5),
				"claude-haiku":  open(5),
				"gh-gpt4o":      open(5),
			},
			want: []string{"claude-sonnet"},
		},
		{
			name:      "preferred survives as last resort candidate",
			category:  core.TaskCodeGeneration,
			preferred: "gh-gpt4o",
			circuits: fakeCircuits{
				"claude-sonnet": open(5),
				"claude-haiku":  open(5),
				"gh-gpt4o":      open(5),
			},
			want: []string{"gh-gpt4o"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Candidates(reg, tt.category, tt.preferred, tt.circuits))

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCandidatesEmptyWhenNothingRegistered(t *testing.T) {
	reg, err := core.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	if got := Candidates(reg, core.TaskCodeGeneration, "", fakeCircuits{}); got != nil {
		t.Errorf("Candidates() = %v, want nil", got)
	}
}

func TestCandidatesDoesNotMutateInputs(t *testing.T) {
	reg := testRegistry(t)
	before := ids(reg.All())

	_ = Candidates(reg, core.TaskCodeGeneration, "gh-gpt4o", fakeCircuits{})

	if got := ids(reg.All()); !reflect.DeepEqual(got, before) {
		t.Errorf("registry order changed: %v -> %v", before, got)
	}
}
