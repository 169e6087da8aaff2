package core

import (
	"time"
)

// TaskCategory names the kind of code-assistance work a request carries.
// Backends declare which categories they serve.
type TaskCategory string

const (
	TaskCodeGeneration TaskCategory = "code_generation"
	TaskCodeCompletion TaskCategory = "code_completion"
	TaskDocumentation  TaskCategory = "documentation"
	TaskExplanation    TaskCategory = "explanation"
	TaskRefactoring    TaskCategory = "refactoring"
	TaskTesting        TaskCategory = "testing"
	TaskAnalysis       TaskCategory = "analysis"
	TaskGeneral        TaskCategory = "general"
)

// ordered list of every known category, used for validation and docs
func TaskCategories() []TaskCategory {
	return []TaskCategory{
		TaskCodeGeneration,
		TaskCodeCompletion,
		TaskDocumentation,
		TaskExplanation,
		TaskRefactoring,
		TaskTesting,
		TaskAnalysis,
		TaskGeneral,
	}
}

// Valid reports whether the category is one of the known values.
func (c TaskCategory) Valid() bool {
	switch c {
	case TaskCodeGeneration, TaskCodeCompletion, TaskDocumentation, TaskExplanation,
		TaskRefactoring, TaskTesting, TaskAnalysis, TaskGeneral:
		return true
	default:
		return false
	}
}

// Request is a normalized model request. It is treated as immutable once
// validated; dispatch never mutates it.
type Request struct {
	Prompt           string            `json:"prompt"`
	TaskCategory     TaskCategory      `json:"task_category"`
	PreferredBackend string            `json:"preferred_backend,omitempty"`
	SystemPrompt     string            `json:"system_prompt,omitempty"`
	Temperature      float64           `json:"temperature"`
	MaxOutputTokens  int               `json:"max_output_tokens,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TokenUsage counts tokens consumed by one backend call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Response is the normalized result of a model request. Values are never
// mutated after creation; cache tiers hand out copies.
type Response struct {
	Content        string            `json:"content"`
	BackendUsed    string            `json:"backend_used"`
	TokensUsed     TokenUsage        `json:"tokens_used"`
	ProcessingTime time.Duration     `json:"processing_time"`
	Cached         bool              `json:"cached"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so stored responses stay untouched when a
// caller flips the cached flag or annotates metadata.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}

	out := *r

	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}

	return &out
}
