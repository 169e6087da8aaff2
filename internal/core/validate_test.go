package core

import (
	"strings"
	"testing"

	"codeberg.org/modelrelay/relay/internal/errors"
)

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Prompt:       "write a binary search in Go",
		TaskCategory: TaskCodeGeneration,
		Temperature:  0.7,
	}

	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{
			name:    "valid request",
			mutate:  func(r *Request) {},
			wantErr: false,
		},
		{
			name:    "empty prompt",
			mutate:  func(r *Request) { r.Prompt = "" },
			wantErr: true,
		},
		{
			name:    "whitespace-only prompt",
			mutate:  func(r *Request) { r.Prompt = "   \n\t  " },
			wantErr: true,
		},
		{
			name:    "unknown category",
			mutate:  func(r *Request) { r.TaskCategory = "poetry" },
			wantErr: true,
		},
		{
			name:    "temperature too high",
			mutate:  func(r *Request) { r.Temperature = 2.5 },
			wantErr: true,
		},
		{
			name:    "temperature negative",
			mutate:  func(r *Request) { r.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "temperature at upper bound",
			mutate:  func(r *Request) { r.Temperature = 2.0 },
			wantErr: false,
		},
		{
			name:    "temperature zero",
			mutate:  func(r *Request) { r.Temperature = 0 },
			wantErr: false,
		},
		{
			name:    "negative max output tokens",
			mutate:  func(r *Request) { r.MaxOutputTokens = -1 },
			wantErr: true,
		},
		{
			name:    "max output tokens unset",
			mutate:  func(r *Request) { r.MaxOutputTokens = 0 },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate(0)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}

				if !errors.IsKind(err, errors.KindValidation) {
					t.Errorf("expected KindValidation, got %v", errors.KindOf(err))
				}

				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequestValidatePromptLength(t *testing.T) {
	req := Request{
		Prompt:       strings.Repeat("x", 101),
		TaskCategory: TaskGeneral,
		Temperature:  0.7,
	}

	if err := req.Validate(100); err == nil {
		t.Error("expected error for prompt over the configured maximum")
	}

	req.Prompt = strings.Repeat("x", 100)
	if err := req.Validate(100); err != nil {
		t.Errorf("unexpected error at exact maximum: %v", err)
	}
}

func TestResponseClone(t *testing.T) {
	orig := &Response{
		Content:     "done",
		BackendUsed: "claude-sonnet",
		TokensUsed:  TokenUsage{Input: 12, Output: 40},
		Metadata:    map[string]string{"language": "go"},
	}

	clone := orig.Clone()
	clone.Cached = true
	clone.Metadata["language"] = "rust"

	if orig.Cached {
		t.Error("mutating the clone changed the original cached flag")
	}

	if orig.Metadata["language"] != "go" {
		t.Error("mutating the clone changed the original metadata")
	}
}
