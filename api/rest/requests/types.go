package requests

import (
	"codeberg.org/modelrelay/relay/internal/core"
)

// Request is the request body for a single model dispatch.
type Request struct {
	Prompt           string            `json:"prompt" binding:"required"`
	TaskCategory     string            `json:"task_category" binding:"required"`
	PreferredBackend string            `json:"preferred_backend"`
	SystemPrompt     string            `json:"system_prompt"`
	Temperature      float64           `json:"temperature"`
	MaxOutputTokens  int               `json:"max_output_tokens"`
	Metadata         map[string]string `json:"metadata"`

	// TimeoutSeconds bounds the whole dispatch including fallbacks; zero
	// leaves only the server-side default in place
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Response is the normalized reply for a satisfied request.
type Response struct {
	Content               string            `json:"content"`
	BackendUsed           string            `json:"backend_used"`
	TokensUsed            TokenUsage        `json:"tokens_used"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	Cached                bool              `json:"cached"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// BatchRequest carries independent requests processed concurrently.
type BatchRequest struct {
	Requests []Request `json:"requests" binding:"required"`
}

// BatchItem is one positional outcome of a batch. Exactly one of Response
// and Error is set.
type BatchItem struct {
	Response *Response   `json:"response,omitempty"`
	Error    *BatchError `json:"error,omitempty"`
}

type BatchError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

func (r Request) toCore() core.Request {
	return core.Request{
		Prompt:           r.Prompt,
		TaskCategory:     core.TaskCategory(r.TaskCategory),
		PreferredBackend: r.PreferredBackend,
		SystemPrompt:     r.SystemPrompt,
		Temperature:      r.Temperature,
		MaxOutputTokens:  r.MaxOutputTokens,
		Metadata:         r.Metadata,
	}
}

func fromCore(resp *core.Response) *Response {
	return &Response{
		Content:               resp.Content,
		BackendUsed:           resp.BackendUsed,
		TokensUsed:            TokenUsage{Input: resp.TokensUsed.Input, Output: resp.TokensUsed.Output},
		ProcessingTimeSeconds: resp.ProcessingTime.Seconds(),
		Cached:                resp.Cached,
		Metadata:              resp.Metadata,
	}
}
