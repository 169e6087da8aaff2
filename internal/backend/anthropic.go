package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion     = "2023-06-01"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicClient speaks the Anthropic messages API for one backend.
type AnthropicClient struct {
	desc        core.BackendDescriptor
	apiKey      string
	endpoint    string
	callTimeout time.Duration
	httpClient  *http.Client
}

func NewAnthropic(desc core.BackendDescriptor, apiKey string, opts Options) *AnthropicClient {
	endpoint := desc.Endpoint
	if endpoint == "" {
		endpoint = anthropicMessagesURL
	}

	return &AnthropicClient{
		desc:        desc,
		apiKey:      apiKey,
		endpoint:    endpoint,
		callTimeout: opts.callTimeout(),
		httpClient:  opts.httpClient(),
	}
}

func (c *AnthropicClient) ID() string {
	return c.desc.ID
}

func (c *AnthropicClient) Send(ctx context.Context, req core.Request) (*core.Response, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = c.desc.MaxTokens
	}

	if maxTokens == 0 {
		maxTokens = defaultMaxOutputTokens
	}

	reqBody := anthropicRequest{
		Model:       c.desc.Model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Transient(c.desc.ID, "failed to marshal request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Transient(c.desc.ID, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, c.desc.ID, err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck
		return nil, statusError(c.desc.ID, resp.StatusCode, body, resp.Header)
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, errors.Transient(c.desc.ID, "failed to decode response", err)
	}

	if len(apiResp.Content) == 0 {
		return nil, errors.Transient(c.desc.ID, "no content in response", nil)
	}

	model := apiResp.Model
	if model == "" {
		model = c.desc.Model
	}

	return &core.Response{
		Content:     strings.TrimSpace(apiResp.Content[0].Text),
		BackendUsed: c.desc.ID,
		TokensUsed: core.TokenUsage{
			Input:  apiResp.Usage.InputTokens,
			Output: apiResp.Usage.OutputTokens,
		},
		ProcessingTime: time.Since(start),
		Metadata: map[string]string{
			"provider": c.desc.Provider,
			"model":    model,
		},
	}, nil
}
