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
	openaiChatURL       = "https://api.openai.com/v1/chat/completions"
	githubModelsChatURL = "https://models.inference.ai.azure.com/chat/completions"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// OpenAIChatClient speaks the OpenAI chat completions protocol, which the
// GitHub Models endpoint shares.
type OpenAIChatClient struct {
	desc        core.BackendDescriptor
	apiKey      string
	endpoint    string
	callTimeout time.Duration
	httpClient  *http.Client
}

func NewOpenAIChat(desc core.BackendDescriptor, apiKey string, opts Options) *OpenAIChatClient {
	endpoint := desc.Endpoint
	if endpoint == "" {
		if desc.Provider == "github_models" {
			endpoint = githubModelsChatURL
		} else {
			endpoint = openaiChatURL
		}
	}

	return &OpenAIChatClient{
		desc:        desc,
		apiKey:      apiKey,
		endpoint:    endpoint,
		callTimeout: opts.callTimeout(),
		httpClient:  opts.httpClient(),
	}
}

func (c *OpenAIChatClient) ID() string {
	return c.desc.ID
}

func (c *OpenAIChatClient) Send(ctx context.Context, req core.Request) (*core.Response, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = c.desc.MaxTokens
	}

	reqBody := chatRequest{
		Model:       c.desc.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
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
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, errors.Transient(c.desc.ID, "failed to decode response", err)
	}

	if len(apiResp.Choices) == 0 {
		return nil, errors.Transient(c.desc.ID, "no choices in response", nil)
	}

	model := apiResp.Model
	if model == "" {
		model = c.desc.Model
	}

	return &core.Response{
		Content:     strings.TrimSpace(apiResp.Choices[0].Message.Content),
		BackendUsed: c.desc.ID,
		TokensUsed: core.TokenUsage{
			Input:  apiResp.Usage.PromptTokens,
			Output: apiResp.Usage.CompletionTokens,
		},
		ProcessingTime: time.Since(start),
		Metadata: map[string]string{
			"provider": c.desc.Provider,
			"model":    model,
		},
	}, nil
}
