package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// manages HTTP requests to the relay REST API
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// creates a new relay REST client. an empty endpoint falls back to
// RELAY_API_ENDPOINT, then to the local default.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("RELAY_API_ENDPOINT")
	}

	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: dispatchTimeout,
		},
	}
}

// sends a dispatch request to the relay REST API
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResponse, error) {
	payloadBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/requests", c.endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			if errResp.RetryAfterSeconds > 0 {
				return nil, fmt.Errorf("%s: %s (retry in %ds)", errResp.Error, errResp.Message, errResp.RetryAfterSeconds)
			}

			return nil, fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
		}

		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result DispatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

// fetches the backend registry with live circuit states
func (c *Client) Backends(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/api/v1/backends", c.endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result backendsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return formatBackends(result), nil
}

// returns a tea.Cmd that dispatches the prompt
func (c *Client) DispatchCmd(req DispatchRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		resp, err := c.Dispatch(ctx, req)
		if err != nil {
			return RequestErrorMsg{prompt: req.Prompt, err: err}
		}

		return ResponseMsg{prompt: req.Prompt, resp: resp}
	}
}

// returns a tea.Cmd that fetches the backend listing
func (c *Client) BackendsCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		listing, err := c.Backends(ctx)
		if err != nil {
			return RequestErrorMsg{err: err}
		}

		return BackendsMsg{listing: listing}
	}
}

// REST API request/response types

type DispatchRequest struct {
	Prompt           string            `json:"prompt"`
	TaskCategory     string            `json:"task_category"`
	PreferredBackend string            `json:"preferred_backend,omitempty"`
	SystemPrompt     string            `json:"system_prompt,omitempty"`
	Temperature      float64           `json:"temperature,omitempty"`
	MaxOutputTokens  int               `json:"max_output_tokens,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	TimeoutSeconds   int               `json:"timeout_seconds,omitempty"`
}

type DispatchResponse struct {
	Content               string            `json:"content"`
	BackendUsed           string            `json:"backend_used"`
	TokensUsed            tokenUsage        `json:"tokens_used"`
	ProcessingTimeSeconds float64           `json:"processing_time_seconds"`
	Cached                bool              `json:"cached"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

type tokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type errorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

type backendsResponse struct {
	Backends []backendStatus `json:"backends"`
}

type backendStatus struct {
	ID             string   `json:"id"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	TaskCategories []string `json:"task_categories"`
	Priority       int      `json:"priority"`
	Circuit        struct {
		State               string `json:"state"`
		ConsecutiveFailures int    `json:"consecutive_failures"`
	} `json:"circuit"`
}

// renders the backend listing as a plain table
func formatBackends(resp backendsResponse) string {
	if len(resp.Backends) == 0 {
		return "no backends registered"
	}

	var b strings.Builder

	for _, backend := range resp.Backends {
		fmt.Fprintf(&b, "%-16s %-14s %-22s priority %-4d circuit %s",
			backend.ID, backend.Provider, backend.Model, backend.Priority, backend.Circuit.State)

		if backend.Circuit.ConsecutiveFailures > 0 {
			fmt.Fprintf(&b, " (%d consecutive failures)", backend.Circuit.ConsecutiveFailures)
		}

		b.WriteString("\n")
		fmt.Fprintf(&b, "%-16s categories: %s\n", "", strings.Join(backend.TaskCategories, ", "))
	}

	return b.String()
}
