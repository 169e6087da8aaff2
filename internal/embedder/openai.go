// Package embedder generates text embeddings for the semantic cache tier.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"codeberg.org/modelrelay/relay/internal/cache"
)

const (
	openaiEmbeddingsURL = "https://api.openai.com/v1/embeddings"
	defaultModel        = "text-embedding-3-small"

	// Dimension is the vector width of the default embedding model; the
	// semantic cache table is declared with the same width.
	Dimension = 1536
)

// shared HTTP client for embedding calls
var embeddingHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

type embeddingRequest struct {
	Input    []string `json:"input"`
	Model    string   `json:"model"`
	Encoding string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type Config struct {
	APIKey string
	Model  string // e.g. "text-embedding-3-small"

	// Endpoint overrides the OpenAI embeddings URL, mainly for tests.
	Endpoint string

	// HTTPClient overrides the shared pooled client.
	HTTPClient *http.Client
}

// OpenAI generates embeddings through the OpenAI embeddings API.
type OpenAI struct {
	config     Config
	endpoint   string
	httpClient *http.Client
}

var _ cache.Embedder = (*OpenAI)(nil)

func NewOpenAI(config Config) *OpenAI {
	if config.Model == "" {
		config.Model = defaultModel
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = openaiEmbeddingsURL
	}

	client := config.HTTPClient
	if client == nil {
		client = embeddingHTTPClient
	}

	return &OpenAI{
		config:     config,
		endpoint:   endpoint,
		httpClient: client,
	}
}

func (e *OpenAI) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return embeddings[0], nil
}

func (e *OpenAI) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	reqBody := embeddingRequest{
		Input:    texts,
		Model:    e.config.Model,
		Encoding: "float",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("embeddings request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	embeddings := make([][]float32, len(embResp.Data))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}

		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}
