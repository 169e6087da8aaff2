package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
)

func anthropicDesc(endpoint string) core.BackendDescriptor {
	return core.BackendDescriptor{
		ID:        "claude-sonnet",
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-5",
		MaxTokens: 8192,
		Endpoint:  endpoint,
	}
}

func chatDesc(endpoint string) core.BackendDescriptor {
	return core.BackendDescriptor{
		ID:        "gh-gpt4o",
		Provider:  "github_models",
		Model:     "gpt-4o",
		MaxTokens: 4096,
		Endpoint:  endpoint,
	}
}

func TestAnthropicSendSuccess(t *testing.T) {
	var gotBody anthropicRequest
	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "  generated code\n"}],
			"usage": {"input_tokens": 42, "output_tokens": 17}
		}`))
	}))
	defer server.Close()

	client := NewAnthropic(anthropicDesc(server.URL), "test-key", Options{})

	resp, err := client.Send(context.Background(), core.Request{
		Prompt:          "write a binary search",
		TaskCategory:    core.TaskCodeGeneration,
		SystemPrompt:    "you are a code assistant",
		Temperature:     0.2,
		MaxOutputTokens: 256,
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if gotHeader.Get("x-api-key") != "test-key" {
		t.Errorf("x-api-key = %q, want test-key", gotHeader.Get("x-api-key"))
	}

	if gotHeader.Get("anthropic-version") != anthropicVersion {
		t.Errorf("anthropic-version = %q, want %q", gotHeader.Get("anthropic-version"), anthropicVersion)
	}

	if gotBody.Model != "claude-sonnet-4-5" {
		t.Errorf("request model = %q", gotBody.Model)
	}

	if gotBody.MaxTokens != 256 {
		t.Errorf("request max_tokens = %d, want 256", gotBody.MaxTokens)
	}

	if gotBody.System != "you are a code assistant" {
		t.Errorf("request system = %q", gotBody.System)
	}

	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v, want single user message", gotBody.Messages)
	}

	if resp.Content != "generated code" {
		t.Errorf("content = %q, want trimmed text", resp.Content)
	}

	if resp.BackendUsed != "claude-sonnet" {
		t.Errorf("backend used = %q", resp.BackendUsed)
	}

	if resp.TokensUsed.Input != 42 || resp.TokensUsed.Output != 17 {
		t.Errorf("tokens used = %+v", resp.TokensUsed)
	}

	if resp.Cached {
		t.Error("fresh response marked cached")
	}

	if resp.Metadata["model"] != "claude-sonnet-4-5" || resp.Metadata["provider"] != "anthropic" {
		t.Errorf("metadata = %v", resp.Metadata)
	}
}

func TestAnthropicDefaultsMaxTokensFromDescriptor(t *testing.T) {
	var gotBody anthropicRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "ok"}], "usage": {}}`))
	}))
	defer server.Close()

	client := NewAnthropic(anthropicDesc(server.URL), "test-key", Options{})

	if _, err := client.Send(context.Background(), core.Request{Prompt: "hi", TaskCategory: core.TaskGeneral}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if gotBody.MaxTokens != 8192 {
		t.Errorf("request max_tokens = %d, want descriptor default 8192", gotBody.MaxTokens)
	}
}

func TestOpenAIChatSendSuccess(t *testing.T) {
	var gotBody chatRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "def search(): ..."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 12}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIChat(chatDesc(server.URL), "gh-token", Options{})

	resp, err := client.Send(context.Background(), core.Request{
		Prompt:       "write a search function",
		TaskCategory: core.TaskCodeGeneration,
		SystemPrompt: "respond with python",
		Temperature:  0.5,
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if gotAuth != "Bearer gh-token" {
		t.Errorf("authorization = %q", gotAuth)
	}

	if len(gotBody.Messages) != 2 {
		t.Fatalf("messages = %+v, want system then user", gotBody.Messages)
	}

	if gotBody.Messages[0].Role != "system" || gotBody.Messages[1].Role != "user" {
		t.Errorf("message roles = %q, %q", gotBody.Messages[0].Role, gotBody.Messages[1].Role)
	}

	if resp.Content != "def search(): ..." {
		t.Errorf("content = %q", resp.Content)
	}

	if resp.TokensUsed.Input != 30 || resp.TokensUsed.Output != 12 {
		t.Errorf("tokens used = %+v", resp.TokensUsed)
	}

	if resp.BackendUsed != "gh-gpt4o" {
		t.Errorf("backend used = %q", resp.BackendUsed)
	}
}

func TestStatusTranslation(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantKind   errors.Kind
	}{
		{name: "unauthorized is fatal", status: http.StatusUnauthorized, wantKind: errors.KindBackendFatal},
		{name: "forbidden is fatal", status: http.StatusForbidden, wantKind: errors.KindBackendFatal},
		{name: "throttled is rate limited", status: http.StatusTooManyRequests, retryAfter: "7", wantKind: errors.KindRateLimited},
		{name: "server error is transient", status: http.StatusInternalServerError, wantKind: errors.KindBackendTransient},
		{name: "bad gateway is transient", status: http.StatusBadGateway, wantKind: errors.KindBackendTransient},
		{name: "bad request is transient", status: http.StatusBadRequest, wantKind: errors.KindBackendTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": "nope"}`))
			}))
			defer server.Close()

			client := NewAnthropic(anthropicDesc(server.URL), "test-key", Options{})

			_, err := client.Send(context.Background(), core.Request{Prompt: "hi", TaskCategory: core.TaskGeneral})
			if !errors.IsKind(err, tt.wantKind) {
				t.Fatalf("Send() error = %v, want kind %v", err, tt.wantKind)
			}

			if tt.retryAfter != "" {
				if got := errors.RetryAfterOf(err); got != 7*time.Second {
					t.Errorf("retry-after = %v, want 7s", got)
				}
			}
		})
	}
}

func TestMalformedResponseIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := NewAnthropic(anthropicDesc(server.URL), "test-key", Options{})

	_, err := client.Send(context.Background(), core.Request{Prompt: "hi", TaskCategory: core.TaskGeneral})
	if !errors.IsKind(err, errors.KindBackendTransient) {
		t.Errorf("Send() error = %v, want KindBackendTransient", err)
	}
}

func TestEmptyContentIsTransient(t *testing.T) {
	anthropicSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": [], "usage": {}}`))
	}))
	defer anthropicSrv.Close()

	chatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [], "usage": {}}`))
	}))
	defer chatSrv.Close()

	req := core.Request{Prompt: "hi", TaskCategory: core.TaskGeneral}

	_, err := NewAnthropic(anthropicDesc(anthropicSrv.URL), "k", Options{}).Send(context.Background(), req)
	if !errors.IsKind(err, errors.KindBackendTransient) {
		t.Errorf("anthropic empty content error = %v, want KindBackendTransient", err)
	}

	_, err = NewOpenAIChat(chatDesc(chatSrv.URL), "k", Options{}).Send(context.Background(), req)
	if !errors.IsKind(err, errors.KindBackendTransient) {
		t.Errorf("chat empty choices error = %v, want KindBackendTransient", err)
	}
}

func slowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "late"}], "usage": {}}`))
		case <-r.Context().Done():
		}
	}))

	t.Cleanup(server.Close)

	return server
}

func TestPerCallTimeoutIsTransient(t *testing.T) {
	server := slowServer(t, 500*time.Millisecond)

	client := NewAnthropic(anthropicDesc(server.URL), "k", Options{CallTimeout: 20 * time.Millisecond})

	_, err := client.Send(context.Background(), core.Request{Prompt: "hi", TaskCategory: core.TaskGeneral})
	if !errors.IsKind(err, errors.KindBackendTransient) {
		t.Errorf("Send() error = %v, want KindBackendTransient for adapter timeout", err)
	}
}

func TestCallerDeadlineMapsToDeadlineExceeded(t *testing.T) {
	server := slowServer(t, 500*time.Millisecond)

	client := NewAnthropic(anthropicDesc(server.URL), "k", Options{CallTimeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, core.Request{Prompt: "hi", TaskCategory: core.TaskGeneral})
	if !errors.IsKind(err, errors.KindDeadlineExceeded) {
		t.Errorf("Send() error = %v, want KindDeadlineExceeded for caller deadline", err)
	}
}

func TestDefaultEndpoints(t *testing.T) {
	gh := NewOpenAIChat(core.BackendDescriptor{ID: "a", Provider: "github_models", Model: "gpt-4o"}, "k", Options{})
	if gh.endpoint != githubModelsChatURL {
		t.Errorf("github_models endpoint = %q", gh.endpoint)
	}

	oa := NewOpenAIChat(core.BackendDescriptor{ID: "b", Provider: "openai", Model: "gpt-4o"}, "k", Options{})
	if oa.endpoint != openaiChatURL {
		t.Errorf("openai endpoint = %q", oa.endpoint)
	}

	an := NewAnthropic(core.BackendDescriptor{ID: "c", Provider: "anthropic", Model: "m"}, "k", Options{})
	if an.endpoint != anthropicMessagesURL {
		t.Errorf("anthropic endpoint = %q", an.endpoint)
	}
}

func TestNewSelectsAdapterByProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{provider: "anthropic"},
		{provider: "openai"},
		{provider: "github_models"},
		{provider: "mystery", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			desc := core.BackendDescriptor{ID: "x", Provider: tt.provider, Model: "m"}

			client, err := New(desc, "cred", Options{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("New() succeeded for unknown provider")
				}

				return
			}

			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			if client.ID() != "x" {
				t.Errorf("client id = %q", client.ID())
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "seconds", value: "30", want: 30 * time.Second},
		{name: "missing", value: "", want: 0},
		{name: "garbage", value: "soonish", want: 0},
		{name: "negative", value: "-5", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set("Retry-After", tt.value)
			}

			if got := parseRetryAfter(header); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))

	got := parseRetryAfter(header)
	if got <= 80*time.Second || got > 90*time.Second {
		t.Errorf("parseRetryAfter(date) = %v, want roughly 90s", got)
	}
}
