package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
	"github.com/joho/godotenv"
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg := &Config{
		Environment:    environment,
		Port:           port,
		RedisURL:       os.Getenv("REDIS_URL"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		GitHubToken:    os.Getenv("GITHUB_MODELS_TOKEN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: envList("CORS_ALLOWED_ORIGINS", nil),
		Limits:         loadLimits(),
	}

	backends, err := loadBackends(cfg)
	if err != nil {
		return nil, err
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no backends configured: set RELAY_BACKENDS or provide ANTHROPIC_API_KEY / GITHUB_MODELS_TOKEN")
	}

	cfg.Backends = backends

	return cfg, nil
}

// reads limit overrides, falling back to defaults for anything unset
func loadLimits() Limits {
	limits := DefaultLimits()

	limits.FailureThreshold = envInt("RELAY_FAILURE_THRESHOLD", limits.FailureThreshold)
	limits.RecoveryTimeout = envSeconds("RELAY_RECOVERY_TIMEOUT_SECONDS", limits.RecoveryTimeout)
	limits.HalfOpenMaxCalls = envInt("RELAY_HALF_OPEN_MAX_CALLS", limits.HalfOpenMaxCalls)
	limits.RequestsPerWindow = envInt("RELAY_REQUESTS_PER_WINDOW", limits.RequestsPerWindow)
	limits.Window = envSeconds("RELAY_WINDOW_SECONDS", limits.Window)
	limits.CacheTTL = envSeconds("RELAY_CACHE_TTL_SECONDS", limits.CacheTTL)
	limits.MaxPromptLength = envInt("RELAY_MAX_PROMPT_LENGTH", limits.MaxPromptLength)
	limits.BackendTimeout = envSeconds("RELAY_BACKEND_TIMEOUT_SECONDS", limits.BackendTimeout)
	limits.BatchConcurrency = envInt("RELAY_BATCH_CONCURRENCY", limits.BatchConcurrency)
	limits.MetadataAllowList = envList("RELAY_CACHE_METADATA_KEYS", limits.MetadataAllowList)

	return limits
}

// builds the backend registry descriptors. RELAY_BACKENDS (JSON array)
// takes precedence; otherwise a default pair is derived from whichever
// provider credentials are present.
func loadBackends(cfg *Config) ([]core.BackendDescriptor, error) {
	if raw := os.Getenv("RELAY_BACKENDS"); raw != "" {
		var backends []core.BackendDescriptor
		if err := json.Unmarshal([]byte(raw), &backends); err != nil {
			return nil, fmt.Errorf("failed to parse RELAY_BACKENDS: %w", err)
		}

		return backends, nil
	}

	return DefaultBackends(cfg), nil
}

// DefaultBackends derives the stock registry from available credentials:
// an Anthropic backend for generation-heavy categories and a GitHub Models
// backend as the lower-priority generalist.
func DefaultBackends(cfg *Config) []core.BackendDescriptor {
	var backends []core.BackendDescriptor

	if cfg.AnthropicKey != "" {
		backends = append(backends, core.BackendDescriptor{
			ID:       "claude-sonnet",
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
			TaskCategories: []core.TaskCategory{
				core.TaskCodeGeneration,
				core.TaskRefactoring,
				core.TaskExplanation,
				core.TaskDocumentation,
				core.TaskTesting,
				core.TaskAnalysis,
				core.TaskGeneral,
			},
			Priority:  100,
			MaxTokens: 8192,
		})
	}

	if cfg.GitHubToken != "" {
		backends = append(backends, core.BackendDescriptor{
			ID:       "gh-gpt4o",
			Provider: "github_models",
			Model:    "gpt-4o",
			TaskCategories: []core.TaskCategory{
				core.TaskCodeGeneration,
				core.TaskCodeCompletion,
				core.TaskDocumentation,
				core.TaskGeneral,
			},
			Priority:  50,
			MaxTokens: 4096,
		})
	}

	return backends
}

// parses an integer env var, keeping the fallback on absence or garbage
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}

	return n
}

// parses a whole-seconds env var into a duration
func envSeconds(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}

	return time.Duration(n) * time.Second
}

// parses a comma-separated env var into a trimmed list
func envList(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	if len(out) == 0 {
		return fallback
	}

	return out
}
