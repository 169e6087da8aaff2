package config

import (
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
)

// Config carries process-level settings resolved from the environment.
type Config struct {
	Environment string
	Port        string

	// optional cache tiers; empty disables the tier
	RedisURL    string
	DatabaseURL string

	// provider credentials; a backend without a resolvable credential is
	// skipped at wiring time
	AnthropicKey string
	GitHubToken  string

	// OpenAIKey enables the semantic cache tier (embeddings)
	OpenAIKey string

	// JWTSecret protects admin routes; empty leaves them unmounted
	JWTSecret string

	AllowedOrigins []string

	Limits   Limits
	Backends []core.BackendDescriptor
}

// Limits are the tunable dispatch knobs. The orchestrator reads them from
// a snapshot on every call, so updated values apply without restart.
type Limits struct {
	// circuit breaker
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int

	// per-backend rate budget
	RequestsPerWindow int
	Window            time.Duration

	// caching
	CacheTTL          time.Duration
	CacheGetTimeout   time.Duration
	CacheSetTimeout   time.Duration
	MetadataAllowList []string

	// dispatch
	MaxPromptLength  int
	BackendTimeout   time.Duration
	BatchConcurrency int
}

// DefaultLimits returns the stock limits applied when the environment
// provides no overrides.
func DefaultLimits() Limits {
	return Limits{
		FailureThreshold:  5,
		RecoveryTimeout:   60 * time.Second,
		HalfOpenMaxCalls:  3,
		RequestsPerWindow: 60,
		Window:            time.Minute,
		CacheTTL:          3600 * time.Second,
		CacheGetTimeout:   50 * time.Millisecond,
		CacheSetTimeout:   250 * time.Millisecond,
		MetadataAllowList: []string{"language", "project"},
		MaxPromptLength:   core.DefaultMaxPromptLength,
		BackendTimeout:    120 * time.Second,
		BatchConcurrency:  8,
	}
}

type Flags struct {
	Endpoint string
	Category string
}
