// Package backend adapts normalized requests onto vendor model APIs and
// translates each vendor's failures into the shared error taxonomy before
// they reach the orchestrator.
package backend

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
)

const (
	defaultCallTimeout     = 60 * time.Second
	defaultMaxOutputTokens = 4096

	// upstream error bodies are quoted in messages up to this many bytes
	maxErrorBodyBytes = 512
)

// shared HTTP client for all backend adapters. per-call timeouts come from
// the request context, so no client-level timeout is set here.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// Client sends one normalized request to a single model backend.
type Client interface {
	// ID returns the backend identifier the adapter serves.
	ID() string

	// Send dispatches the request and normalizes the vendor reply. Every
	// error it returns carries a taxonomy kind; raw transport errors never
	// reach the caller.
	Send(ctx context.Context, req core.Request) (*core.Response, error)
}

// Options tune an adapter beyond what its backend descriptor carries.
type Options struct {
	// CallTimeout bounds each send independently of the caller's deadline.
	// Zero means the package default.
	CallTimeout time.Duration

	// HTTPClient overrides the shared pooled client.
	HTTPClient *http.Client
}

func (o Options) callTimeout() time.Duration {
	if o.CallTimeout > 0 {
		return o.CallTimeout
	}

	return defaultCallTimeout
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}

	return sharedHTTPClient
}

// New builds the client adapter for a backend descriptor.
func New(desc core.BackendDescriptor, credential string, opts Options) (Client, error) {
	switch desc.Provider {
	case "anthropic":
		return NewAnthropic(desc, credential, opts), nil
	case "openai", "github_models":
		return NewOpenAIChat(desc, credential, opts), nil
	default:
		return nil, fmt.Errorf("unsupported backend provider %q", desc.Provider)
	}
}

// maps a non-200 vendor status onto the taxonomy. auth rejections are
// fatal, vendor throttling propagates as rate-limited with any reset hint,
// everything else is transient and eligible for fallback.
func statusError(backendID string, status int, body []byte, header http.Header) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Fatal(backendID, fmt.Sprintf("authentication rejected with status %d", status), nil)
	case status == http.StatusTooManyRequests:
		return errors.RateLimited(backendID, parseRetryAfter(header))
	default:
		return errors.Transient(backendID, fmt.Sprintf("upstream returned status %d: %s", status, snippet(body)), nil)
	}
}

// classifies a transport-level failure. a dead caller context means the
// caller's deadline won, not the backend; the per-call timeout firing while
// the caller is still live counts against the backend instead.
func transportError(caller context.Context, backendID string, err error) error {
	if caller.Err() != nil {
		return errors.DeadlineExceeded(err)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Transient(backendID, "request timed out", err)
	}

	return errors.Transient(backendID, "request failed", err)
}

// reads a Retry-After header given as delta-seconds or an HTTP date.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}

		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}

	return 0
}

func snippet(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}

	return string(body)
}
