package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/modelrelay/relay/internal/backend"
	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
	"codeberg.org/modelrelay/relay/internal/guard"
)

// stubClient is a scriptable backend client that records its calls.
type stubClient struct {
	id    string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

var _ backend.Client = (*stubClient)(nil)

func (s *stubClient) ID() string {
	return s.id
}

func (s *stubClient) Send(ctx context.Context, _ core.Request) (*core.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, errors.DeadlineExceeded(ctx.Err())
		}
	}

	if s.err != nil {
		return nil, s.err
	}

	return &core.Response{
		Content:     "from " + s.id,
		BackendUsed: s.id,
		TokensUsed:  core.TokenUsage{Input: 10, Output: 5},
	}, nil
}

func (s *stubClient) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type fixture struct {
	orch     *Orchestrator
	guard    *guard.Guard
	cache    *cache.Tiered
	provider *config.Provider
}

// builds an orchestrator over three code-generation backends alpha, beta,
// gamma in descending priority, served by the given stub clients.
func newFixture(t *testing.T, clients ...*stubClient) *fixture {
	t.Helper()

	descriptors := []core.BackendDescriptor{
		{ID: "alpha", Provider: "anthropic", Model: "m-a", Priority: 300, TaskCategories: []core.TaskCategory{core.TaskCodeGeneration, core.TaskGeneral}},
		{ID: "beta", Provider: "openai", Model: "m-b", Priority: 200, TaskCategories: []core.TaskCategory{core.TaskCodeGeneration}},
		{ID: "gamma", Provider: "github_models", Model: "m-c", Priority: 100, TaskCategories: []core.TaskCategory{core.TaskCodeGeneration}},
	}

	registry, err := core.NewRegistry(descriptors)
	require.NoError(t, err)

	limits := config.DefaultLimits()
	limits.CacheTTL = time.Hour

	provider := config.NewProvider(registry, limits)

	byID := make(map[string]backend.Client, len(clients))
	for _, c := range clients {
		byID[c.id] = c
	}

	g := guard.New(func() config.Limits { return provider.Snapshot().Limits }, nil)
	tiered := cache.NewTiered([]cache.Store{cache.NewMemoryStore()}, cache.Options{})

	t.Cleanup(tiered.Close)

	return &fixture{
		orch:     New(provider, tiered, g, byID, nil),
		guard:    g,
		cache:    tiered,
		provider: provider,
	}
}

func codeRequest(prompt string) core.Request {
	return core.Request{
		Prompt:       prompt,
		TaskCategory: core.TaskCodeGeneration,
		Temperature:  0.2,
	}
}

func TestProcessFallbackTraversal(t *testing.T) {
	alpha := &stubClient{id: "alpha", err: errors.Transient("alpha", "boom", nil)}
	beta := &stubClient{id: "beta", err: errors.Transient("beta", "boom", nil)}
	gamma := &stubClient{id: "gamma"}

	f := newFixture(t, alpha, beta, gamma)

	resp, err := f.orch.Process(context.Background(), codeRequest("write a parser"))
	require.NoError(t, err)

	assert.Equal(t, "gamma", resp.BackendUsed)
	assert.False(t, resp.Cached)

	assert.Equal(t, 1, alpha.sent())
	assert.Equal(t, 1, beta.sent())
	assert.Equal(t, 1, gamma.sent())

	assert.Equal(t, 1, f.guard.State("alpha").ConsecutiveFailures)
	assert.Equal(t, 1, f.guard.State("beta").ConsecutiveFailures)
	assert.Equal(t, 0, f.guard.State("gamma").ConsecutiveFailures)
}

func TestProcessFatalShortCircuits(t *testing.T) {
	alpha := &stubClient{id: "alpha", err: errors.Fatal("alpha", "bad credentials", nil)}
	beta := &stubClient{id: "beta"}
	gamma := &stubClient{id: "gamma"}

	f := newFixture(t, alpha, beta, gamma)

	_, err := f.orch.Process(context.Background(), codeRequest("write a parser"))
	require.Error(t, err)

	assert.True(t, errors.IsKind(err, errors.KindBackendFatal))
	assert.Equal(t, 1, alpha.sent())
	assert.Zero(t, beta.sent())
	assert.Zero(t, gamma.sent())

	// a credential problem is not a health signal
	assert.Equal(t, 0, f.guard.State("alpha").ConsecutiveFailures)
}

func TestProcessCacheHitSkipsBackends(t *testing.T) {
	alpha := &stubClient{id: "alpha"}

	f := newFixture(t, alpha)

	req := codeRequest("write a parser")

	first, err := f.orch.Process(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Cached)

	// the cache write after a computed response is fire-and-forget
	fingerprint := cache.NewFingerprinter(f.provider.Snapshot().Limits.MetadataAllowList).Fingerprint(req)
	require.Eventually(t, func() bool {
		_, ok := f.cache.Lookup(context.Background(), fingerprint, req.Prompt)
		return ok
	}, time.Second, 10*time.Millisecond)

	second, err := f.orch.Process(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, alpha.sent())
}

func TestProcessDoesNotCacheFailures(t *testing.T) {
	alpha := &stubClient{id: "alpha", err: errors.Transient("alpha", "boom", nil)}

	f := newFixture(t, alpha)

	req := codeRequest("write a parser")

	_, err := f.orch.Process(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAllBackendsFailed))
	assert.Zero(t, f.cache.Stats().Stores)

	// backend recovers; the next call must reach it rather than a cache entry
	alpha.err = nil

	resp, err := f.orch.Process(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Cached)
	assert.Equal(t, 2, alpha.sent())
}

func TestProcessAggregatesFailures(t *testing.T) {
	alpha := &stubClient{id: "alpha", err: errors.Transient("alpha", "boom", nil)}
	beta := &stubClient{id: "beta", err: errors.RateLimited("beta", 3*time.Second)}
	gamma := &stubClient{id: "gamma", err: errors.Transient("gamma", "boom", nil)}

	f := newFixture(t, alpha, beta, gamma)

	_, err := f.orch.Process(context.Background(), codeRequest("write a parser"))
	require.Error(t, err)
	require.True(t, errors.IsKind(err, errors.KindAllBackendsFailed))

	failures := errors.FailuresOf(err)
	require.Len(t, failures, 3)

	assert.Equal(t, "alpha", failures[0].Backend)
	assert.Equal(t, errors.KindBackendTransient, failures[0].Kind)
	assert.Equal(t, "beta", failures[1].Backend)
	assert.Equal(t, errors.KindRateLimited, failures[1].Kind)
	assert.Equal(t, "gamma", failures[2].Backend)
}

func TestProcessSkipsOpenCircuits(t *testing.T) {
	alpha := &stubClient{id: "alpha"}
	beta := &stubClient{id: "beta"}

	f := newFixture(t, alpha, beta)

	threshold := f.provider.Snapshot().Limits.FailureThreshold
	for i := 0; i < threshold; i++ {
		f.guard.ReportFailure("alpha")
	}

	resp, err := f.orch.Process(context.Background(), codeRequest("write a parser"))
	require.NoError(t, err)

	assert.Equal(t, "beta", resp.BackendUsed)
	assert.Zero(t, alpha.sent())
}

func TestProcessPreferredBackendWinsOrdering(t *testing.T) {
	alpha := &stubClient{id: "alpha"}
	gamma := &stubClient{id: "gamma"}

	f := newFixture(t, alpha, gamma)

	req := codeRequest("write a parser")
	req.PreferredBackend = "gamma"

	resp, err := f.orch.Process(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "gamma", resp.BackendUsed)
	assert.Zero(t, alpha.sent())
}

func TestProcessSkipsBackendsWithoutClients(t *testing.T) {
	// alpha and beta are registered but only gamma has a wired client
	gamma := &stubClient{id: "gamma"}

	f := newFixture(t, gamma)

	resp, err := f.orch.Process(context.Background(), codeRequest("write a parser"))
	require.NoError(t, err)

	assert.Equal(t, "gamma", resp.BackendUsed)
	assert.Zero(t, f.guard.State("alpha").ConsecutiveFailures)
}

func TestProcessValidationBoundary(t *testing.T) {
	alpha := &stubClient{id: "alpha"}

	f := newFixture(t, alpha)

	tests := []struct {
		name string
		req  core.Request
	}{
		{name: "empty prompt", req: core.Request{TaskCategory: core.TaskCodeGeneration}},
		{name: "temperature out of range", req: core.Request{Prompt: "hi", TaskCategory: core.TaskCodeGeneration, Temperature: 2.5}},
		{name: "unknown category", req: core.Request{Prompt: "hi", TaskCategory: "haiku"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.Process(context.Background(), tt.req)

			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))
		})
	}

	assert.Zero(t, alpha.sent())

	stats := f.cache.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestProcessDeadlineStopsTraversal(t *testing.T) {
	alpha := &stubClient{id: "alpha", delay: 500 * time.Millisecond}
	beta := &stubClient{id: "beta"}

	f := newFixture(t, alpha, beta)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.orch.Process(ctx, codeRequest("write a parser"))
	require.Error(t, err)

	assert.True(t, errors.IsKind(err, errors.KindDeadlineExceeded))
	assert.Zero(t, beta.sent())

	// the caller deadline is not held against the backend
	assert.Equal(t, 0, f.guard.State("alpha").ConsecutiveFailures)
}

func TestProcessExpiredContextFailsFast(t *testing.T) {
	alpha := &stubClient{id: "alpha"}

	f := newFixture(t, alpha)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Process(ctx, codeRequest("write a parser"))
	require.Error(t, err)

	assert.True(t, errors.IsKind(err, errors.KindDeadlineExceeded))
	assert.Zero(t, alpha.sent())
}

func TestProcessNoCandidates(t *testing.T) {
	registry, err := core.NewRegistry(nil)
	require.NoError(t, err)

	provider := config.NewProvider(registry, config.DefaultLimits())
	g := guard.New(func() config.Limits { return provider.Snapshot().Limits }, nil)
	tiered := cache.NewTiered([]cache.Store{cache.NewMemoryStore()}, cache.Options{})
	t.Cleanup(tiered.Close)

	orch := New(provider, tiered, g, nil, nil)

	_, err = orch.Process(context.Background(), codeRequest("write a parser"))
	require.Error(t, err)

	assert.True(t, errors.IsKind(err, errors.KindAllBackendsFailed))
	assert.Empty(t, errors.FailuresOf(err))
}

func TestProcessBatchPositionalResults(t *testing.T) {
	alpha := &stubClient{id: "alpha"}

	f := newFixture(t, alpha)

	requests := []core.Request{
		{TaskCategory: core.TaskCodeGeneration}, // invalid: empty prompt
		codeRequest("write a parser"),
		codeRequest("write a lexer"),
	}

	results := f.orch.ProcessBatch(context.Background(), requests)
	require.Len(t, results, 3)

	require.Error(t, results[0].Err)
	assert.True(t, errors.IsKind(results[0].Err, errors.KindValidation))
	assert.Nil(t, results[0].Response)

	require.NoError(t, results[1].Err)
	assert.Equal(t, "from alpha", results[1].Response.Content)

	require.NoError(t, results[2].Err)
	assert.Equal(t, "from alpha", results[2].Response.Content)
}

func TestProcessBatchEmpty(t *testing.T) {
	f := newFixture(t, &stubClient{id: "alpha"})

	assert.Empty(t, f.orch.ProcessBatch(context.Background(), nil))
}

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (s *recordingSink) Emit(_, name string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.names = append(s.names, name)
}

func (s *recordingSink) seen(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.names {
		if n == name {
			return true
		}
	}

	return false
}

func TestProcessEmitsLifecycleEvents(t *testing.T) {
	alpha := &stubClient{id: "alpha", err: errors.Transient("alpha", "boom", nil)}
	beta := &stubClient{id: "beta"}

	f := newFixture(t, alpha, beta)

	sink := &recordingSink{}
	orch := New(f.provider, f.cache, f.guard, map[string]backend.Client{"alpha": alpha, "beta": beta}, sink)

	_, err := orch.Process(context.Background(), codeRequest("write a parser"))
	require.NoError(t, err)

	for _, name := range []string{"cache.miss", "router.candidates", "backend.failure", "request.completed"} {
		assert.True(t, sink.seen(name), "missing event %q", name)
	}
}

func TestProcessBatchManyRequests(t *testing.T) {
	alpha := &stubClient{id: "alpha"}

	f := newFixture(t, alpha)

	requests := make([]core.Request, 20)
	for i := range requests {
		// distinct prompts so every request reaches the backend
		requests[i] = codeRequest("prompt variant " + string(rune('a'+i)))
	}

	results := f.orch.ProcessBatch(context.Background(), requests)
	require.Len(t, results, 20)

	for i, r := range results {
		require.NoError(t, r.Err, "request %d", i)
		assert.Equal(t, "alpha", r.Response.BackendUsed)
	}
}
