package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/modelrelay/relay/internal/auth"
	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/guard"
)

type fixture struct {
	router   *gin.Engine
	cache    *cache.Tiered
	guard    *guard.Guard
	provider *config.Provider
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-for-admin-routes")
	gin.SetMode(gin.TestMode)

	registry, err := core.NewRegistry([]core.BackendDescriptor{
		{ID: "claude-sonnet", Provider: "anthropic", Model: "claude-sonnet-4-5", Priority: 100, TaskCategories: []core.TaskCategory{core.TaskGeneral}},
	})
	require.NoError(t, err)

	limits := config.DefaultLimits()
	provider := config.NewProvider(registry, limits)

	tiered := cache.NewTiered([]cache.Store{cache.NewMemoryStore()}, cache.Options{})
	t.Cleanup(tiered.Close)

	g := guard.New(func() config.Limits { return provider.Snapshot().Limits }, nil)

	token, err := auth.GenerateJWT("admin-user", true)
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), tiered, g, provider)

	return &fixture{
		router:   router,
		cache:    tiered,
		guard:    g,
		provider: provider,
		token:    token,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)

	return recorder
}

func (f *fixture) seedEntry(t *testing.T, fingerprint, backendID string, category core.TaskCategory) {
	t.Helper()

	f.cache.Store(context.Background(), fingerprint, "prompt "+fingerprint, category, &core.Response{
		Content:     "cached content",
		BackendUsed: backendID,
	}, time.Hour)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/circuits/claude-sonnet/reset", nil)
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	userToken, err := auth.GenerateJWT("regular-user", false)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/circuits/claude-sonnet/reset", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	recorder = httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestInvalidateCacheByBackend(t *testing.T) {
	f := newFixture(t)

	f.seedEntry(t, "fp-1", "claude-sonnet", core.TaskGeneral)
	f.seedEntry(t, "fp-2", "claude-sonnet", core.TaskCodeGeneration)
	f.seedEntry(t, "fp-3", "gh-gpt4o", core.TaskGeneral)

	recorder := f.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", InvalidateRequest{BackendID: "claude-sonnet"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp InvalidateResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Invalidated)

	_, found := f.cache.Lookup(context.Background(), "fp-1", "")
	assert.False(t, found)

	_, found = f.cache.Lookup(context.Background(), "fp-3", "")
	assert.True(t, found, "entries for other backends must survive")
}

func TestInvalidateCacheByFingerprint(t *testing.T) {
	f := newFixture(t)

	f.seedEntry(t, "fp-1", "claude-sonnet", core.TaskGeneral)

	recorder := f.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", InvalidateRequest{Fingerprint: "fp-1"})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp InvalidateResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Invalidated)
}

func TestInvalidateCacheRequiresPredicate(t *testing.T) {
	f := newFixture(t)

	recorder := f.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", InvalidateRequest{})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestInvalidateCacheRejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)

	recorder := f.do(t, http.MethodPost, "/api/v1/admin/cache/invalidate", InvalidateRequest{TaskCategory: "poetry"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestResetCircuit(t *testing.T) {
	f := newFixture(t)

	threshold := f.provider.Snapshot().Limits.FailureThreshold
	for i := 0; i < threshold; i++ {
		f.guard.ReportFailure("claude-sonnet")
	}

	require.Equal(t, guard.StateOpen, f.guard.State("claude-sonnet").State)

	recorder := f.do(t, http.MethodPost, "/api/v1/admin/circuits/claude-sonnet/reset", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp ResetResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "claude-sonnet", resp.BackendID)
	assert.Equal(t, "closed", resp.State)

	assert.Equal(t, guard.StateClosed, f.guard.State("claude-sonnet").State)
}

func TestResetCircuitUnknownBackend(t *testing.T) {
	f := newFixture(t)

	recorder := f.do(t, http.MethodPost, "/api/v1/admin/circuits/nobody/reset", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestSwapRegistry(t *testing.T) {
	f := newFixture(t)

	recorder := f.do(t, http.MethodPut, "/api/v1/admin/registry", RegistryRequest{
		Backends: []core.BackendDescriptor{
			{ID: "gh-gpt4o", Provider: "github_models", Model: "gpt-4o", Priority: 50, TaskCategories: []core.TaskCategory{core.TaskGeneral}},
			{ID: "claude-haiku", Provider: "anthropic", Model: "claude-haiku-4", Priority: 10, TaskCategories: []core.TaskCategory{core.TaskGeneral}},
		},
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp RegistryResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Backends)

	snapshot := f.provider.Snapshot()
	assert.Equal(t, 2, snapshot.Registry.Len())

	_, ok := snapshot.Registry.Get("gh-gpt4o")
	assert.True(t, ok)

	_, ok = snapshot.Registry.Get("claude-sonnet")
	assert.False(t, ok, "swapped-out backend must be gone")

	assert.Equal(t, config.DefaultLimits().FailureThreshold, snapshot.Limits.FailureThreshold, "limits survive a registry swap")
}

func TestSwapRegistryRejectsInvalid(t *testing.T) {
	f := newFixture(t)

	recorder := f.do(t, http.MethodPut, "/api/v1/admin/registry", RegistryRequest{
		Backends: []core.BackendDescriptor{
			{ID: "dup", Provider: "anthropic", Model: "a"},
			{ID: "dup", Provider: "anthropic", Model: "b"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	assert.Equal(t, 1, f.provider.Snapshot().Registry.Len(), "rejected swap must not touch the registry")
}
