// Package orchestrator is the entry point for model requests. It composes
// the task router, tiered cache, circuit guard, and backend clients into a
// single dispatch pipeline with fallback traversal.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"codeberg.org/modelrelay/relay/internal/backend"
	"codeberg.org/modelrelay/relay/internal/cache"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
	"codeberg.org/modelrelay/relay/internal/events"
	"codeberg.org/modelrelay/relay/internal/guard"
	"codeberg.org/modelrelay/relay/internal/router"
)

// Orchestrator satisfies one request end to end: validate, consult the
// cache, walk the candidate list, record outcomes, and cache successes.
// It holds no per-request state; concurrent Process calls share only the
// internally synchronized cache and guard.
type Orchestrator struct {
	provider *config.Provider
	cache    *cache.Tiered
	guard    *guard.Guard
	clients  map[string]backend.Client
	sink     events.Sink
}

// BatchResult reports one positional outcome of ProcessBatch. Exactly one
// of Response and Err is set.
type BatchResult struct {
	Response *core.Response
	Err      error
}

func New(provider *config.Provider, tiered *cache.Tiered, g *guard.Guard, clients map[string]backend.Client, sink events.Sink) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}

	if clients == nil {
		clients = map[string]backend.Client{}
	}

	return &Orchestrator{
		provider: provider,
		cache:    tiered,
		guard:    g,
		clients:  clients,
		sink:     sink,
	}
}

// Process satisfies a single request. Cancellation and deadlines arrive
// through ctx; once the deadline passes no further candidates are tried.
func (o *Orchestrator) Process(ctx context.Context, req core.Request) (*core.Response, error) {
	snap := o.provider.Snapshot()
	limits := snap.Limits

	if err := req.Validate(limits.MaxPromptLength); err != nil {
		o.sink.Emit("warn", "request.rejected", map[string]any{
			"kind":     errors.KindOf(err).String(),
			"category": string(req.TaskCategory),
		})

		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.DeadlineExceeded(err)
	}

	fingerprint := cache.NewFingerprinter(limits.MetadataAllowList).Fingerprint(req)
	start := time.Now()

	resp, err := o.cache.GetOrCompute(ctx, fingerprint, req.Prompt, req.TaskCategory, limits.CacheTTL, func(ctx context.Context) (*core.Response, error) {
		o.sink.Emit("debug", "cache.miss", map[string]any{
			"fingerprint": fingerprint,
			"category":    string(req.TaskCategory),
		})

		return o.dispatch(ctx, snap, req)
	})
	if err != nil {
		o.sink.Emit("warn", "request.failed", map[string]any{
			"kind":        errors.KindOf(err).String(),
			"fingerprint": fingerprint,
			"duration_ms": time.Since(start).Milliseconds(),
		})

		return nil, err
	}

	if resp.Cached {
		o.sink.Emit("debug", "cache.hit", map[string]any{
			"fingerprint": fingerprint,
			"category":    string(req.TaskCategory),
		})
	}

	o.sink.Emit("info", "request.completed", map[string]any{
		"backend":       resp.BackendUsed,
		"cached":        resp.Cached,
		"fingerprint":   fingerprint,
		"prompt_length": len(req.Prompt),
		"duration_ms":   time.Since(start).Milliseconds(),
	})

	return resp, nil
}

// walks the candidate list, one attempt per backend. retryable failures
// move on to the next candidate; fatal failures and caller deadlines stop
// the traversal.
func (o *Orchestrator) dispatch(ctx context.Context, snap *config.Snapshot, req core.Request) (*core.Response, error) {
	candidates := router.Candidates(snap.Registry, req.TaskCategory, req.PreferredBackend, o.guard)

	o.sink.Emit("debug", "router.candidates", map[string]any{
		"category": string(req.TaskCategory),
		"backends": backendIDs(candidates),
	})

	if len(candidates) == 0 {
		return nil, errors.AllFailed(nil)
	}

	failures := make([]errors.BackendFailure, 0, len(candidates))

	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, errors.DeadlineExceeded(err)
		}

		if err := o.guard.Permit(cand.ID); err != nil {
			// a guard denial is a skip, never a failure report
			failures = append(failures, errors.FailureFrom(cand.ID, err))

			o.sink.Emit("debug", "backend.skipped", map[string]any{
				"backend": cand.ID,
				"kind":    errors.KindOf(err).String(),
			})

			continue
		}

		client, ok := o.clients[cand.ID]
		if !ok {
			// registry entry without a wired client; not a health signal
			failures = append(failures, errors.BackendFailure{
				Backend: cand.ID,
				Kind:    errors.KindBackendTransient,
				Message: "no client configured",
			})

			o.sink.Emit("warn", "backend.skipped", map[string]any{
				"backend": cand.ID,
				"kind":    "unconfigured",
			})

			continue
		}

		resp, err := client.Send(ctx, req)
		if err == nil {
			o.guard.ReportSuccess(cand.ID)
			return resp, nil
		}

		kind := errors.KindOf(err)

		o.sink.Emit("warn", "backend.failure", map[string]any{
			"backend": cand.ID,
			"kind":    kind.String(),
		})

		switch kind {
		case errors.KindDeadlineExceeded:
			// the caller's deadline won; the backend gets no failure mark
			return nil, err
		case errors.KindBackendFatal:
			// credential problem, not backend health; abort the chain
			return nil, err
		default:
			o.guard.ReportFailure(cand.ID)
			failures = append(failures, errors.FailureFrom(cand.ID, err))
		}
	}

	return nil, errors.AllFailed(failures)
}

// ProcessBatch satisfies independent requests concurrently, bounded by the
// configured batch concurrency. Result positions match input positions;
// one request failing never aborts its siblings.
func (o *Orchestrator) ProcessBatch(ctx context.Context, requests []core.Request) []BatchResult {
	results := make([]BatchResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	concurrency := o.provider.Snapshot().Limits.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup

	for i, req := range requests {
		wg.Add(1)

		go func(i int, req core.Request) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			resp, err := o.Process(ctx, req)
			results[i] = BatchResult{Response: resp, Err: err}
		}(i, req)
	}

	wg.Wait()

	return results
}

func backendIDs(backends []core.BackendDescriptor) []string {
	ids := make([]string, len(backends))
	for i, b := range backends {
		ids[i] = b.ID
	}

	return ids
}
