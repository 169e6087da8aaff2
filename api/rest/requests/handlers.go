package requests

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/errors"
	"codeberg.org/modelrelay/relay/internal/orchestrator"
)

// Processor is the slice of the orchestrator the handlers dispatch through.
type Processor interface {
	Process(ctx context.Context, req core.Request) (*core.Response, error)
	ProcessBatch(ctx context.Context, requests []core.Request) []orchestrator.BatchResult
}

// maxBatchSize caps a single batch call; larger workloads should page.
const maxBatchSize = 50

// ProcessHandler godoc
// @Summary Dispatch a model request
// @Description Validates, caches, and routes a single code-assistance request to a backend
// @Tags requests
// @Accept json
// @Produce json
// @Param request body Request true "Model request"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Failure 504 {object} errors.ErrorResponse
// @Router /api/v1/requests [post]
func ProcessHandler(orch Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request

		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		ctx, cancel := requestContext(c, req.TimeoutSeconds)
		defer cancel()

		resp, err := orch.Process(ctx, req.toCore())
		if err != nil {
			errors.Respond(c, err)
			return
		}

		c.JSON(http.StatusOK, fromCore(resp))
	}
}

// BatchHandler godoc
// @Summary Dispatch a batch of model requests
// @Description Processes up to 50 requests concurrently. Results are positional; a failed element never aborts its siblings.
// @Tags requests
// @Accept json
// @Produce json
// @Param request body BatchRequest true "Batch of model requests"
// @Success 200 {object} BatchResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /api/v1/requests/batch [post]
func BatchHandler(orch Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest

		if err := c.ShouldBindJSON(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if len(req.Requests) == 0 {
			errors.BadRequest(c, "requests must not be empty", nil)
			return
		}

		if len(req.Requests) > maxBatchSize {
			errors.BadRequest(c, "too many requests in batch", nil)
			return
		}

		timeout := 0
		coreReqs := make([]core.Request, len(req.Requests))

		for i, r := range req.Requests {
			coreReqs[i] = r.toCore()

			// the longest element timeout bounds the batch
			if r.TimeoutSeconds > timeout {
				timeout = r.TimeoutSeconds
			}
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		results := orch.ProcessBatch(ctx, coreReqs)

		items := make([]BatchItem, len(results))
		for i, result := range results {
			if result.Err != nil {
				items[i] = BatchItem{Error: &BatchError{
					Kind:    errors.KindOf(result.Err).String(),
					Message: result.Err.Error(),
				}}

				continue
			}

			items[i] = BatchItem{Response: fromCore(result.Response)}
		}

		c.JSON(http.StatusOK, BatchResponse{Results: items})
	}
}

func requestContext(c *gin.Context, timeoutSeconds int) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()

	if timeoutSeconds > 0 {
		return context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	}

	return context.WithCancel(ctx)
}
