package errors

import (
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"

	"codeberg.org/modelrelay/relay/internal/logger"
	"github.com/gin-gonic/gin"
)

// Error Handling Guidelines:
//
// For HTTP REST handlers:
//   - Use errors.Respond() for errors coming out of the orchestrator; it maps
//     the error kind to the right status and payload
//   - Use errors.InternalError(), errors.BadRequest(), etc. for everything else
//     These functions handle both logging and HTTP response automatically
//   - Never call both logger.ErrorErr() and errors.InternalError() for the same error
//
// For services/internal packages:
//   - Return typed errors (constructors above) or wrapped errors with context
//     using fmt.Errorf("context: %w", err)
//   - Let the caller (handler) decide how to log and respond
//   - Do not log errors in non-handler code (avoid double logging)

// represents a standardized error response
type ErrorResponse struct {
	Error             string           `json:"error"`                        // error code (e.g., "validation_error", "backend_failure")
	Message           string           `json:"message"`                      // user-friendly message
	Details           string           `json:"details,omitempty"`            // optional details (sanitized in production)
	RetryAfterSeconds int              `json:"retry_after_seconds,omitempty"` // suggested wait before retrying
	Failures          []BackendFailure `json:"failures,omitempty"`           // per-backend outcomes for aggregate failures
}

// standard error codes
const (
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeValidationError = "validation_error"
	CodeServerError     = "server_error"
	CodeBadRequest      = "bad_request"
	CodeTooManyRequests = "too_many_requests"
	CodeCircuitOpen     = "circuit_open"
	CodeBackendFailure  = "backend_failure"
	CodeTimeout         = "timeout"
)

// Respond maps a relay error onto the HTTP response. Untyped errors fall
// through to a 500.
func Respond(c *gin.Context, err error) {
	e, ok := AsError(err)
	if !ok {
		InternalError(c, "", err)
		return
	}

	switch e.Kind {
	case KindValidation:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   CodeValidationError,
			Message: e.Message,
		})

	case KindRateLimited:
		setRetryAfter(c, e)
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error:             CodeTooManyRequests,
			Message:           e.Message,
			RetryAfterSeconds: retryAfterSeconds(e),
		})

	case KindCircuitOpen:
		setRetryAfter(c, e)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:             CodeCircuitOpen,
			Message:           e.Error(),
			RetryAfterSeconds: retryAfterSeconds(e),
		})

	case KindBackendTransient, KindBackendFatal:
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   CodeBackendFailure,
			Message: e.Error(),
			Details: sanitizeError(e.Inner),
		})

	case KindAllBackendsFailed:
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:    CodeBackendFailure,
			Message:  "all candidate backends failed",
			Failures: e.Failures,
		})

	case KindDeadlineExceeded:
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{
			Error:   CodeTimeout,
			Message: e.Message,
		})

	default:
		InternalError(c, "", err)
	}
}

// returns a 401 unauthorized error
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}

	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   CodeUnauthorized,
		Message: message,
	})
}

// returns a 404 not found error
func NotFound(c *gin.Context, resource string) {
	message := "resource not found"

	if resource != "" {
		message = resource + " not found"
	}

	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// returns a 400 bad request error
func BadRequest(c *gin.Context, message string, err error) {
	if message == "" {
		message = "invalid request"
	}

	response := ErrorResponse{
		Error:   CodeBadRequest,
		Message: message,
	}

	// add details if error provided
	if err != nil {
		response.Details = sanitizeError(err)
	}

	c.JSON(http.StatusBadRequest, response)
}

// returns a 400 bad request error for validation failures
func ValidationError(c *gin.Context, err error) {
	message := "validation failed"
	details := ""

	if err != nil {
		details = sanitizeError(err)
		// extract a more specific message from validation errors if available
		if strings.Contains(err.Error(), "binding") || strings.Contains(err.Error(), "validation") {
			message = "request validation failed"
		}
	}

	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationError,
		Message: message,
		Details: details,
	})
}

// returns a 500 internal server error
func InternalError(c *gin.Context, message string, err error) {
	if message == "" {
		message = "an error occurred"
	}

	// log full error server-side with context
	logger.ErrorErr(err, message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)

	// return sanitized error to client
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeServerError,
		Message: message,
		Details: sanitizeError(err),
	})
}

// returns a 429 too many requests error
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "too many requests"
	}

	c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:   CodeTooManyRequests,
		Message: message,
	})
}

// sets the Retry-After header from the error's suggested delay
func setRetryAfter(c *gin.Context, e *Error) {
	if secs := retryAfterSeconds(e); secs > 0 {
		c.Header("Retry-After", strconv.Itoa(secs))
	}
}

// rounds the suggested delay up to whole seconds for the wire
func retryAfterSeconds(e *Error) int {
	if e.RetryAfter <= 0 {
		return 0
	}

	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// sanitizes error messages for production
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errMsg := err.Error()
	env := os.Getenv("ENVIRONMENT")

	if env != "production" {
		return errMsg
	}

	if strings.Contains(errMsg, "database") || strings.Contains(errMsg, "sql") {
		return "database operation failed"
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") {
		return "connection error occurred"
	}

	if strings.Contains(errMsg, "timeout") {
		return "request timed out"
	}

	if strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "unauthorized") {
		return "backend credential rejected"
	}

	return "an error occurred"
}
