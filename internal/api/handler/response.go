package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/trackr/internal/domain"
	"github.com/timmy/trackr/internal/logger"
	"github.com/timmy/trackr/internal/storage"
)

// Error codes of the JSON error envelope.
const (
	CodeBadRequest      = "bad_request"
	CodeValidation      = "validation_failed"
	CodeNotFound        = "not_found"
	CodeDuplicate       = "duplicate"
	CodeAlreadyRunning  = "already_running"
	CodeShareDenied     = "share_denied"
	CodeStorageDisabled = "storage_disabled"
	CodeInternal        = "internal_error"
)

// ErrorBody is the payload of every error response:
// {"error": {"code": ..., "message": ...}}.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	// ActiveJob is the job blocking a new scrape job.
	ActiveJob *domain.ScrapeJob `json:"active_job,omitempty"`
	// Existing is the post a duplicate collided with.
	Existing *domain.Post `json:"existing,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func abort(c *gin.Context, status int, body ErrorBody) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: body})
}

func badRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, ErrorBody{Code: CodeBadRequest, Message: message})
}

// respondError maps a service error onto its HTTP status and envelope.
func respondError(c *gin.Context, err error) {
	var (
		dup     *domain.DuplicateError
		running *domain.AlreadyRunningError
		invalid *domain.ValidationError
	)

	switch {
	case errors.As(err, &dup):
		abort(c, http.StatusConflict, ErrorBody{Code: CodeDuplicate, Message: err.Error(), Existing: dup.Existing})
	case errors.As(err, &running):
		abort(c, http.StatusConflict, ErrorBody{Code: CodeAlreadyRunning, Message: err.Error(), ActiveJob: running.Active})
	case errors.Is(err, domain.ErrAlreadyRunning):
		abort(c, http.StatusConflict, ErrorBody{Code: CodeAlreadyRunning, Message: err.Error()})
	case errors.As(err, &invalid):
		abort(c, http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: err.Error(), Field: invalid.Field})
	case errors.Is(err, domain.ErrValidation):
		abort(c, http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		abort(c, http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: err.Error()})
	case errors.Is(err, domain.ErrShareDenied):
		abort(c, http.StatusUnauthorized, ErrorBody{Code: CodeShareDenied, Message: err.Error()})
	case errors.Is(err, storage.ErrDisabled):
		abort(c, http.StatusServiceUnavailable, ErrorBody{Code: CodeStorageDisabled, Message: err.Error()})
	default:
		logger.FromContext(c.Request.Context()).WithError(err).Errorf("Request failed: %s %s", c.Request.Method, c.FullPath())
		abort(c, http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "internal server error"})
	}
}
