package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown campaign, post, job or task ids.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicateResource is returned when a post key already exists in a campaign.
	ErrDuplicateResource = errors.New("duplicate resource")
	// ErrAlreadyRunning is returned when a campaign already has a queued or running job.
	ErrAlreadyRunning = errors.New("scrape job already running")
	// ErrValidation covers malformed URLs and missing required fields.
	ErrValidation = errors.New("validation failed")
	// ErrFetchFailure is a transient, retryable metric fetch failure.
	ErrFetchFailure = errors.New("fetch failed")
	// ErrFetchTimeout is a fetch that exceeded its deadline. It also matches ErrFetchFailure.
	ErrFetchTimeout = &fetchTimeoutError{}
	// ErrRetriesExhausted marks a task that failed on its last allowed attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrInvalidTransition is returned when a task or job is not in the expected state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrShareDenied is returned when a public share is disabled or the password does not match.
	ErrShareDenied = errors.New("share access denied")
)

type fetchTimeoutError struct{}

func (*fetchTimeoutError) Error() string { return "fetch timed out" }

func (*fetchTimeoutError) Is(target error) bool { return target == ErrFetchFailure }

// DuplicateError reports a post whose key collides with an existing post.
type DuplicateError struct {
	Existing *Post
}

func (e *DuplicateError) Error() string {
	if e.Existing == nil {
		return ErrDuplicateResource.Error()
	}
	return fmt.Sprintf("%s: post %s already tracks %s", ErrDuplicateResource, e.Existing.ID, e.Existing.PostKey)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateResource }

// AlreadyRunningError carries the job that blocked a new StartJob call.
type AlreadyRunningError struct {
	Active *ScrapeJob
}

func (e *AlreadyRunningError) Error() string {
	if e.Active == nil {
		return ErrAlreadyRunning.Error()
	}
	return fmt.Sprintf("%s: job %s is %s for campaign %s", ErrAlreadyRunning, e.Active.ID, e.Active.Status, e.Active.CampaignID)
}

func (e *AlreadyRunningError) Unwrap() error { return ErrAlreadyRunning }

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
