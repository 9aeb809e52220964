package domain

import "fmt"

// Error types for consistent error handling across the sector agent.

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrMissingConfig indicates a required secret or setting is absent.
type ErrMissingConfig struct {
	Key string
}

func (e *ErrMissingConfig) Error() string {
	return fmt.Sprintf("%s não configurada", e.Key)
}

// ErrRateLimited indicates the LLM provider answered 429.
type ErrRateLimited struct {
	Provider string
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited by provider %s", e.Provider)
}

// ErrProvider indicates any other non-2xx from the LLM provider.
type ErrProvider struct {
	Provider string
	Status   int
}

func (e *ErrProvider) Error() string {
	return fmt.Sprintf("provider %s returned status %d", e.Provider, e.Status)
}

// ErrScrapeUnavailable indicates the external kanban page could not be read.
type ErrScrapeUnavailable struct {
	Reason string
}

func (e *ErrScrapeUnavailable) Error() string {
	return "kanban unavailable: " + e.Reason
}
