package models

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrConflict      = errors.New("operation conflicts with current state")
	ErrUnauthorized  = errors.New("unauthorized")
)

// AppError represents an application-level error with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrNotFoundWithMsg creates a not found error with custom message
func ErrNotFoundWithMsg(message string) error {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: message,
		Err:     ErrNotFound,
	}
}

// ErrConflictWithMsg creates a conflict error with custom message
func ErrConflictWithMsg(message string) error {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Err:     ErrConflict,
	}
}

// ValidationError is a precondition failure detected before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for the named field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NoRecipientsError is returned when the selected lists resolve to zero recipients.
// The job record has already been finalized as failed when this is returned.
type NoRecipientsError struct {
	JobID   string
	ListIDs []string
}

func (e *NoRecipientsError) Error() string {
	return fmt.Sprintf("no recipients resolved from lists [%s]", strings.Join(e.ListIDs, ", "))
}

// ProviderUnavailableError wraps a provider-level failure (network, auth, timeout, open breaker).
type ProviderUnavailableError struct {
	Provider Provider
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error {
	return e.Err
}

// JobInProgressError rejects delete/retry of a job that is still sending.
type JobInProgressError struct {
	JobID string
}

func (e *JobInProgressError) Error() string {
	return fmt.Sprintf("campaign job %s is still sending", e.JobID)
}
