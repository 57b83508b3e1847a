// Package recerrors provides sentinel and custom error types for the recommender.
package recerrors

import "fmt"

// ErrNotFound represents a "not found" error.
// Use when a requested user, dish, or scenario doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return fmt.Sprintf("validation failed for field: %s", e.Field)
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrConflict is the sentinel for heavy-job conflicts: a reload, export, or
// train was requested while another heavy job holds the single job slot.
// Callers must surface it immediately; it is never queued or retried.
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for job-slot conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "another job is already running"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrModelLoad is the sentinel for weights/sidecar load failures. A reload
// that returns it leaves the previous snapshot authoritative; at startup it
// is fatal when no snapshot exists yet.
var ErrModelLoad = &ModelLoadError{}

// ModelLoadError is a sentinel error for model loading failures.
type ModelLoadError struct {
	Path    string
	Message string
}

// NewModelLoadError creates a ModelLoadError with a custom message.
func NewModelLoadError(path, message string) *ModelLoadError {
	return &ModelLoadError{Path: path, Message: message}
}

// Error implements the error interface.
func (e *ModelLoadError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Path != "" {
		return fmt.Sprintf("failed to load model from %s", e.Path)
	}

	return "model load failure"
}

// Is implements the error interface for error comparison.
func (e *ModelLoadError) Is(target error) bool {
	_, ok := target.(*ModelLoadError)

	return ok
}
