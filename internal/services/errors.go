package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Cedctf/foodbridge-sub000/internal/db"
)

var (
	// ErrInvalidIdentifier is returned for ids that cannot be parsed. It is distinct from not-found.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrTransientStorage wraps storage failures that are safe to retry at the transport layer.
	ErrTransientStorage = errors.New("storage temporarily unavailable")
	// ErrAssistantDisabled is returned when no completion backend is configured.
	ErrAssistantDisabled = errors.New("assistant is not configured")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
}

// NotFoundError reports a referenced entity that does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictKind distinguishes the two invariant violations a claim can hit.
type ConflictKind string

const (
	ConflictAlreadyClaimed   ConflictKind = "already_claimed"
	ConflictDuplicateRequest ConflictKind = "duplicate_request"
)

// ConflictError reports a claim rejected by a uniqueness invariant.
type ConflictError struct {
	Kind    ConflictKind
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Is matches any ConflictError of the same kind.
func (e *ConflictError) Is(target error) bool {
	t, ok := target.(*ConflictError)
	return ok && t.Kind == e.Kind
}

var (
	ErrAlreadyClaimed = &ConflictError{
		Kind:    ConflictAlreadyClaimed,
		Message: "this listing has already been claimed by someone else",
	}
	ErrDuplicateRequest = &ConflictError{
		Kind:    ConflictDuplicateRequest,
		Message: "you have already requested this listing",
	}
)

// storageError wraps err with context and marks network/timeout failures as transient.
func storageError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if db.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrTransientStorage, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
