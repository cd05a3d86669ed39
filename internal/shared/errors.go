package shared

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound error = &sentinelError{message: "not found", status: http.StatusNotFound, title: "Not Found"}
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials error = &sentinelError{message: "invalid credentials", status: http.StatusUnauthorized, title: "Unauthorized"}
)

// sentinelError is a package-level error value that knows its HTTP mapping.
type sentinelError struct {
	message string
	status  int
	title   string
}

func (e *sentinelError) Error() string { return e.message }

// HTTPStatus implements the httpx status mapping.
func (e *sentinelError) HTTPStatus() int { return e.status }

// Title implements the httpx status mapping.
func (e *sentinelError) Title() string { return e.title }

// ValidationError reports malformed input. It carries per-field messages and
// never implies side effects took place.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HTTPStatus implements the httpx status mapping.
func (e *ValidationError) HTTPStatus() int { return http.StatusUnprocessableEntity }

// Title implements the httpx status mapping.
func (e *ValidationError) Title() string { return "Validation Failed" }

// FieldErrors exposes per-field messages for the problem response.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }

// ConflictError reports a business conflict such as insufficient stock or a
// cash mismatch. Meta carries the structured detail (shortage list,
// expected-vs-given amounts) verbatim into the problem response.
type ConflictError struct {
	Reason string
	Meta   any
}

func (e *ConflictError) Error() string { return e.Reason }

// HTTPStatus implements the httpx status mapping.
func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }

// Title implements the httpx status mapping.
func (e *ConflictError) Title() string { return "Conflict" }

// ProblemMeta exposes the structured detail.
func (e *ConflictError) ProblemMeta() any { return e.Meta }

// NotFoundError identifies a missing entity by name and id.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d: not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// HTTPStatus implements the httpx status mapping.
func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

// Title implements the httpx status mapping.
func (e *NotFoundError) Title() string { return "Not Found" }

// StateError reports a transition attempted from an incompatible status.
type StateError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s in status %q cannot transition to %q", e.Entity, e.Current, e.Attempted)
}

// HTTPStatus implements the httpx status mapping.
func (e *StateError) HTTPStatus() int { return http.StatusConflict }

// Title implements the httpx status mapping.
func (e *StateError) Title() string { return "Invalid State" }
