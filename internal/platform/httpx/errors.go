// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// statusError is implemented by domain errors that know their HTTP mapping.
type statusError interface {
	error
	HTTPStatus() int
	Title() string
}

// fieldsError exposes per-field validation messages.
type fieldsError interface {
	FieldErrors() map[string]string
}

// metaError exposes structured machine-readable detail.
type metaError interface {
	ProblemMeta() any
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var se statusError
	if errors.As(err, &se) {
		detail := ProblemDetail{
			Title:  se.Title(),
			Status: se.HTTPStatus(),
			Detail: se.Error(),
		}
		var fe fieldsError
		if errors.As(err, &fe) {
			detail.Errors = fe.FieldErrors()
		}
		var me metaError
		if errors.As(err, &me) {
			detail.Meta = me.ProblemMeta()
		}
		JSON(w, detail.Status, detail)
		return
	}

	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
