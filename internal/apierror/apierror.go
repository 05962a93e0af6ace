// Package apierror provides standardized error response structures for the API.
// All errors returned to clients go through this package to ensure consistency
// and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"net/http"

	"systeminvoice/internal/apperr"
)

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
// Kind and Code mirror apperr so programmatic clients can branch without
// parsing Detail.
type APIError struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
	Code   string `json:"code,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

func NewTagged(kind, code, msg string) *APIError {
	return &APIError{Detail: msg, Kind: kind, Code: code}
}

// Validation wraps multiple field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "Error de validacion", Kind: "VALIDATION", Fields: fields}
}

// FromError maps an application error to its HTTP status and envelope.
// Storage failures and untagged errors never expose their message.
func FromError(err error) (int, *APIError) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, New("Error interno del servidor")
	}
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, NewTagged(string(e.Kind), e.Code, e.Message)
	case apperr.KindNotFound:
		return http.StatusNotFound, NewTagged(string(e.Kind), e.Code, e.Message)
	case apperr.KindConflict:
		return http.StatusConflict, NewTagged(string(e.Kind), e.Code, e.Message)
	case apperr.KindAuthorization:
		if e.Code == apperr.CodeUnauthenticated {
			return http.StatusUnauthorized, NewTagged(string(e.Kind), e.Code, e.Message)
		}
		return http.StatusForbidden, NewTagged(string(e.Kind), e.Code, e.Message)
	}
	if e.Code == apperr.CodeTimeout {
		return http.StatusInternalServerError, NewTagged(string(apperr.KindStorage), e.Code, "El almacenamiento no respondio a tiempo")
	}
	return http.StatusInternalServerError, NewTagged(string(apperr.KindStorage), e.Code, "Error interno del servidor")
}
