package models

import "errors"

// Error taxonomy shared by every layer. Callers match with errors.Is; the HTTP
// layer maps each sentinel to a status code.
var (
	ErrAuthFailure   = errors.New("invalid or missing project key")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrQuotaExceeded = errors.New("project capacity reached")
	ErrValidation    = errors.New("invalid request")
	ErrUpstream      = errors.New("embedding service unavailable")
	ErrInternal      = errors.New("internal server error")
)

// ErrProjectNotFound and ErrDocumentNotFound both match ErrNotFound.
var (
	ErrProjectNotFound  = &notFoundError{what: "project"}
	ErrDocumentNotFound = &notFoundError{what: "document"}
)

type notFoundError struct {
	what string
}

func (e *notFoundError) Error() string { return e.what + " not found" }

func (e *notFoundError) Unwrap() error { return ErrNotFound }
