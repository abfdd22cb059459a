// Package apperr defines the error taxonomy shared by the integration and
// assistant pipeline. Component errors classify themselves through Kind so the
// HTTP layer can map them without knowing every concrete type.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse class of a failure.
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindCredential  Kind = "credential_error"
	KindUpstream    Kind = "upstream_error"
	KindPersistence Kind = "persistence_error"
	KindInternal    Kind = "internal_error"
)

// Kinded is implemented by every error that knows its class.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf walks the error chain and returns the first declared kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status code the API responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindCredential:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError is a missing or malformed client input.
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

func (e *ValidationError) Kind() Kind { return KindValidation }

// CredentialReason says why a stored credential cannot be used.
type CredentialReason string

const (
	CredentialExpired  CredentialReason = "expired"
	CredentialRejected CredentialReason = "rejected"
)

// CredentialError means the provider is not connected or needs re-auth.
type CredentialError struct {
	Provider string
	Reason   CredentialReason
	Err      error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("%s credential %s", e.Provider, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Kind() Kind { return KindCredential }

// UpstreamError is a non-2xx or unusable answer from a third-party API.
// StatusCode is 0 when no HTTP response was received.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s upstream error", e.Provider)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Kind() Kind { return KindUpstream }

// PersistenceError is a datastore read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Kind() Kind { return KindPersistence }
