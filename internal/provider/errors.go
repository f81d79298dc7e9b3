// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/medassist/internal/httputil"
	"github.com/pdiddy/medassist/pkg/types"
)

// Kind classifies a provider failure.
type Kind int

const (
	// Transient failures (timeouts, transport errors, 408/429/5xx) are retried.
	Transient Kind = iota + 1

	// Rejection failures (bad request, auth, unknown model) move straight
	// to the next provider.
	Rejection
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Rejection:
		return "rejection"
	}
	return "unknown"
}

var (
	// ErrAllProvidersExhausted is matched by every *ExhaustedError.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrUnknownProvider reports a chain entry with no registered client.
	ErrUnknownProvider = errors.New("no client registered for provider")

	// ErrEmptyResponse reports a 2xx reply without generated text.
	ErrEmptyResponse = errors.New("provider returned no text")
)

// Error is a classified failure from one provider call.
type Error struct {
	Provider   types.ProviderID
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports how err should be treated by the router. Unclassified
// errors, including deadline expiry, are transient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Transient
}

// IsTransient reports whether err may succeed on retry.
func IsTransient(err error) bool {
	return KindOf(err) == Transient
}

func transient(id types.ProviderID, err error) error {
	return &Error{Provider: id, Kind: Transient, Err: err}
}

func rejection(id types.ProviderID, err error) error {
	return &Error{Provider: id, Kind: Rejection, Err: err}
}

// classify maps a raw client error into the shared taxonomy.
func classify(id types.ProviderID, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	var se *httputil.StatusError
	if errors.As(err, &se) {
		return fromStatus(id, se.StatusCode, err)
	}
	return transient(id, err)
}

func fromStatus(id types.ProviderID, status int, err error) error {
	kind := Rejection
	if httputil.Retryable(status) {
		kind = Transient
	}
	return &Error{Provider: id, Kind: kind, StatusCode: status, Err: err}
}

// Failure records the last error seen from one provider of a chain.
type Failure struct {
	Provider types.ProviderID
	Attempts int
	Err      error
}

// ExhaustedError is returned when every provider in the chain failed.
type ExhaustedError struct {
	Failures []Failure
}

func (e *ExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return ErrAllProvidersExhausted.Error() + ": empty provider chain"
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s after %d attempt(s): %v", f.Provider, f.Attempts, f.Err)
	}
	return ErrAllProvidersExhausted.Error() + ": " + strings.Join(parts, "; ")
}

// Is matches ErrAllProvidersExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}

// Unwrap exposes the per-provider errors.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
