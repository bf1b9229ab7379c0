package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrFlowAlreadyInProgress is returned when a flow is started while
	// another one is still listening or exchanging.
	ErrFlowAlreadyInProgress = errors.New("authorization flow already in progress")
	// ErrPortUnavailable is returned when the loopback port cannot be bound.
	ErrPortUnavailable = errors.New("loopback port unavailable")
	// ErrAuthorizationDenied matches any *DeniedError.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrMalformedCallback is returned when the callback carried neither
	// a code nor an error parameter.
	ErrMalformedCallback = errors.New("malformed authorization callback")
	// ErrExchange matches any *ExchangeError.
	ErrExchange = errors.New("token exchange failed")
	// ErrTimedOut is returned when the user did not complete the browser
	// step before the flow timeout.
	ErrTimedOut = errors.New("authorization flow timed out")
	// ErrFlowCancelled is returned when the flow was cancelled by the caller
	// or its listener was closed from outside.
	ErrFlowCancelled = errors.New("authorization flow cancelled")
	// ErrInvalidCredentials is returned when client id or secret is empty.
	ErrInvalidCredentials = errors.New("client id and client secret are required")
	// ErrRecordNotFound is returned when no token record is stored.
	ErrRecordNotFound = errors.New("token record not found")
)

// DeniedError reports that the provider redirected back with an error,
// typically because the user declined consent.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}

// Is makes errors.Is(err, ErrAuthorizationDenied) true for any denial.
func (e *DeniedError) Is(target error) bool {
	return target == ErrAuthorizationDenied
}

// ExchangeError wraps a failure of the code-for-token exchange.
type ExchangeError struct {
	Cause error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Cause)
}

func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrExchange) true for any exchange failure.
func (e *ExchangeError) Is(target error) bool {
	return target == ErrExchange
}

// ErrorKind classifies flow errors so callers can switch on them.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindAlreadyInProgress ErrorKind = "flow_already_in_progress"
	KindPortUnavailable   ErrorKind = "port_unavailable"
	KindDenied            ErrorKind = "authorization_denied"
	KindMalformed         ErrorKind = "malformed_callback"
	KindExchange          ErrorKind = "exchange_error"
	KindTimedOut          ErrorKind = "timed_out"
	KindCancelled         ErrorKind = "cancelled"
	KindInvalidInput      ErrorKind = "invalid_credentials"
	KindUnknown           ErrorKind = "unknown"
)

// KindOf maps an error onto the closed taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrFlowAlreadyInProgress):
		return KindAlreadyInProgress
	case errors.Is(err, ErrPortUnavailable):
		return KindPortUnavailable
	case errors.Is(err, ErrAuthorizationDenied):
		return KindDenied
	case errors.Is(err, ErrMalformedCallback):
		return KindMalformed
	case errors.Is(err, ErrExchange):
		return KindExchange
	case errors.Is(err, ErrTimedOut):
		return KindTimedOut
	case errors.Is(err, ErrFlowCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidInput
	default:
		return KindUnknown
	}
}

// Summary returns a short user-facing notification for a flow error.
func Summary(err error) string {
	switch KindOf(err) {
	case KindNone:
		return "Authorization successful."
	case KindAlreadyInProgress:
		return "An authorization is already in progress. Finish it in your browser first."
	case KindPortUnavailable:
		return "Could not start the local callback listener: the port is in use."
	case KindDenied:
		var denied *DeniedError
		if errors.As(err, &denied) {
			return "Authorization was denied: " + denied.Reason
		}
		return "Authorization was denied."
	case KindMalformed:
		return "The provider redirect did not contain an authorization code."
	case KindExchange:
		return "Could not exchange the authorization code for tokens."
	case KindTimedOut:
		return "Authorization timed out before the browser step was completed."
	case KindCancelled:
		return "Authorization was cancelled."
	case KindInvalidInput:
		return "Client ID and client secret must be configured."
	default:
		return "Authorization failed: " + err.Error()
	}
}
