package service

import (
	"errors"
	"fmt"
)

// GenericErrorMessage is shown when the backend supplies no reason.
const GenericErrorMessage = "Something went wrong. Please try again."

var (
	// ErrNotAuthenticated is returned when an operation needs a session token and there is none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrCustomerOnly is returned when a non-customer tries to request a ride.
	ErrCustomerOnly = errors.New("only customers can request rides")

	// ErrTransitionNotAllowed is returned when the current role may not move the ride to the requested status.
	ErrTransitionNotAllowed = errors.New("status change not allowed")

	// ErrRideNotFound is returned when the ride is not in the local list.
	ErrRideNotFound = errors.New("ride not found")

	// ErrStaleSession is returned when the session changed while a request was in flight.
	ErrStaleSession = errors.New("session changed during request")
)

// ValidationError reports missing or malformed input caught before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthError reports a failed login, registration or token verification.
type AuthError struct {
	Message    string
	StatusCode int // backend status, 0 for transport failures
	Err        error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RideError reports a rejected or failed ride operation.
type RideError struct {
	Message    string
	StatusCode int // backend status, 0 when rejected locally or on transport failure
	Err        error
}

func (e *RideError) Error() string {
	return e.Message
}

func (e *RideError) Unwrap() error {
	return e.Err
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
