package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies action failures
type ErrorKind string

const (
	// KindNetwork means the request never produced a response (refused, timed out, breaker open)
	KindNetwork ErrorKind = "NetworkFailure"
	// KindServer means the backend answered non-2xx or with an error envelope
	KindServer ErrorKind = "ServerError"
	// KindValidation means a client-side precondition failed; nothing was sent
	KindValidation ErrorKind = "ValidationFailure"
	// KindIndexOutOfRange means a row position outside the loaded product list
	KindIndexOutOfRange ErrorKind = "IndexOutOfRange"
)

// Error is the typed failure every action returns
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a ValidationFailure
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// IndexOutOfRange builds the error for a bad row position
func IndexOutOfRange(index, length int) *Error {
	return &Error{
		Kind:    KindIndexOutOfRange,
		Message: fmt.Sprintf("product index %d out of range [0, %d)", index, length),
	}
}

// NetworkFailure wraps a transport error
func NetworkFailure(msg string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

// ServerError builds the error for a failed backend answer
func ServerError(status int, msg string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: msg}
}

// KindOf extracts the kind of err, defaulting to ServerError for untyped errors
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindServer
}

// MessageOf returns the operator-facing text of err, or fallback when it has none
func MessageOf(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}

// IsKind reports whether err is a domain error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// HTTPStatus maps an error kind onto the console API status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindIndexOutOfRange:
		return http.StatusNotFound
	case KindNetwork:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
