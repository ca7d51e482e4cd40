package errors

import (
	"errors"
	"net/http"
)

// Application error kinds for type-safe error handling.
// These errors can be checked using errors.Is() instead of string comparison.
var (
	ErrValidation        = errors.New("invalid input")
	ErrGeofence          = errors.New("location outside service area")
	ErrRateLimited       = errors.New("too many reports")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoMedia           = errors.New("no media available")
	ErrUpstream          = errors.New("upstream failure")
	ErrInternal          = errors.New("internal server error")
)

// Error carries a kind (one of the sentinels above), a human-readable
// message and an optional cause. It matches both kind and cause with errors.Is.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// New creates an error of the given kind.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind error, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

type classification struct {
	kind   error
	code   string
	status int
}

var classifications = []classification{
	{ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
	{ErrGeofence, "GEOFENCE_ERROR", http.StatusUnprocessableEntity},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden},
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{ErrNoMedia, "NO_MEDIA", http.StatusUnprocessableEntity},
	{ErrUpstream, "UPSTREAM_ERROR", http.StatusBadGateway},
	{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
}

func classify(err error) classification {
	for _, c := range classifications {
		if errors.Is(err, c.kind) {
			return c
		}
	}
	return classification{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError}
}

// Code returns the stable error code for err. Unknown errors are INTERNAL_ERROR.
func Code(err error) string {
	return classify(err).code
}

// HTTPStatus returns the HTTP status matching the kind of err.
func HTTPStatus(err error) int {
	return classify(err).status
}

// PublicMessage returns the message safe to show to callers. Internal
// errors never leak their cause.
func PublicMessage(err error) string {
	c := classify(err)
	if c.kind == ErrInternal {
		return ErrInternal.Error()
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return c.kind.Error()
}

// Is reports whether err matches target. It is errors.Is, re-exported so
// callers importing this package as errors keep one import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
