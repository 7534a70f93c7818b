package domain

import (
	"fmt"
)

// ErrorCode identifies a failure class that callers can act on.
type ErrorCode string

const (
	CodeInvalidSequence     ErrorCode = "invalid_sequence"
	CodeIncompleteOrder     ErrorCode = "incomplete_order"
	CodeRouteCompleted      ErrorCode = "route_completed"
	CodeRouteActive         ErrorCode = "route_active"
	CodeCannotSplitAtTail   ErrorCode = "cannot_split_at_tail"
	CodeInvalidCoordinates  ErrorCode = "invalid_coordinates"
	CodeInvalidMethod       ErrorCode = "invalid_method"
	CodeInvalidTransition   ErrorCode = "invalid_transition"
	CodeProviderUnavailable ErrorCode = "provider_unavailable"
	CodeNoRouteFound        ErrorCode = "no_route_found"
	CodeStaleMutation       ErrorCode = "stale_mutation"
	CodeNotFound            ErrorCode = "not_found"
)

// Error is a structured domain error. It carries enough context (route,
// stop, conflicting version) for the caller to decide on retry.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	RouteID string    `json:"route_id,omitempty"`
	StopID  string    `json:"stop_id,omitempty"`
	Version int64     `json:"version,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.RouteID != "" {
		return fmt.Sprintf("%s: %s (route %s)", e.Code, e.Message, e.RouteID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches by code, so errors.Is(err, domain.ErrInvalidSequence) works
// regardless of the context attached to the concrete error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithRoute attaches a route id.
func (e *Error) WithRoute(routeID string) *Error {
	c := *e
	c.RouteID = routeID
	return &c
}

// WithStop attaches a stop id.
func (e *Error) WithStop(stopID string) *Error {
	c := *e
	c.StopID = stopID
	return &c
}

// WithVersion attaches the conflicting mutation version.
func (e *Error) WithVersion(v int64) *Error {
	c := *e
	c.Version = v
	return &c
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// E builds a domain error with a formatted message.
func E(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is matching.
var (
	ErrInvalidSequence     = &Error{Code: CodeInvalidSequence, Message: "stop sequence numbers must form exactly 1..N"}
	ErrIncompleteOrder     = &Error{Code: CodeIncompleteOrder, Message: "new order must contain exactly the route's current stops"}
	ErrRouteCompleted      = &Error{Code: CodeRouteCompleted, Message: "route is completed"}
	ErrRouteActive         = &Error{Code: CodeRouteActive, Message: "route is active"}
	ErrCannotSplitAtTail   = &Error{Code: CodeCannotSplitAtTail, Message: "cannot split after the last stop"}
	ErrInvalidCoordinates  = &Error{Code: CodeInvalidCoordinates, Message: "coordinates out of range"}
	ErrInvalidTransition   = &Error{Code: CodeInvalidTransition, Message: "illegal route status transition"}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable, Message: "distance provider unavailable"}
	ErrNoRouteFound        = &Error{Code: CodeNoRouteFound, Message: "no road route found between waypoints"}
	ErrStaleMutation       = &Error{Code: CodeStaleMutation, Message: "recompute superseded by a newer mutation"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
)

// CodeOf extracts the domain error code, or "" for non-domain errors.
func CodeOf(err error) ErrorCode {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if de == nil {
		return ""
	}
	return de.Code
}
