package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ibaiondo/fleetroute/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: invalid_sequence, not_found, stale_mutation, etc.
	Message   string `json:"message"` // Human-readable message
	RouteID   string `json:"route_id,omitempty"`
	StopID    string `json:"stop_id,omitempty"`
	Version   int64  `json:"version,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps domain error codes onto HTTP statuses.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound:
		return fiber.StatusNotFound
	case domain.CodeInvalidSequence, domain.CodeIncompleteOrder,
		domain.CodeInvalidCoordinates, domain.CodeInvalidMethod:
		return fiber.StatusUnprocessableEntity
	case domain.CodeRouteCompleted, domain.CodeRouteActive,
		domain.CodeCannotSplitAtTail, domain.CodeInvalidTransition,
		domain.CodeStaleMutation:
		return fiber.StatusConflict
	case domain.CodeProviderUnavailable:
		return fiber.StatusBadGateway
	case domain.CodeNoRouteFound:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// errDomain renders a *domain.Error with its natural HTTP status. Unknown
// errors fall back to a plain 500.
func errDomain(c *fiber.Ctx, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		return errInternal(c, err.Error())
	}
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(statusFor(de.Code)).JSON(APIError{
		Status:    statusFor(de.Code),
		Code:      string(de.Code),
		Message:   de.Message,
		RouteID:   de.RouteID,
		StopID:    de.StopID,
		Version:   de.Version,
		RequestID: reqID,
	})
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}
