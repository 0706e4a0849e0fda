package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"porter/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		resp.Field = validationErr.Field
	}
	if resp.Error == "" {
		resp.Error = service.GenericErrorMessage
	}

	c.JSON(mapErrorToHTTPStatus(err), resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps session and ride errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	var (
		validationErr *service.ValidationError
		authErr       *service.AuthError
		rideErr       *service.RideError
	)

	switch {
	// Validation errors - Bad Request
	case errors.As(err, &validationErr):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrNotAuthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrCustomerOnly):
		return http.StatusForbidden

	case errors.Is(err, service.ErrRideNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrTransitionNotAllowed),
		errors.Is(err, service.ErrStaleSession):
		return http.StatusConflict

	case errors.As(err, &authErr):
		return upstreamStatus(authErr.StatusCode)

	case errors.As(err, &rideErr):
		return upstreamStatus(rideErr.StatusCode)

	default:
		return http.StatusInternalServerError
	}
}

// upstreamStatus passes backend client errors through and reports everything
// else (server errors, transport failures) as a gateway problem.
func upstreamStatus(code int) int {
	if code >= 400 && code < 500 {
		return code
	}
	return http.StatusBadGateway
}
