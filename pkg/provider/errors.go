package provider

import (
	"fmt"
	"net/http"

	"github.com/rhuss/aython/pkg/api"
)

// StatusError converts a backend HTTP status and message into an APIError.
// Adapters built on vendor SDKs use it for the SDK's status-bearing errors.
func StatusError(status int, message string) *api.APIError {
	switch {
	case status == http.StatusBadRequest:
		if message == "" {
			message = "invalid request to backend"
		}
		return api.NewInvalidRequestError("", message)

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		return api.NewServerError(message)

	case status == http.StatusNotFound:
		if message == "" {
			message = "backend resource not found"
		}
		return api.NewNotFoundError(message)

	case status == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case status >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", status)
		}
		return api.NewModelError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", status)
		}
		return api.NewServerError(message)
	}
}
