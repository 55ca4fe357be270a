package httpclient

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// APIError is a non-2xx response from the backend. Transport errors
// (timeouts, connection failures) are never wrapped in APIError; they
// propagate unchanged.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Method, e.URL, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == status
}

// isAuthFailure reports the status that triggers the refresh path.
func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized
}
