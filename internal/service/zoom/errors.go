package zoom

import (
	"errors"
	"fmt"
)

var (
	// ErrCredential marks failures obtaining an OAuth access token.
	ErrCredential = errors.New("zoom credential exchange failed")
	// ErrEmptyToken is returned when a successful response carries no token.
	ErrEmptyToken = errors.New("zoom response contained no token")
	// ErrInvalidCredential is returned before any call when a field is blank.
	ErrInvalidCredential = errors.New("zoom credential requires account id, client id and client secret")
)

// APIError carries a non-success HTTP status from a Zoom endpoint.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	kind       error
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap exposes the failure class, e.g. ErrCredential.
func (e *APIError) Unwrap() error {
	return e.kind
}

// StatusCode extracts the HTTP status from err, or 0 when none is present.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
