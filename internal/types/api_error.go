package types

import (
	"fmt"
	"net/http"
)

// APIStatusError is a non-2xx response from the files service
type APIStatusError struct {
	StatusCode int
	Status     string
	Message    string
	Header     http.Header
}

func (e *APIStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("files API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("files API error %d", e.StatusCode)
}

// RetryAfter returns the Retry-After header value, if present
func (e *APIStatusError) RetryAfter() string {
	if e.Header == nil {
		return ""
	}
	return e.Header.Get("Retry-After")
}
