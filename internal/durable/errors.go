package durable

import "fmt"

// APIError is a non-2xx response from the persistence API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("persistence API returned status %d: %s", e.StatusCode, e.Body)
}
