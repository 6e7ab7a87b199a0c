package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError wraps a network-level failure: connection refused,
// DNS, or the 10s request timeout. The backend was never reached, or
// never answered.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx answer from the backend
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Op, e.Status)
}

// IsNotFound reports whether err is a ServerError for a missing resource
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// IsTransport reports whether err is a network-level failure
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
