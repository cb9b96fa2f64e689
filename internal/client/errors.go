package client

import (
	"errors"
	"fmt"
)

// NetworkError wraps a transport-level failure: the request could not be sent
// or the response could not be received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError reports a non-2xx status or a success:false payload.
type BackendError struct {
	Op      string
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error during %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("backend error during %s: status %d", e.Op, e.Status)
}

// ValidationError reports a malformed or incomplete payload in an otherwise
// successful response.
type ValidationError struct {
	Op     string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s response: %s", e.Op, e.Detail)
}

// IsNetworkError reports whether err is a transport-level failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
