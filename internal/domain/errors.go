package domain

import (
	"errors"
	"fmt"
)

// Inference failure categories. The provider classifies every failed Chat
// call into exactly one of these so callers can branch with errors.Is
// without parsing error strings.
var (
	// ErrConnection: the endpoint could not be reached at all.
	ErrConnection = errors.New("connection failed")
	// ErrTimeout: the call exceeded the inference timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrMalformedResponse: the endpoint answered but the body was not usable
	// (invalid JSON or a shape with no extractable reply).
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError reports a non-2xx answer from the inference endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("endpoint returned %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("endpoint returned %d", e.Code)
}

func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsMalformedResponse(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// HTTPStatus returns the status code carried by a StatusError in err's
// chain, or 0 when there is none.
func HTTPStatus(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
