package utils

import (
	"errors"
	"fmt"
)

// StatusError is a non-2xx reply from the remote service.
// Message is what the server said, or "HTTP_<code>" when it said nothing.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP_%d", e.Code)
	}
	return e.Message
}

// NewStatusError builds a StatusError, defaulting the message from the code.
func NewStatusError(code int, message string) error {
	if message == "" {
		message = fmt.Sprintf("HTTP_%d", code)
	}
	return &StatusError{
		Code:    code,
		Message: message,
	}
}

// StatusCode extracts the HTTP code from err, or 0 when err is not a StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
