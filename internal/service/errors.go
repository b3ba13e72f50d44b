package service

import "fmt"

// ValidationError is a client-correctable request problem (400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// SignatureError rejects a webhook delivery that could not be authenticated (400).
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string { return e.Err.Error() }
func (e *SignatureError) Unwrap() error { return e.Err }

// UpstreamError is a failure of a dependency (500). Err holds the detail for
// logs; clients only ever see the generic message.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }
