package violations

import "errors"

// Violation persistence error types
var (
	ErrStoreClosed   = errors.New("violation store is closed")
	ErrWriteTimeout  = errors.New("violation write timed out")
	ErrPersistFailed = errors.New("violation persistence failed")
)
