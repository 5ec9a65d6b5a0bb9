package types

import "errors"

// Validation error types shared across components
var (
	ErrInvalidStudentID     = errors.New("invalid student ID format")
	ErrInvalidTestID        = errors.New("invalid test ID format")
	ErrInvalidViolationType = errors.New("unknown violation type")
	ErrInvalidSeverity      = errors.New("severity must be 'low', 'medium' or 'high'")
	ErrInvalidRole          = errors.New("invalid role: must be 'student' or 'admin'")
)
