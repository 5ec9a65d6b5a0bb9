package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrWriteTimeout      = errors.New("write timeout")
	ErrInvalidJSON       = errors.New("invalid JSON data")
	ErrAlreadyIdentified = errors.New("connection already identified")
)

// Handler-related errors
var (
	ErrInvalidRole      = errors.New("invalid role: must be 'student' or 'admin'")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrRoleMismatch     = errors.New("event not permitted for connection role")
)
