package interfaces

// Conn abstracts a gateway client connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details,
// the registry, router and reaper never touch gorilla types directly
type Conn interface {
	// ID returns the opaque connection identifier (changes across reconnects)
	ID() string

	// WriteEvent sends one enveloped event to the client (thread-safe).
	// Delivery is at-most-once, writes on a single connection are FIFO.
	WriteEvent(event string, data interface{}) error

	// IsAlive reports whether the transport still considers the
	// connection open. Used by the health reaper's dead-transport check.
	IsAlive() bool

	// Close tears down the connection and releases resources (idempotent)
	Close() error
}
