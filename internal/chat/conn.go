// Package chat provides the room and broadcast logic shared by all transports.
package chat

import "context"

// Conn abstracts a bidirectional message connection.
// This interface isolates transport details from chat logic.
type Conn interface {
	// Read reads a single text message.
	// Returns io.EOF when connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text message. It must be safe for concurrent use,
	// since broadcasts from several rooms may target the same connection.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
