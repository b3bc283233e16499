package connector

import "errors"

// Connector is the backend a session dispatches control-channel commands to.
// Send returns the synchronous result document for one command; messages the
// backend produces on its own are delivered through the callback.
type Connector interface {
	Send(doc []byte) ([]byte, error)
	SetCallback(fn func(msg []byte) error)
	Close() error
}

// Factory creates a backend for one session. logDir is the session work
// directory; it exists by the time the factory runs.
type Factory func(sessionID string, logDir string) (Connector, error)

var (
	ErrNotConnected     = errors.New("not connected to upstream")
	ErrAlreadyConnected = errors.New("already connected to upstream")
)
