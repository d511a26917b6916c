package port

import "context"

// Conn is the bidirectional client transport a stream session talks to.
type Conn interface {
	// ReadText blocks until the next text message arrives. Any error means
	// the connection is unusable.
	ReadText(ctx context.Context) (string, error)
	// WriteJSON sends one message.
	WriteJSON(ctx context.Context, v any) error
	Close() error
	RemoteAddr() string
}
