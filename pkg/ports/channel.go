package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/protocol"
)

// Channel is the persistent bidirectional chat connection.
type Channel interface {
	// Send writes one client message.
	Send(ctx context.Context, msg protocol.ClientMessage) error

	// Receive blocks until the next raw payload arrives.
	// Returns protocol.ErrClosed once the remote side has closed the channel.
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the channel. It is safe to call more than once.
	Close() error
}

// Dialer opens chat channels. A nil error is the connect acknowledgment.
type Dialer interface {
	Dial(ctx context.Context, params protocol.ConnectParams) (Channel, error)
}

// HostNotifier posts fire-and-forget signals to the page embedding the widget.
type HostNotifier interface {
	// Embedded reports whether the widget runs inside a foreign frame.
	Embedded() bool

	Post(msg any) error
}
