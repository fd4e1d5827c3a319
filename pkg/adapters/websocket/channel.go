// Package websocket implements the widget's chat channel over gorilla/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/protocol"
	gorilla "github.com/gorilla/websocket"
)

// DefaultCloseTimeout bounds the close handshake.
const DefaultCloseTimeout = time.Second

var DefaultDialer = &gorilla.Dialer{
	Proxy:            gorilla.DefaultDialer.Proxy,
	HandshakeTimeout: 10 * time.Second,
}

// Dialer opens chat channels against a websocket endpoint such as
// wss://chat.example/ws.
type Dialer struct {
	endpoint     string
	dialer       *gorilla.Dialer
	logger       *slog.Logger
	closeTimeout time.Duration
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		d.logger = logger
	}
}

// WithGorillaDialer replaces DefaultDialer.
func WithGorillaDialer(gd *gorilla.Dialer) Option {
	return func(d *Dialer) {
		d.dialer = gd
	}
}

// WithCloseTimeout overrides DefaultCloseTimeout.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		d.closeTimeout = timeout
	}
}

// NewDialer creates a dialer for endpoint.
func NewDialer(endpoint string, opts ...Option) *Dialer {
	d := &Dialer{
		endpoint:     endpoint,
		dialer:       DefaultDialer,
		logger:       logging.NewNop(),
		closeTimeout: DefaultCloseTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects with the session's parameters in the query string.
func (d *Dialer) Dial(ctx context.Context, params protocol.ConnectParams) (ports.Channel, error) {
	u := d.endpoint + "?" + params.Query().Encode()
	conn, res, err := d.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial chat endpoint: %w", err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	c := &Channel{
		conn:         conn,
		logger:       d.logger.With("app_id", params.AppID),
		closeTimeout: d.closeTimeout,
		inbox:        make(chan []byte),
		closeCh:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Channel is one open chat connection.
type Channel struct {
	conn         *gorilla.Conn
	logger       *slog.Logger
	closeTimeout time.Duration

	// connLock serializes writes; gorilla allows one concurrent writer.
	connLock sync.Mutex

	inbox chan []byte

	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error
}

// Send writes one client message as a text frame.
func (c *Channel) Send(ctx context.Context, msg protocol.ClientMessage) error {
	select {
	case <-c.closeCh:
		return c.closeErr
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	err = c.conn.WriteMessage(gorilla.TextMessage, data)
	if errors.Is(err, gorilla.ErrCloseSent) {
		c.closeWithError(protocol.ErrClosed)
		return protocol.ErrClosed
	}
	return err
}

// Receive blocks until the next payload. Payloads read before the remote
// close are always delivered first.
func (c *Channel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closeCh:
		return nil, c.closeErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame, bounded by the close timeout, and drops the connection.
func (c *Channel) Close() error {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.closeErr = protocol.ErrClosed
		close(c.closeCh)
	})
	if !first {
		return nil
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()
	deadline := time.Now().Add(c.closeTimeout)
	err := c.conn.WriteControl(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""), deadline)
	if err != nil && !errors.Is(err, gorilla.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("failed to write close message", "err", err)
	}
	return c.conn.Close()
}

func (c *Channel) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closeCh)
	})
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeWithError(c.readError(err))
			return
		}
		select {
		case c.inbox <- data:
		case <-c.closeCh:
			return
		}
	}
}

func (c *Channel) readError(err error) error {
	var closeErr *gorilla.CloseError
	switch {
	case errors.As(err, &closeErr):
		if closeErr.Code != gorilla.CloseNormalClosure && closeErr.Code != gorilla.CloseGoingAway {
			c.logger.Warn("chat channel closed abnormally", "code", closeErr.Code, "reason", closeErr.Text)
		}
		return fmt.Errorf("%w: %v", protocol.ErrClosed, err)
	case errors.Is(err, net.ErrClosed):
		return protocol.ErrClosed
	default:
		c.logger.Warn("chat channel read failed", "err", err)
		return fmt.Errorf("%w: %v", protocol.ErrClosed, err)
	}
}
