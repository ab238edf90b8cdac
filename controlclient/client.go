// Package controlclient is an event-driven client for the snowcast control
// protocol. It dials the server, performs the Hello/Welcome handshake and
// reports every later reply to registered handlers from its read goroutine.
package controlclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/snowcast/wire"
)

var (
	// ErrNotConnected is returned when sending on a client that is not connected.
	ErrNotConnected = errors.New("controlclient: not connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("controlclient: client closed")
	// ErrRejected is returned by Hello when the server answers with InvalidCommand.
	ErrRejected = errors.New("controlclient: command rejected")
	// ErrUnexpectedReply is returned by Hello when the first reply is not a Welcome.
	ErrUnexpectedReply = errors.New("controlclient: unexpected reply")
)

// ConnectionState represents the current state of the control connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closed
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is passed to the OnConnectionState handler.
type ConnectionStateEvent struct {
	State     ConnectionState
	Address   string
	Timestamp time.Time
	Error     error
}

// ReplyEvent is passed to the OnReply handler for every server reply.
type ReplyEvent struct {
	Reply     wire.Reply
	Timestamp time.Time
}

// ErrorEvent is passed to the OnError handler.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// ConnectionStateHandler is called when the connection state changes.
type ConnectionStateHandler func(event ConnectionStateEvent)

// ReplyHandler is called for each reply, in arrival order.
type ReplyHandler func(event ReplyEvent)

// ErrorHandler is called on read and write errors.
type ErrorHandler func(event ErrorEvent)

// Config holds client settings.
type Config struct {
	// Address is the server "host:port".
	Address string
	// ConnectionTimeout bounds the dial.
	ConnectionTimeout time.Duration
	// WriteTimeout bounds each command write; 0 means no timeout.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the wait for Welcome in Hello.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns a Config with 10 second timeouts.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// Client is a control connection. Handlers run on the read goroutine, one at
// a time, so replies are observed in the order the server sent them. The
// server closes the connection after any protocol violation and the client
// does not reconnect.
type Client struct {
	config Config
	conn   net.Conn
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onReply           ReplyHandler
	onError           ErrorHandler

	mu       sync.RWMutex
	awaiting chan wire.Reply
	done     chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// New creates a disconnected client.
func New(config Config) *Client {
	return &Client{config: config, state: Disconnected}
}

// OnConnectionState registers the connection state handler, replacing any
// previous one.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnReply registers the reply handler, replacing any previous one.
func (c *Client) OnReply(handler ReplyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReply = handler
}

// OnError registers the error handler, replacing any previous one.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the server and starts the read goroutine.
//
// Parameters:
//   - ctx: Cancels the dial
//
// Returns:
//   - ErrClosed after Close, an error if already connected, or the dial error
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return errors.New("controlclient: already connected or connecting")
	}
	c.mu.Unlock()

	c.setState(Connecting, nil)

	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return fmt.Errorf("dial %s: %w", c.config.Address, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn, done)

	return nil
}

// Hello performs the handshake.
//
// Parameters:
//   - ctx: Cancels the wait for Welcome
//   - udpPort: The datagram port the listener receives audio on
//
// Returns:
//   - The number of stations the server offers
//   - ErrRejected wrapping the server's reason, ErrUnexpectedReply, or a
//     connection error
func (c *Client) Hello(ctx context.Context, udpPort uint16) (uint16, error) {
	wait := make(chan wire.Reply, 1)
	c.mu.Lock()
	c.awaiting = wait
	done := c.done
	c.mu.Unlock()

	if err := c.Send(wire.NewHello(udpPort)); err != nil {
		return 0, err
	}

	timeout := c.config.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultConfig("").HandshakeTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-wait:
		switch reply.Kind {
		case wire.Welcome:
			return reply.StationCount, nil
		case wire.InvalidCommand:
			return 0, fmt.Errorf("%w: %s", ErrRejected, reply.Text)
		default:
			return 0, fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Kind)
		}
	case <-done:
		return 0, ErrNotConnected
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, errors.New("controlclient: timed out waiting for welcome")
	}
}

// SetStation asks the server to tune to station. The Announce (or
// InvalidCommand) arrives through the reply handler.
func (c *Client) SetStation(station uint16) error {
	return c.Send(wire.NewSetStation(station))
}

// Send writes one command frame.
//
// Returns:
//   - ErrNotConnected, or the write error
func (c *Client) Send(cmd wire.Command) error {
	c.mu.RLock()
	conn := c.conn
	state := c.state
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	frame := wire.EncodeCommand(cmd)
	if _, err := conn.Write(frame[:]); err != nil {
		c.emitError(err)
		return fmt.Errorf("send %s: %w", cmd.Kind, err)
	}

	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Done is closed when the read goroutine of the current connection exits. It
// is nil before Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.done
}

// Close closes the connection and waits for the read goroutine. It is safe
// to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.setState(Closed, nil)

	return err
}

func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	for {
		reply, err := wire.ReadReply(conn)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.conn = nil
			c.mu.Unlock()

			if !closed {
				c.emitError(err)
				c.setState(Disconnected, err)
			}
			_ = conn.Close()
			return
		}

		c.mu.Lock()
		wait := c.awaiting
		c.awaiting = nil
		c.mu.Unlock()
		if wait != nil {
			wait <- reply
		}

		c.emitReply(reply)
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	if handler != nil {
		handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitReply(reply wire.Reply) {
	c.mu.RLock()
	handler := c.onReply
	c.mu.RUnlock()

	if handler != nil {
		handler(ReplyEvent{Reply: reply, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}
