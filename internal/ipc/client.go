package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/logger"
)

var (
	// ErrHelperUnavailable is returned when the helper cannot be reached
	// within the retry budget
	ErrHelperUnavailable = errors.New("helper unavailable")
	// ErrHandshake is returned when the helper rejects the connection
	ErrHandshake = errors.New("helper handshake failed")
)

// ClientOptions controls connection and reconnection behavior
type ClientOptions struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	// Cooldown is how long Send stays in fail-fast mode after a reconnect
	// budget runs out before another reconnect is attempted
	Cooldown time.Duration
}

// DefaultClientOptions returns the options used when nothing is configured
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:    2 * time.Second,
		Retries:    3,
		RetryDelay: 200 * time.Millisecond,
		Cooldown:   5 * time.Second,
	}
}

// Client sends pointer operations to the helper. After the handshake the
// protocol is one-way, so Send never waits for the helper to inject.
// Reconnection happens on a background goroutine; Send drops operations
// until it succeeds.
type Client struct {
	socketPath string
	opts       ClientOptions

	mu           sync.Mutex
	conn         net.Conn
	seq          uint64
	reconnecting bool
	retryAfter   time.Time
	closed       bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClient creates a helper client; call Connect before Send
func NewClient(socketPath string, opts ClientOptions) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultClientOptions().Timeout
	}
	return &Client{socketPath: socketPath, opts: opts, stop: make(chan struct{})}
}

// SocketPath returns the helper socket path
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Connect dials the helper and performs the handshake
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		conn.Close()
		return fmt.Errorf("%w: client closed", ErrHelperUnavailable)
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	logger.Debugf("Connected to helper at %s", c.socketPath)
	return nil
}

// dial opens and handshakes a new connection without touching the client state
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to helper at %s: %w", c.socketPath, err)
	}

	if err := handshake(conn, c.opts.Timeout); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func handshake(conn net.Conn, timeout time.Duration) error {
	_ = conn.SetDeadline(time.Now().Add(timeout))
	defer conn.SetDeadline(time.Time{})

	if err := WriteMessage(conn, NewHelloMessage()); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	reply, err := ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	switch {
	case reply.Type == MsgError:
		return fmt.Errorf("%w: %s", ErrHandshake, reply.Error)
	case reply.Type != MsgHelloAck:
		return fmt.Errorf("%w: unexpected %s", ErrHandshake, reply.Type)
	case reply.Version != ProtocolVersion:
		return fmt.Errorf("%w: helper speaks version %d, want %d", ErrHandshake, reply.Version, ProtocolVersion)
	}
	return nil
}

// Send delivers one operation. It never blocks on reconnection: when the
// connection is gone the operation is dropped with ErrHelperUnavailable and a
// background reconnect is started, at most one at a time and not before the
// cooldown that follows an exhausted retry budget.
func (c *Client) Send(ctx context.Context, op gesture.PointerOp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	msg, err := NewPointerMessage(op, c.seq)
	if err != nil {
		return err
	}

	if c.conn != nil {
		err := c.write(msg)
		if err == nil {
			return nil
		}
		logger.Warnf("Helper write failed, reconnecting: %v", err)
	}

	c.reconnectLocked(ctx)
	return fmt.Errorf("%w: %s dropped while disconnected", ErrHelperUnavailable, op)
}

func (c *Client) reconnectLocked(ctx context.Context) {
	if c.closed || c.reconnecting || time.Now().Before(c.retryAfter) {
		return
	}
	c.reconnecting = true
	c.wg.Add(1)
	go c.reconnect(ctx)
}

// reconnect runs the retry budget. On success the new connection is installed;
// on exhaustion Send fails fast until the cooldown has passed.
func (c *Client) reconnect(ctx context.Context) {
	defer c.wg.Done()

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.finishReconnect(nil)
				return
			case <-c.stop:
				c.finishReconnect(nil)
				return
			case <-time.After(c.opts.RetryDelay):
			}
		}

		var conn net.Conn
		if conn, lastErr = c.dial(ctx); lastErr != nil {
			logger.Debugf("Helper reconnect attempt %d/%d failed: %v", attempt+1, c.opts.Retries+1, lastErr)
			continue
		}
		if c.finishReconnect(conn) {
			logger.Info("Reconnected to helper", "socket", c.socketPath)
		}
		return
	}

	c.mu.Lock()
	c.reconnecting = false
	c.retryAfter = time.Now().Add(c.opts.Cooldown)
	c.mu.Unlock()
	logger.Error("Helper unreachable, dropping pointer operations", "socket", c.socketPath, "retry_in", c.opts.Cooldown, "err", lastErr)
}

// finishReconnect installs conn unless the client was closed meanwhile
func (c *Client) finishReconnect(conn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnecting = false
	if conn == nil {
		return false
	}
	if c.closed {
		conn.Close()
		return false
	}
	c.conn = conn
	c.retryAfter = time.Time{}
	return true
}

func (c *Client) write(msg *Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
	if err := WriteMessage(c.conn, msg); err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Close closes the connection and waits for a pending reconnect to stop
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.stopOnce.Do(func() { close(c.stop) })
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	return err
}
