package rtsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

type DialParams struct {
	MaxReconnectAttempts int
	DialTimeout          time.Duration
}

// Conn is a TCP control connection. Physical writes are serialised by
// one lock and physical reads by another so any number of goroutines
// may call SendAndReceive at the same time.
//
// Responses are read in the order requests were written. Once a caller
// gives up on its response the connection reports ErrConnectionClosed
// and must be redialled.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
	readSem chan struct{}
	logger  *logrus.Logger

	mu  sync.Mutex
	err error
}

// Dial connects to a receiver, retrying with exponential backoff.
func Dial(ctx context.Context, address string, params *DialParams, logger *logrus.Logger) (*Conn, error) {
	var netConn net.Conn
	attempt := func() error {
		dialer := net.Dialer{Timeout: params.DialTimeout}
		c, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			logger.Debug("dial attempt to ", address, " failed: ", err)
			return err
		}
		netConn = c
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(params.MaxReconnectAttempts)),
		ctx,
	)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewConn(netConn, logger), nil
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn, logger *logrus.Logger) *Conn {
	return &Conn{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		readSem: make(chan struct{}, 1),
		logger:  logger,
	}
}

func (c *Conn) LocalIP() string {
	return hostOf(c.conn.LocalAddr())
}

func (c *Conn) RemoteIP() string {
	return hostOf(c.conn.RemoteAddr())
}

func (c *Conn) SendAndReceive(ctx context.Context, req *Request) (*Response, error) {
	if err := c.broken(); err != nil {
		return nil, err
	}
	if err := c.write(ctx, req); err != nil {
		return nil, err
	}
	return c.read(ctx)
}

func (c *Conn) Close() error {
	c.fail(ErrConnectionClosed)
	return c.conn.Close()
}

func (c *Conn) write(ctx context.Context, req *Request) error {
	payload := EncodeRequest(req)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.Write(payload); err != nil {
		c.fail(err)
		return fmt.Errorf("write %s %s: %w", req.Method, req.URI, err)
	}
	return nil
}

func (c *Conn) read(ctx context.Context) (*Response, error) {
	select {
	case c.readSem <- struct{}{}:
	case <-ctx.Done():
		c.abandon(ctx.Err())
		return nil, ctx.Err()
	}
	defer func() { <-c.readSem }()

	if err := c.broken(); err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()
	c.conn.SetReadDeadline(deadline)
	var cancelMu sync.Mutex
	finished := false
	stop := context.AfterFunc(ctx, func() {
		cancelMu.Lock()
		defer cancelMu.Unlock()
		if !finished {
			c.conn.SetReadDeadline(time.Now())
		}
	})
	defer func() {
		stop()
		cancelMu.Lock()
		finished = true
		cancelMu.Unlock()
	}()

	if _, err := c.reader.Peek(1); err != nil {
		if isTimeout(err) {
			c.abandon(contextError(ctx))
			return nil, fmt.Errorf("wait for response: %w", contextError(ctx))
		}
		c.fail(err)
		return nil, fmt.Errorf("wait for response: %w", err)
	}

	resp, err := ReadResponse(c.reader)
	if err != nil {
		c.logger.Warn("control connection lost mid frame: ", err)
		c.fail(err)
		if isTimeout(err) {
			return nil, fmt.Errorf("read response: %w", contextError(ctx))
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// abandon marks the connection broken after a request was written but
// its response will never be read. A late response would otherwise be
// read in place of the next request's response, shifting every later
// exchange by one frame.
func (c *Conn) abandon(err error) {
	c.logger.Warn("abandoning control connection with a response outstanding: ", err)
	c.fail(fmt.Errorf("response abandoned: %w", err))
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) broken() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	if errors.Is(c.err, ErrConnectionClosed) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, c.err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// contextError maps a network deadline onto the context outcome that
// caused it.
func contextError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.DeadlineExceeded
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
