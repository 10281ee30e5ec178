package apns

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnState is one of the states a TlsConnection may be in. Only Alive
// may be read from or written to.
type ConnState uint8

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateHandshaking
	StateAlive
	StateClosing
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateAlive:
		return "alive"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// TlsConnection is a single-peer TLS client to an APNs host. It is not
// safe for concurrent use by multiple goroutines; GatewayClient and
// ErrorReader serialize their access to it through a shared send-lock.
type TlsConnection struct {
	host    string
	config  *tls.Config
	timeout time.Duration
	log     *logrus.Entry

	conn         *tls.Conn
	buf          *bufio.Reader
	state        ConnState
	lastActivity time.Time
}

// NewTlsConnection returns a TlsConnection for host, not yet opened.
// timeout bounds both the TCP connect and the TLS handshake.
func NewTlsConnection(host string, config *tls.Config, timeout time.Duration, log *logrus.Entry) *TlsConnection {
	return &TlsConnection{
		host:    host,
		config:  config,
		timeout: timeout,
		log:     loggerOrDefault(log),
		state:   StateDisconnected,
	}
}

// State returns the connection's current state.
func (c *TlsConnection) State() ConnState { return c.state }

// IsAlive reports whether the connection may currently be read from or
// written to.
func (c *TlsConnection) IsAlive() bool { return c.state == StateAlive }

// LastActivity returns the time of the most recent successful read or
// write, or the zero time if the connection has never been opened.
func (c *TlsConnection) LastActivity() time.Time { return c.lastActivity }

// Open establishes the TCP connection and runs the TLS handshake,
// retrying the TCP connect up to ConnectRetry times if it times out.
// Any other connect error, or a handshake failure, propagates
// immediately without retry.
func (c *TlsConnection) Open() error {
	c.state = StateConnecting

	var nc net.Conn
	var err error
	dialer := net.Dialer{Timeout: c.timeout}
	for attempt := 0; attempt < ConnectRetry; attempt++ {
		nc, err = dialer.Dial("tcp", c.host)
		if err == nil {
			break
		}
		var netErr net.Error
		if !(errors.As(err, &netErr) && netErr.Timeout()) {
			c.state = StateDisconnected
			return err
		}
	}
	if err != nil {
		c.state = StateDisconnected
		return &ConnectTimeoutError{Host: c.host, Err: err}
	}

	c.state = StateHandshaking
	tlsConn := tls.Client(nc, c.config)
	if c.timeout > 0 {
		tlsConn.SetDeadline(time.Now().Add(c.timeout))
	}
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		c.state = StateDisconnected
		return &TLSHandshakeError{Host: c.host, Err: err}
	}
	tlsConn.SetDeadline(time.Time{})

	c.conn = tlsConn
	c.buf = bufio.NewReader(tlsConn)
	c.state = StateAlive
	c.lastActivity = time.Now()
	c.log.WithField("host", c.host).Debug("apns connection established")
	return nil
}

// WaitReadable blocks until at least one byte is available to read, the
// peer closes, timeout elapses, or ctx is cancelled, without consuming
// any bytes. It lets ErrorReader wait for incoming data without holding
// the send-lock, mirroring the select() wait in the original
// implementation, while still reacting promptly to Close(). The
// underlying peek runs in its own goroutine since net.Conn has no way
// to cancel a pending Read; if ctx is cancelled or timeout elapses
// first, that goroutine is abandoned and exits on its own once data
// does arrive or the peer closes.
func (c *TlsConnection) WaitReadable(ctx context.Context, timeout time.Duration) bool {
	if !c.IsAlive() {
		return false
	}

	type result struct {
		err error
	}
	ch := make(chan result, 1)
	buf := c.buf
	go func() {
		_, err := buf.Peek(1)
		ch <- result{err}
	}()

	select {
	case res := <-ch:
		return res.err == nil || errors.Is(res.err, io.EOF)
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}

// Read returns up to n bytes from the TLS session. A clean peer close
// yields ErrConnectionClosed; a read that doesn't complete within
// WaitReadTimeout yields ErrReadTimeout.
func (c *TlsConnection) Read(n int) ([]byte, error) {
	if !c.IsAlive() {
		return nil, ErrNoConnection
	}

	c.conn.SetReadDeadline(time.Now().Add(WaitReadTimeout))
	buf := make([]byte, n)
	read, err := c.buf.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return buf[:read], ErrConnectionClosed
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return buf[:read], ErrReadTimeout
		}
		return buf[:read], err
	}
	if read == 0 {
		return buf[:0], ErrConnectionClosed
	}
	c.lastActivity = time.Now()
	return buf[:read], nil
}

// Write waits up to WaitWriteTimeout for the socket to become writable
// and, once ready, writes all of b, looping internally over short
// writes. If the socket never becomes writable within the timeout, the
// write is logged and silently dropped: the caller sees no error.
func (c *TlsConnection) Write(b []byte) error {
	if !c.IsAlive() {
		return ErrNoConnection
	}

	c.conn.SetWriteDeadline(time.Now().Add(WaitWriteTimeout))
	written := 0
	for written < len(b) {
		n, err := c.conn.Write(b[written:])
		written += n
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.log.WithField("host", c.host).Warn("write socket not ready after timeout, dropping write")
				return nil
			}
			return err
		}
	}
	c.conn.SetWriteDeadline(time.Time{})
	c.lastActivity = time.Now()
	return nil
}

// Close is idempotent: calling it after the connection is already
// Disconnected has no effect and never errors.
func (c *TlsConnection) Close() error {
	if c.state == StateDisconnected {
		return nil
	}
	c.state = StateClosing
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
		c.buf = nil
	}
	c.state = StateDisconnected
	return err
}
