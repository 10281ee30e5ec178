package apns

import (
	"context"
	"errors"
	"time"
)

// errorReader is the background half of the concurrency model: one
// goroutine per GatewayClient, reading unsolicited 6-byte error-response
// frames off the same connection the caller writes to, and driving the
// resend-on-error protocol. It holds a pointer to its GatewayClient and
// works directly on the client's lock, connection, history and listener.
type errorReader struct {
	client *GatewayClient
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	alive  chan struct{}
}

func newErrorReader(client *GatewayClient) *errorReader {
	ctx, cancel := context.WithCancel(context.Background())
	return &errorReader{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		alive:  make(chan struct{}),
	}
}

// exited reports whether run has returned.
func (r *errorReader) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// run is the reader's main loop. It never takes the send-lock for the
// wait-for-readable step, only for the checks of shared state and for
// the read-and-handle pass once data is actually available, so a
// caller's Send is blocked only for the duration of those short
// sections rather than for up to WaitReadTimeout on every iteration.
func (r *errorReader) run() {
	close(r.alive)
	defer func() {
		r.client.mu.Lock()
		if r.client.conn != nil {
			r.client.conn.Close()
		}
		r.client.mu.Unlock()
		close(r.done)
	}()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		r.client.mu.Lock()
		idle := time.Since(r.client.lastActivity) >= IdleTimeout
		if idle {
			r.client.disconnectLocked()
			r.client.history.clear()
		}
		conn := r.client.conn
		r.client.mu.Unlock()

		if idle {
			return
		}

		if conn == nil || !conn.IsAlive() {
			time.Sleep(1 * time.Second)
			continue
		}

		if !conn.WaitReadable(r.ctx, WaitReadTimeout) {
			continue
		}

		select {
		case <-r.ctx.Done():
			return
		default:
		}

		r.handleReadable()
	}
}

// handleReadable runs the read-and-respond pass under the send-lock:
// a 6-byte error-response read, listener dispatch, disconnect, history
// truncation, and resend of the survivors, all as one atomic step from
// the perspective of a concurrent Send.
func (r *errorReader) handleReadable() {
	r.client.mu.Lock()
	defer r.client.mu.Unlock()

	conn := r.client.conn
	if conn == nil || !conn.IsAlive() {
		return
	}

	buf, err := conn.Read(ErrorResponseLength)
	if err != nil && !errors.Is(err, ErrConnectionClosed) {
		if !errors.Is(err, ErrReadTimeout) {
			r.client.log.WithError(err).Debug("apns error-response read failed")
			r.client.disconnectLocked()
		}
		return
	}

	if len(buf) == 0 {
		r.client.disconnectLocked()
		return
	}

	if len(buf) != ErrorResponseLength || buf[0] != errorResponseCommand {
		r.client.log.WithField("bytes", len(buf)).Warn("apns sent an unexpected frame on the error channel")
		r.client.disconnectLocked()
		return
	}

	status := Status(buf[1])
	identifier := unpackU32BE(buf[2:6])
	resp := ErrorResponse{Status: status, Identifier: identifier}

	r.client.log.WithFields(map[string]interface{}{
		"status":     status.String(),
		"identifier": identifier,
	}).Warn("apns error-response received")

	if r.client.responseListener != nil {
		r.client.responseListener(resp)
	}

	r.client.disconnectLocked()

	toResend := r.client.history.truncateAfter(identifier)
	r.client.resendLocked(toResend)
}
