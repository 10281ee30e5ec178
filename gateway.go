package apns

import (
	"crypto/tls"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// GatewayConfig configures a GatewayClient's connection to the APNs
// legacy binary gateway.
type GatewayConfig struct {
	Sandbox     bool
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	Logger      *logrus.Entry
}

// GatewayClient is a long-lived handle to the APNs legacy binary
// gateway. It owns a single TLS connection, opened lazily and
// reconnected on demand, plus a background ErrorReader that watches
// for error-response frames and replays the notifications that were
// sent after the one APNs rejected. Every exported method is safe for
// concurrent use by multiple goroutines; internally they all funnel
// through a single send-lock guarding the connection, the send-history,
// and the ErrorReader's handle.
type GatewayClient struct {
	host    string
	config  *tls.Config
	timeout time.Duration
	log     *logrus.Entry

	mu               sync.Mutex
	conn             *TlsConnection
	history          *sendHistory
	reader           *errorReader
	lastActivity     time.Time
	responseListener func(ErrorResponse)
}

// NewGatewayClient returns a GatewayClient for the production or
// sandbox gateway, selected by cfg.Sandbox. The underlying connection
// is not opened until the first Send or SendMultiple.
func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	host := ProductionGateway
	if cfg.Sandbox {
		host = SandboxGateway
	}
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &GatewayClient{
		host:         host,
		config:       cfg.TLSConfig,
		timeout:      timeout,
		log:          loggerOrDefault(cfg.Logger),
		history:      newSendHistory(),
		lastActivity: time.Now(),
	}
}

// RegisterResponseListener installs fn to be called, from the
// ErrorReader goroutine, whenever APNs reports a terminal failure for
// a previously sent notification. Only one listener may be registered
// at a time; a later call replaces an earlier one.
func (g *GatewayClient) RegisterResponseListener(fn func(ErrorResponse)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responseListener = fn
}

// Send encodes a single notification with default expiry and priority
// and sends it, generating an identifier. Use SendWithOptions for
// control over identifier, expiry and priority.
func (g *GatewayClient) Send(tokenHex string, payload *Payload) error {
	return g.SendWithOptions(tokenHex, payload, 0, 0, 10)
}

// SendWithOptions encodes tokenHex/payload/expiry/priority as a single-
// item Command 2 frame and sends it. If identifier is 0, one is
// generated (see nextIdentifier): a caller-supplied 0 would be
// indistinguishable from "no identifier" when the history is later
// searched for it. On a socket error, the send is retried up to
// WriteRetry times with escalating backoff before being logged and
// dropped.
func (g *GatewayClient) SendWithOptions(tokenHex string, payload *Payload, identifier, expiry uint32, priority uint8) error {
	if identifier == 0 {
		identifier = nextIdentifier()
	}

	frame := NewFrame()
	if err := frame.Add(tokenHex, payload, identifier, expiry, priority); err != nil {
		return err
	}
	serialized := frame.Bytes()

	var lastErr error
	for attempt := 0; attempt < WriteRetry; attempt++ {
		if err := g.writeOnce(identifier, serialized); err != nil {
			lastErr = err
			g.log.WithError(err).WithField("identifier", identifier).
				WithField("attempt", attempt+1).
				Warn("sending notification failed, retrying")
			time.Sleep(writeRetryBackoff(attempt))
			continue
		}
		return nil
	}

	g.log.WithField("identifier", identifier).Warn("dropping notification after exhausting retries")
	return lastErr
}

func (g *GatewayClient) writeOnce(identifier uint32, serialized []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureReaderAliveLocked()
	if err := g.ensureConnAliveLocked(); err != nil {
		return err
	}
	if err := g.conn.Write(serialized); err != nil {
		return err
	}
	g.history.append(identifier, serialized)
	g.lastActivity = time.Now()
	return nil
}

// SendMultiple sends every notification already added to frame as one
// Command 2 write. Unlike Send, it does not retry: a caller batching
// many notifications into a frame is expected to handle a failed write
// itself, since retrying would mean re-encoding or duplicating work
// already done by the caller. Every item is recorded in the send-
// history before the write, so a subsequent error-response can still
// trigger a resend of any of them.
func (g *GatewayClient) SendMultiple(frame *Frame) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range frame.Items() {
		g.history.append(n.Identifier, n.Serialized)
	}

	g.ensureReaderAliveLocked()
	if err := g.ensureConnAliveLocked(); err != nil {
		return err
	}
	if err := g.conn.Write(frame.Bytes()); err != nil {
		return err
	}
	g.lastActivity = time.Now()
	return nil
}

// Close stops the background ErrorReader and closes the connection, if
// any. It is idempotent and safe to call even if Send was never
// called.
func (g *GatewayClient) Close() error {
	g.mu.Lock()
	reader := g.reader
	g.mu.Unlock()

	if reader == nil {
		return nil
	}
	reader.cancel()
	<-reader.done
	return nil
}

// ensureReaderAliveLocked must be called with mu held. It starts a new
// ErrorReader if none is running, then waits up to ErrorReaderAliveWait
// for it to report itself alive. The wait happens while mu is held
// because the reader only needs mu for its own brief state checks and
// its read-and-handle pass (see errorReader.run), never for the act of
// starting up.
func (g *GatewayClient) ensureReaderAliveLocked() {
	if g.reader != nil && g.reader.exited() {
		g.reader = nil
	}
	if g.reader == nil {
		g.reader = newErrorReader(g)
		go g.reader.run()
	}

	reader := g.reader
	select {
	case <-reader.alive:
	case <-time.After(ErrorReaderAliveWait):
		g.log.Warn("error-response reader did not report alive in time")
	}
}

// ensureConnAliveLocked must be called with mu held. It opens a fresh
// connection if the current one is nil or no longer alive.
func (g *GatewayClient) ensureConnAliveLocked() error {
	if g.conn != nil && g.conn.IsAlive() {
		return nil
	}
	g.conn = NewTlsConnection(g.host, g.config, g.timeout, g.log)
	return g.conn.Open()
}

// disconnectLocked must be called with mu held.
func (g *GatewayClient) disconnectLocked() {
	if g.conn != nil {
		g.conn.Close()
	}
}

// resendLocked must be called with mu held. It reconnects if needed and
// replays each surviving notification in order, stopping at the first
// failure: that failure will itself surface as a future error-response
// or, after WriteRetry callers' worth of attempts, simply be dropped.
func (g *GatewayClient) resendLocked(serialized [][]byte) {
	for _, b := range serialized {
		if err := g.ensureConnAliveLocked(); err != nil {
			g.log.WithError(err).Warn("could not reconnect to resend notifications")
			return
		}
		if err := g.conn.Write(b); err != nil {
			g.log.WithError(err).Warn("resend failed")
			return
		}
		if ResendDelay > 0 {
			time.Sleep(ResendDelay)
		}
	}
}
