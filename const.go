package apns

import "time"

// Gateway and feedback endpoints, production and sandbox. Grounded on
// cfilipov-go-apns/connection.go's pushHosts/feedbackHosts arrays.
const (
	ProductionGateway = "gateway.push.apple.com:2195"
	SandboxGateway    = "gateway.sandbox.push.apple.com:2195"

	ProductionFeedback = "feedback.push.apple.com:2196"
	SandboxFeedback    = "feedback.sandbox.push.apple.com:2196"
)

// Protocol and timing constants lifted from the reference implementation
// (model/connections.py).
const (
	// MaxPayloadLength is the largest a Payload's JSON encoding may be.
	MaxPayloadLength = 4096

	// TokenLength is the binary length, in bytes, of a device token.
	TokenLength = 32

	// ErrorResponseLength is the wire size of an APNs error-response frame.
	ErrorResponseLength = 6

	// SendHistoryCapacity bounds the GatewayClient's send-history ring.
	SendHistoryCapacity = 100000

	// WaitWriteTimeout is how long a write waits for the socket to become
	// writable before giving up silently.
	WaitWriteTimeout = 10 * time.Second

	// WaitReadTimeout is how long the ErrorReader waits for the connection
	// to become readable on each poll.
	WaitReadTimeout = 10 * time.Second

	// IdleTimeout is how long a GatewayClient may go without activity
	// before the ErrorReader tears the connection down.
	IdleTimeout = 30 * time.Second

	// ErrorReaderAliveWait bounds how long Send waits for a freshly
	// spawned ErrorReader to report itself alive.
	ErrorReaderAliveWait = 10 * time.Second

	// WriteRetry is the number of times Send retries a socket error
	// before giving up and logging the notification as dropped.
	WriteRetry = 3

	// ConnectRetry is the number of TCP connect attempts tolerated before
	// ConnectTimeout is raised to the caller.
	ConnectRetry = 3

	// ResendDelay is the pause between each resent notification. The
	// reference implementation hard-codes this to zero.
	ResendDelay = 0

	// FeedbackReadSize is the chunk size used when draining the feedback
	// service's TLS stream.
	FeedbackReadSize = 4096

	// FeedbackReadTimeout is the connect timeout a FeedbackClient uses when
	// its FeedbackConfig leaves DialTimeout at zero. Reads from the
	// feedback service are bounded by WaitReadTimeout.
	FeedbackReadTimeout = 5 * time.Second

	// errorResponseCommand is the command byte every error-response frame
	// begins with.
	errorResponseCommand = 8
)

// writeRetryBackoff returns the escalating backoff used between write
// retries: 10 + 2*attempt seconds. The delay is intentionally long
// enough for a pending error-response to be read and acted upon by the
// ErrorReader before the next attempt.
func writeRetryBackoff(attempt int) time.Duration {
	return time.Duration(10+2*attempt) * time.Second
}
