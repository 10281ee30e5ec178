package apns

import (
	"crypto/tls"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// FeedbackRecord is one (token, fail_time) pair reported by the
// feedback service for a token that has stopped being reachable.
type FeedbackRecord struct {
	Token    string
	FailTime time.Time
}

// FeedbackConfig configures a FeedbackClient's connection to the
// feedback service.
type FeedbackConfig struct {
	Sandbox     bool
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	Logger      *logrus.Entry
}

// FeedbackClient drains the APNs feedback service: a stream of tokens
// that APNs has determined are no longer reachable, each with the time
// the device was first observed as unreachable.
type FeedbackClient struct {
	host   string
	config *tls.Config
	dial   time.Duration
	log    *logrus.Entry
}

// NewFeedbackClient returns a FeedbackClient for the production or
// sandbox feedback endpoint, selected by cfg.Sandbox.
func NewFeedbackClient(cfg FeedbackConfig) *FeedbackClient {
	host := ProductionFeedback
	if cfg.Sandbox {
		host = SandboxFeedback
	}
	dial := cfg.DialTimeout
	if dial == 0 {
		dial = FeedbackReadTimeout
	}
	return &FeedbackClient{
		host:   host,
		config: cfg.TLSConfig,
		dial:   dial,
		log:    loggerOrDefault(cfg.Logger),
	}
}

// Stream connects to the feedback service and returns every
// (token, fail_time) record it reports before closing the connection.
// The feedback service always closes after it has exhausted pending
// records, so Stream returns a finite slice. A FeedbackClient is not
// restartable mid-stream: call Stream again for a fresh one.
func (f *FeedbackClient) Stream() ([]FeedbackRecord, error) {
	conn := NewTlsConnection(f.host, f.config, f.dial, f.log)
	if err := conn.Open(); err != nil {
		return nil, err
	}
	defer conn.Close()

	var records []FeedbackRecord
	var buf []byte

	for {
		chunk, err := conn.Read(FeedbackReadSize)
		buf = append(buf, chunk...)

		for len(buf) >= ErrorResponseLength {
			tokenLength := unpackU16BE(buf[4:6])
			recordLength := ErrorResponseLength + int(tokenLength)
			if len(buf) < recordLength {
				break
			}

			failTime := time.Unix(int64(unpackU32BE(buf[0:4])), 0).UTC()
			token := buf[6:recordLength]
			if tokenLength != TokenLength {
				return records, errors.New("apns: feedback token length must be 32 bytes")
			}

			records = append(records, FeedbackRecord{
				Token:    hex.EncodeToString(token),
				FailTime: failTime,
			})
			buf = buf[recordLength:]
		}

		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				return records, nil
			}
			return records, err
		}
		if len(chunk) == 0 {
			return records, nil
		}
	}
}
