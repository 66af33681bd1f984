package chain

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// transportConfig holds the HTTP settings behind a Client.
type transportConfig struct {
	timeout      time.Duration
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	log          *zap.Logger
}

// TransportOption configures NewHTTPClient.
type TransportOption func(*transportConfig)

// NewHTTPClient returns the *http.Client used by NewEVMClient. Defaults:
//
//   - timeout:  15 seconds per attempt
//   - retryMax: 0, so a request is sent exactly once
//
// Raising retryMax makes the transport replay requests that failed at the
// connection level or with a 5xx. That is a caller's policy decision; the
// JSON-RPC layer above never retries.
func NewHTTPClient(opts ...TransportOption) *http.Client {
	cfg := transportConfig{
		timeout:      15 * time.Second,
		retryMax:     0,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	if cfg.log != nil {
		rc.Logger = leveledLogger{cfg.log.Sugar()}
	}
	rc.HTTPClient.Timeout = cfg.timeout
	rc.RetryMax = cfg.retryMax
	rc.RetryWaitMin = cfg.retryWaitMin
	rc.RetryWaitMax = cfg.retryWaitMax
	// Hand the last response back instead of a "giving up" error so the
	// JSON-RPC layer can report the real status and body.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// WithTimeout bounds a single HTTP attempt.
func WithTimeout(d time.Duration) TransportOption {
	return func(c *transportConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a failed attempt is replayed.
func WithRetries(n int) TransportOption {
	return func(c *transportConfig) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

// WithRetryWait sets the backoff bounds between replays.
func WithRetryWait(min, max time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.retryWaitMin = min
		c.retryWaitMax = max
	}
}

// WithTransportLogger routes retryablehttp's own messages to l.
func WithTransportLogger(l *zap.Logger) TransportOption {
	return func(c *transportConfig) {
		c.log = l
	}
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
