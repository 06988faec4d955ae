package sparkle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultWaitTimeout = 60 * time.Second

	// messageTimeout bounds decrypting one delivered envelope.
	messageTimeout = 30 * time.Second
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	logger       zerolog.Logger
	timeout      time.Duration
	peerCacheTTL time.Duration
	sendLimit    rate.Limit
	sendBurst    int
	registerer   prometheus.Registerer
	onError      func(error)
}

// waitConfig holds configuration for waiting on messages.
type waitConfig struct {
	from      string
	predicate func(*Message) bool
	timeout   time.Duration
}

// Option configures the client.
type Option func(*clientConfig)

// WaitOption configures message waiting.
type WaitOption func(*waitConfig)

// WithLogger sets the logger. Key material and message text are never
// logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithTimeout sets the timeout applied to store calls whose context has no
// deadline.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithPeerCache caches resolved peer keys for ttl. Without it every Peer
// call reads the store.
func WithPeerCache(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.peerCacheTTL = ttl
	}
}

// WithSendRateLimit limits sends across all identities of the client to
// perSecond, allowing bursts of burst.
func WithSendRateLimit(perSecond float64, burst int) Option {
	return func(c *clientConfig) {
		c.sendLimit = rate.Limit(perSecond)
		c.sendBurst = burst
	}
}

// WithMetrics registers the client's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}

// WithErrorHandler sets a callback for failures in background delivery,
// such as an envelope that cannot be decrypted. Calls are not concurrent
// for one identity.
func WithErrorHandler(fn func(error)) Option {
	return func(c *clientConfig) {
		c.onError = fn
	}
}

// WithFrom filters messages by sender identifier.
func WithFrom(identifier string) WaitOption {
	return func(c *waitConfig) {
		c.from = identifier
	}
}

// WithPredicate filters messages by custom predicate.
func WithPredicate(fn func(*Message) bool) WaitOption {
	return func(c *waitConfig) {
		c.predicate = fn
	}
}

// WithWaitTimeout sets the timeout for waiting.
func WithWaitTimeout(timeout time.Duration) WaitOption {
	return func(c *waitConfig) {
		c.timeout = timeout
	}
}

// Matches checks if a message matches the wait criteria.
func (w *waitConfig) Matches(m *Message) bool {
	if w.from != "" && m.From != w.from {
		return false
	}
	if w.predicate != nil && !w.predicate(m) {
		return false
	}
	return true
}
