package delivery

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sparkle/client-go/internal/api"
)

// Child is one child of the watched location.
type Child struct {
	// Key is the child's key under the location.
	Key string
	// Value is the child's raw JSON.
	Value json.RawMessage
}

// EventHandler is invoked once per new child. A returned error is logged;
// delivery continues with the next child.
type EventHandler func(ctx context.Context, child Child) error

// Strategy watches one location for added children.
//
// The typical lifecycle is:
//  1. Create a strategy with NewXxxStrategy(cfg)
//  2. Call Start(ctx, path, handler) to begin receiving children
//  3. Call Stop() when done to release resources
//
// Children that exist when Start is called are delivered first. Each child
// is delivered once, in key order within a batch, and handler calls never
// overlap.
type Strategy interface {
	// Start begins watching path. It returns immediately; delivery is
	// asynchronous.
	Start(ctx context.Context, path string, handler EventHandler) error

	// Stop shuts down the strategy. No handler call starts after Stop
	// returns. Stop is idempotent.
	Stop() error

	// Name returns the strategy name for logging and debugging.
	// Examples: "polling", "sse", "auto:sse", "auto:polling"
	Name() string

	// OnReconnect sets a callback that is invoked after each successful
	// stream connection. Polling never calls it.
	OnReconnect(fn func(ctx context.Context))
}

// Config holds configuration shared by all delivery strategies.
type Config struct {
	// APIClient is the client used to reach the database.
	APIClient *api.Client

	// Logger receives connection and handler errors. The zero value
	// discards output.
	Logger zerolog.Logger

	// PollingInitialInterval is the starting interval between polls.
	// If zero, defaults to DefaultPollingInitialInterval.
	PollingInitialInterval time.Duration

	// PollingMaxBackoff is the maximum interval between polls.
	// If zero, defaults to DefaultPollingMaxBackoff.
	PollingMaxBackoff time.Duration

	// PollingBackoffMultiplier is the factor by which the interval
	// increases after each poll with no new children.
	// If zero, defaults to DefaultPollingBackoffMultiplier.
	PollingBackoffMultiplier float64

	// PollingJitterFactor is the maximum random jitter added to
	// poll intervals (as a fraction of the interval).
	// If zero, defaults to DefaultPollingJitterFactor.
	PollingJitterFactor float64

	// SSEConnectionTimeout is the maximum time to wait for a stream
	// to be established before falling back to polling (when using auto mode).
	// If zero, defaults to DefaultSSEConnectionTimeout.
	SSEConnectionTimeout time.Duration

	// SSEReconnectInterval is the wait before the first reconnect. It
	// doubles with each consecutive failure.
	// If zero, defaults to DefaultSSEReconnectInterval.
	SSEReconnectInterval time.Duration

	// SSEMaxReconnectAttempts bounds consecutive failed connections.
	// If zero, defaults to DefaultSSEMaxReconnectAttempts.
	SSEMaxReconnectAttempts int
}

// Default configuration values.
const (
	DefaultPollingInitialInterval   = 2 * time.Second
	DefaultPollingMaxBackoff        = 30 * time.Second
	DefaultPollingBackoffMultiplier = 1.5
	DefaultPollingJitterFactor      = 0.3
	DefaultSSEConnectionTimeout     = 5 * time.Second
	DefaultSSEReconnectInterval     = 5 * time.Second
	DefaultSSEMaxReconnectAttempts  = 10
)

func (c Config) withDefaults() Config {
	if c.PollingInitialInterval == 0 {
		c.PollingInitialInterval = DefaultPollingInitialInterval
	}
	if c.PollingMaxBackoff == 0 {
		c.PollingMaxBackoff = DefaultPollingMaxBackoff
	}
	if c.PollingBackoffMultiplier == 0 {
		c.PollingBackoffMultiplier = DefaultPollingBackoffMultiplier
	}
	if c.PollingJitterFactor == 0 {
		c.PollingJitterFactor = DefaultPollingJitterFactor
	}
	if c.SSEConnectionTimeout == 0 {
		c.SSEConnectionTimeout = DefaultSSEConnectionTimeout
	}
	if c.SSEReconnectInterval == 0 {
		c.SSEReconnectInterval = DefaultSSEReconnectInterval
	}
	if c.SSEMaxReconnectAttempts == 0 {
		c.SSEMaxReconnectAttempts = DefaultSSEMaxReconnectAttempts
	}
	return c
}

// tracker remembers delivered keys so that a child repeated by a reconnect
// or an overlapping poll reaches the handler once.
type tracker struct {
	handler EventHandler
	logger  zerolog.Logger
	stopped atomic.Bool

	mu   sync.Mutex
	seen map[string]struct{}
	last string
}

func newTracker(handler EventHandler, logger zerolog.Logger) *tracker {
	return &tracker{
		handler: handler,
		logger:  logger,
		seen:    make(map[string]struct{}),
	}
}

// deliver hands unseen children to the handler in key order and reports
// how many were delivered.
func (t *tracker) deliver(ctx context.Context, children map[string]json.RawMessage) int {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, k := range keys {
		if _, ok := t.seen[k]; ok {
			continue
		}
		if t.stopped.Load() || ctx.Err() != nil {
			return n
		}
		t.seen[k] = struct{}{}
		if k > t.last {
			t.last = k
		}
		n++
		if t.handler == nil {
			continue
		}
		if err := t.handler(ctx, Child{Key: k, Value: children[k]}); err != nil {
			t.logger.Warn().Err(err).Str("key", k).Msg("child handler failed")
		}
	}
	return n
}

// lastKey returns the greatest key delivered so far.
func (t *tracker) lastKey() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *tracker) stop() {
	t.stopped.Store(true)
}
