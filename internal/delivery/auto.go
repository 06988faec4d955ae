package delivery

import (
	"context"
	"sync"
	"time"
)

// AutoStrategy tries a stream first and falls back to polling when the
// stream does not connect in time.
type AutoStrategy struct {
	cfg Config

	mu          sync.RWMutex
	current     Strategy
	onReconnect func(ctx context.Context)
}

// NewAutoStrategy creates a new auto strategy.
func NewAutoStrategy(cfg Config) *AutoStrategy {
	return &AutoStrategy{
		cfg: cfg.withDefaults(),
	}
}

// Name returns the strategy name.
func (a *AutoStrategy) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current != nil {
		return "auto:" + a.current.Name()
	}
	return "auto"
}

// OnReconnect sets the callback forwarded to the stream.
func (a *AutoStrategy) OnReconnect(fn func(ctx context.Context)) {
	a.mu.Lock()
	a.onReconnect = fn
	a.mu.Unlock()
}

// Start blocks until the stream connects, the connection timeout elapses or
// ctx is done.
func (a *AutoStrategy) Start(ctx context.Context, path string, handler EventHandler) error {
	sse := NewSSEStrategy(a.cfg)
	a.mu.RLock()
	if a.onReconnect != nil {
		sse.OnReconnect(a.onReconnect)
	}
	a.mu.RUnlock()

	if err := sse.Start(ctx, path, handler); err != nil {
		return a.startPolling(ctx, path, handler)
	}

	timer := time.NewTimer(a.cfg.SSEConnectionTimeout)
	defer timer.Stop()

	select {
	case <-sse.Connected():
		a.setCurrent(sse)
		return nil
	case <-sse.Done():
	case <-timer.C:
	case <-ctx.Done():
	}
	sse.Stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	a.cfg.Logger.Info().Err(sse.LastError()).Msg("event stream unavailable, falling back to polling")
	return a.startPolling(ctx, path, handler)
}

func (a *AutoStrategy) startPolling(ctx context.Context, path string, handler EventHandler) error {
	polling := NewPollingStrategy(a.cfg)
	if err := polling.Start(ctx, path, handler); err != nil {
		return err
	}
	a.setCurrent(polling)
	return nil
}

func (a *AutoStrategy) setCurrent(s Strategy) {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
}

// Stop shuts down the active strategy.
func (a *AutoStrategy) Stop() error {
	a.mu.RLock()
	current := a.current
	a.mu.RUnlock()
	if current != nil {
		return current.Stop()
	}
	return nil
}
