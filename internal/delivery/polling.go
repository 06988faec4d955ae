package delivery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// PollingStrategy delivers children by listing the watched location
// periodically. The interval grows while nothing new arrives and resets
// when a poll finds new children.
type PollingStrategy struct {
	cfg Config

	mu       sync.Mutex
	tracker  *tracker
	cancel   context.CancelFunc
	interval time.Duration
}

// NewPollingStrategy creates a new polling strategy.
func NewPollingStrategy(cfg Config) *PollingStrategy {
	cfg = cfg.withDefaults()
	return &PollingStrategy{
		cfg:      cfg,
		interval: cfg.PollingInitialInterval,
	}
}

// Name returns the strategy name.
func (p *PollingStrategy) Name() string {
	return "polling"
}

// OnReconnect is a no-op; polling keeps no connection.
func (p *PollingStrategy) OnReconnect(func(ctx context.Context)) {}

// Start begins polling path.
func (p *PollingStrategy) Start(ctx context.Context, path string, handler EventHandler) error {
	if p.cfg.APIClient == nil {
		return errors.New("polling strategy: API client is nil")
	}

	p.mu.Lock()
	if p.tracker != nil {
		p.mu.Unlock()
		return errors.New("polling strategy: already started")
	}
	p.tracker = newTracker(handler, p.cfg.Logger)
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.pollLoop(ctx, path)
	return nil
}

// Stop shuts down the strategy.
func (p *PollingStrategy) Stop() error {
	p.mu.Lock()
	t, cancel := p.tracker, p.cancel
	p.mu.Unlock()

	if t != nil {
		t.stop()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (p *PollingStrategy) pollLoop(ctx context.Context, path string) {
	for {
		if ctx.Err() != nil {
			return
		}

		p.poll(ctx, path)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.waitDuration()):
		}
	}
}

func (p *PollingStrategy) poll(ctx context.Context, path string) {
	children, err := p.cfg.APIClient.Children(ctx, path, p.tracker.lastKey())
	if err != nil {
		if ctx.Err() == nil {
			p.cfg.Logger.Debug().Err(err).Str("path", path).Msg("poll failed")
		}
		p.backoff()
		return
	}

	if p.tracker.deliver(ctx, children) > 0 {
		p.interval = p.cfg.PollingInitialInterval
		return
	}
	p.backoff()
}

func (p *PollingStrategy) backoff() {
	next := time.Duration(float64(p.interval) * p.cfg.PollingBackoffMultiplier)
	if next > p.cfg.PollingMaxBackoff {
		next = p.cfg.PollingMaxBackoff
	}
	p.interval = next
}

func (p *PollingStrategy) waitDuration() time.Duration {
	jitter := time.Duration(rand.Float64() * p.cfg.PollingJitterFactor * float64(p.interval))
	return p.interval + jitter
}
