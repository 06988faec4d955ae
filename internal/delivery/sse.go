package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sparkle/client-go/internal/api"
)

// SSEStrategy delivers children from a server-sent event stream on the
// watched location.
type SSEStrategy struct {
	cfg Config

	mu            sync.RWMutex
	tracker       *tracker
	cancel        context.CancelFunc
	onReconnect   func(ctx context.Context)
	attempts      int
	connected     chan struct{}
	connectedOnce sync.Once
	done          chan struct{}
	lastError     error
}

// NewSSEStrategy creates a new SSE strategy.
func NewSSEStrategy(cfg Config) *SSEStrategy {
	return &SSEStrategy{
		cfg:       cfg.withDefaults(),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Name returns the strategy name.
func (s *SSEStrategy) Name() string {
	return "sse"
}

// Connected returns a channel that's closed when the first stream is
// established.
func (s *SSEStrategy) Connected() <-chan struct{} {
	return s.connected
}

// Done returns a channel that's closed when the strategy stops for good,
// either through Stop or after too many failed connections.
func (s *SSEStrategy) Done() <-chan struct{} {
	return s.done
}

// LastError returns the last connection error, if any.
func (s *SSEStrategy) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// OnReconnect sets the callback invoked after each successful connection.
func (s *SSEStrategy) OnReconnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onReconnect = fn
	s.mu.Unlock()
}

// Start begins listening on path.
func (s *SSEStrategy) Start(ctx context.Context, path string, handler EventHandler) error {
	if s.cfg.APIClient == nil {
		return errors.New("sse strategy: API client is nil")
	}

	s.mu.Lock()
	if s.tracker != nil {
		s.mu.Unlock()
		return errors.New("sse strategy: already started")
	}
	s.tracker = newTracker(handler, s.cfg.Logger)
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.connectLoop(ctx, path)
	return nil
}

// Stop shuts down the strategy.
func (s *SSEStrategy) Stop() error {
	s.mu.RLock()
	t, cancel := s.tracker, s.cancel
	s.mu.RUnlock()

	if t != nil {
		t.stop()
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *SSEStrategy) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
}

func (s *SSEStrategy) connectLoop(ctx context.Context, path string) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connect(ctx, path)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.setError(err)
			s.cfg.Logger.Debug().Err(err).Str("path", path).Int("attempt", s.attempts+1).Msg("event stream failed")
		}

		s.attempts++
		if s.attempts >= s.cfg.SSEMaxReconnectAttempts {
			s.cfg.Logger.Warn().Err(err).Str("path", path).Msg("giving up on event stream")
			return
		}

		wait := s.cfg.SSEReconnectInterval * time.Duration(1<<(s.attempts-1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// connect holds one stream open until it ends. A clean end of stream
// returns nil and still counts toward the reconnect backoff.
func (s *SSEStrategy) connect(ctx context.Context, path string) error {
	resp, err := s.cfg.APIClient.OpenStream(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	s.attempts = 0
	s.connectedOnce.Do(func() {
		close(s.connected)
	})

	s.mu.RLock()
	onReconnect, t := s.onReconnect, s.tracker
	s.mu.RUnlock()
	if onReconnect != nil {
		onReconnect(ctx)
	}

	events := api.NewEventReader(resp.Body)
	for {
		ev, err := events.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		children, err := childrenFromEvent(ev)
		if err != nil {
			s.cfg.Logger.Debug().Err(err).Str("event", ev.Event).Msg("skipping malformed event")
			continue
		}
		if len(children) > 0 {
			t.deliver(ctx, children)
		}
	}
}

// childrenFromEvent extracts the added children from a put or patch on the
// watched location. Changes below a child are not additions and are ignored.
func childrenFromEvent(ev *api.StreamEvent) (map[string]json.RawMessage, error) {
	if ev.Event != api.EventPut && ev.Event != api.EventPatch {
		return nil, nil
	}

	rel := strings.Trim(ev.Path, "/")
	if rel == "" {
		if isNull(ev.Data) {
			return nil, nil
		}
		var children map[string]json.RawMessage
		if err := json.Unmarshal(ev.Data, &children); err != nil {
			return nil, fmt.Errorf("%s at root is not an object: %w", ev.Event, err)
		}
		for k, v := range children {
			if isNull(v) {
				delete(children, k)
			}
		}
		return children, nil
	}

	if ev.Event != api.EventPut || strings.Contains(rel, "/") || isNull(ev.Data) {
		return nil, nil
	}
	return map[string]json.RawMessage{rel: ev.Data}, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
