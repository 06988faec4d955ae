// Package rtdb implements store.Store on a Firebase-style realtime database
// through its REST interface.
//
// Each path maps to "<base>/<path>.json". Push uses POST, so child keys are
// generated by the server and sort in creation order. Child-added
// subscriptions stream the path and fall back to polling where streaming is
// unavailable.
package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sparkle/client-go/internal/api"
	"github.com/sparkle/client-go/internal/delivery"
	"github.com/sparkle/client-go/store"
)

// DeliveryMode selects how subscriptions learn about new children.
type DeliveryMode string

const (
	// DeliveryModeAuto streams and falls back to polling.
	DeliveryModeAuto DeliveryMode = "auto"
	// DeliveryModeSSE only streams.
	DeliveryModeSSE DeliveryMode = "sse"
	// DeliveryModePolling only polls.
	DeliveryModePolling DeliveryMode = "polling"
)

// Config describes a database for Dial.
type Config struct {
	// URL is the database root, e.g. "https://example.firebaseio.com".
	URL string
	// AuthToken is sent as a bearer token when set.
	AuthToken string
	// Timeout bounds one REST request. Streams are not bounded.
	Timeout time.Duration
	// MaxRetries is the number of retries for failed requests.
	MaxRetries int
}

// Store is a store.Store backed by a realtime database.
type Store struct {
	client   *api.Client
	mode     DeliveryMode
	delivery delivery.Config
	logger   zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDeliveryMode sets how subscriptions receive children. The default is
// DeliveryModeAuto.
func WithDeliveryMode(mode DeliveryMode) Option {
	return func(s *Store) {
		s.mode = mode
	}
}

// WithDeliveryConfig overrides polling intervals and stream reconnect
// settings. Its APIClient and Logger are ignored.
func WithDeliveryConfig(cfg delivery.Config) Option {
	return func(s *Store) {
		s.delivery = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an API client.
func New(client *api.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		mode:   DeliveryModeAuto,
		logger: zerolog.Nop(),
		subs:   make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.delivery.APIClient = client
	s.delivery.Logger = s.logger
	return s
}

// Dial builds a client for cfg. No request is made until first use.
func Dial(cfg Config, opts ...Option) (*Store, error) {
	s := New(nil, opts...)
	client, err := api.NewClient(api.Config{
		BaseURL:    cfg.URL,
		AuthToken:  cfg.AuthToken,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Logger:     &s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("rtdb: %w", err)
	}
	s.client = client
	s.delivery.APIClient = client
	s.logger.Debug().Str("url", client.BaseURL()).Msg("realtime database store ready")
	return s, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func mapError(err error) error {
	if errors.Is(err, api.ErrNotFound) {
		return store.ErrNotFound
	}
	return err
}

// Set implements store.Store. Objects are merged into the existing value so
// that children written by Push survive; other values replace it.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("rtdb: encode %s: %w", path, err)
	}
	raw := json.RawMessage(data)

	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		err = s.client.Patch(ctx, store.CleanPath(path), raw)
	} else {
		err = s.client.Put(ctx, store.CleanPath(path), raw)
	}
	if err != nil {
		return fmt.Errorf("rtdb: set %s: %w", path, err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string, out any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	raw, err := s.client.Get(ctx, store.CleanPath(path))
	if err != nil {
		return mapError(err)
	}
	return json.Unmarshal(raw, out)
}

// Push implements store.Store.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	if s.isClosed() {
		return "", store.ErrClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("rtdb: encode %s: %w", path, err)
	}
	key, err := s.client.Post(ctx, store.CleanPath(path), json.RawMessage(data))
	if err != nil {
		return "", fmt.Errorf("rtdb: push %s: %w", path, err)
	}
	return key, nil
}

func (s *Store) newStrategy() delivery.Strategy {
	switch s.mode {
	case DeliveryModeSSE:
		return delivery.NewSSEStrategy(s.delivery)
	case DeliveryModePolling:
		return delivery.NewPollingStrategy(s.delivery)
	default:
		return delivery.NewAutoStrategy(s.delivery)
	}
}

// OnChildAdded implements store.Store. In auto mode it blocks until the
// stream connects or the fallback to polling is made.
func (s *Store) OnChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Subscription, error) {
	if fn == nil {
		return nil, errors.New("rtdb: nil callback")
	}
	if s.isClosed() {
		return nil, store.ErrClosed
	}
	path = store.CleanPath(path)

	strategy := s.newStrategy()
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{strategy: strategy, cancel: cancel}

	handler := func(_ context.Context, c delivery.Child) error {
		fn(c.Key, c.Value)
		return nil
	}
	if err := strategy.Start(subCtx, path, handler); err != nil {
		cancel()
		return nil, fmt.Errorf("rtdb: watch %s: %w", path, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.stop()
		return nil, store.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.remove = func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}
	s.logger.Debug().Str("path", path).Str("strategy", strategy.Name()).Msg("watching children")

	go func() {
		<-subCtx.Done()
		sub.Unsubscribe()
	}()
	return sub, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[*subscription]struct{})
	s.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
	return nil
}

type subscription struct {
	strategy delivery.Strategy
	cancel   context.CancelFunc
	remove   func()
	once     sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() {
		_ = s.strategy.Stop()
		s.cancel()
	})
}

// Unsubscribe implements store.Subscription.
func (s *subscription) Unsubscribe() {
	if s.remove != nil {
		s.remove()
	}
	s.stop()
}
