// Package redisstore implements store.Store on Redis.
//
// Values written with Set live in plain string keys. Children pushed under a
// path live in a stream named after the path, so stream entry IDs are the
// child keys and XREAD gives ordered replay followed by live delivery.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sparkle/client-go/store"
)

const (
	// DefaultPrefix namespaces every key the store touches.
	DefaultPrefix = "sparkle:"
	// DefaultBlock is how long one XREAD waits for new entries.
	DefaultBlock = time.Second

	childrenSuffix = ":children"
	valueField     = "v"
	readCount      = 100
)

// Config describes a Redis deployment for Dial.
type Config struct {
	Addrs      []string
	MasterName string
	Username   string
	Password   string
	DB         int
}

// Store is a Redis backed store.Store.
type Store struct {
	client redis.UniversalClient
	owned  bool
	prefix string
	block  time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithBlock sets the XREAD block duration used by subscriptions.
func WithBlock(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.block = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an existing client. Close does not close client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		block:  DefaultBlock,
		logger: zerolog.Nop(),
		subs:   make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to Redis and pings it. The returned Store owns the client.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redisstore: no addresses")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      cfg.Addrs,
		MasterName: cfg.MasterName,
		Username:   cfg.Username,
		Password:   cfg.Password,
		DB:         cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	s := New(client, opts...)
	s.owned = true
	s.logger.Debug().Strs("addrs", cfg.Addrs).Msg("redis store connected")
	return s, nil
}

func (s *Store) valueKey(path string) string {
	return s.prefix + store.CleanPath(path)
}

func (s *Store) streamKey(path string) string {
	return s.prefix + store.CleanPath(path) + childrenSuffix
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redisstore: encode %s: %w", path, err)
	}
	return s.client.Set(ctx, s.valueKey(path), data, 0).Err()
}

// Get implements store.Store. When no value was Set at path, pushed children
// are returned as an object keyed by child key.
func (s *Store) Get(ctx context.Context, path string, out any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	data, err := s.client.Get(ctx, s.valueKey(path)).Bytes()
	if err == nil {
		return json.Unmarshal(data, out)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	msgs, err := s.client.XRange(ctx, s.streamKey(path), "-", "+").Result()
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return store.ErrNotFound
	}
	obj := make(map[string]json.RawMessage, len(msgs))
	for _, m := range msgs {
		if v, ok := messageValue(m); ok {
			obj[m.ID] = v
		}
	}
	data, err = json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Push implements store.Store. The child key is the stream entry ID.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	if s.isClosed() {
		return "", store.ErrClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("redisstore: encode %s: %w", path, err)
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey(path),
		Values: map[string]any{valueField: string(data)},
	}).Result()
}

// OnChildAdded implements store.Store. Delivery runs on one goroutine that
// reads the stream from its first entry.
func (s *Store) OnChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Subscription, error) {
	if fn == nil {
		return nil, errors.New("redisstore: nil callback")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, store.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	sub.remove = func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}

	go s.readLoop(ctx, sub, s.streamKey(path), fn)
	return sub, nil
}

func (s *Store) readLoop(ctx context.Context, sub *subscription, stream string, fn store.ChildFunc) {
	defer close(sub.done)
	lastID := "0"

	for ctx.Err() == nil {
		res, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   readCount,
			Block:   s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Str("stream", stream).Msg("xread failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.block):
			}
			continue
		}

		for _, xs := range res {
			for _, m := range xs.Messages {
				lastID = m.ID
				v, ok := messageValue(m)
				if !ok {
					s.logger.Debug().Str("id", m.ID).Msg("skipping stream entry without value")
					continue
				}
				if sub.stopped.Load() {
					return
				}
				fn(m.ID, v)
			}
		}
	}
}

func messageValue(m redis.XMessage) (json.RawMessage, bool) {
	switch v := m.Values[valueField].(type) {
	case string:
		return json.RawMessage(v), true
	case []byte:
		return json.RawMessage(v), true
	default:
		return nil, false
	}
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
	if s.owned {
		return s.client.Close()
	}
	return nil
}

type subscription struct {
	cancel  context.CancelFunc
	remove  func()
	done    chan struct{}
	stopped atomic.Bool
}

func (s *subscription) stop() {
	s.stopped.Store(true)
	s.cancel()
}

// Unsubscribe implements store.Subscription.
func (s *subscription) Unsubscribe() {
	if s.remove != nil {
		s.remove()
	}
	s.stop()
}
