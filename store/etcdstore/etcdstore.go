// Package etcdstore implements store.Store on etcd v3.
//
// Set writes one key per path. Push writes path/<uuidv7>; subscriptions read
// the existing children ordered by create revision and then watch for new
// ones from the following revision, so nothing is missed between the two.
package etcdstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/sparkle/client-go/store"
)

const (
	// DefaultPrefix namespaces every key the store touches.
	DefaultPrefix = "/sparkle/"
	// DefaultDialTimeout bounds Dial.
	DefaultDialTimeout = 5 * time.Second
)

// Config describes an etcd cluster for Dial.
type Config struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// Store is an etcd backed store.Store.
type Store struct {
	client *clientv3.Client
	owned  bool
	prefix string
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

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an existing client. Close does not close client.
func New(client *clientv3.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		logger: zerolog.Nop(),
		subs:   make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to etcd and checks the first endpoint's status. The returned
// Store owns the client.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcdstore: no endpoints")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcdstore: connect: %w", err)
	}

	statusCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if _, err := client.Status(statusCtx, cfg.Endpoints[0]); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("etcdstore: status: %w", err)
	}

	s := New(client, opts...)
	s.owned = true
	s.logger.Debug().Strs("endpoints", cfg.Endpoints).Msg("etcd store connected")
	return s, nil
}

func (s *Store) key(path string) string {
	return s.prefix + store.CleanPath(path)
}

func (s *Store) childPrefix(path string) string {
	return s.key(path) + "/"
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
		return fmt.Errorf("etcdstore: encode %s: %w", path, err)
	}
	_, err = s.client.Put(ctx, s.key(path), string(data))
	return err
}

// Get implements store.Store. When no value was Set at path, direct children
// are returned as an object keyed by child key.
func (s *Store) Get(ctx context.Context, path string, out any) error {
	if s.isClosed() {
		return store.ErrClosed
	}
	resp, err := s.client.Get(ctx, s.key(path))
	if err != nil {
		return err
	}
	if len(resp.Kvs) > 0 {
		return json.Unmarshal(resp.Kvs[0].Value, out)
	}

	prefix := s.childPrefix(path)
	resp, err = s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return err
	}
	obj := make(map[string]json.RawMessage)
	for _, kv := range resp.Kvs {
		if name, ok := childName(prefix, string(kv.Key)); ok {
			obj[name] = json.RawMessage(kv.Value)
		}
	}
	if len(obj) == 0 {
		return store.ErrNotFound
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Push implements store.Store. Child keys are version 7 UUIDs.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	if s.isClosed() {
		return "", store.ErrClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("etcdstore: encode %s: %w", path, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("etcdstore: child key: %w", err)
	}
	name := id.String()
	if _, err := s.client.Put(ctx, s.childPrefix(path)+name, string(data)); err != nil {
		return "", err
	}
	return name, nil
}

// OnChildAdded implements store.Store.
func (s *Store) OnChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Subscription, error) {
	if fn == nil {
		return nil, errors.New("etcdstore: nil callback")
	}
	if s.isClosed() {
		return nil, store.ErrClosed
	}

	prefix := s.childPrefix(path)
	resp, err := s.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
	)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel}

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

	// Watch is opened before the goroutine starts so that children created
	// right after OnChildAdded returns are observed.
	watch := s.client.Watch(clientv3.WithRequireLeader(ctx), prefix,
		clientv3.WithPrefix(),
		clientv3.WithRev(resp.Header.Revision+1),
		clientv3.WithFilterDelete(),
	)

	go func() {
		for _, kv := range resp.Kvs {
			if sub.stopped.Load() {
				return
			}
			if name, ok := childName(prefix, string(kv.Key)); ok {
				fn(name, json.RawMessage(kv.Value))
			}
		}

		for wresp := range watch {
			if err := wresp.Err(); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn().Err(err).Str("prefix", prefix).Msg("watch failed")
				}
				return
			}
			for _, ev := range wresp.Events {
				if !ev.IsCreate() {
					continue
				}
				if sub.stopped.Load() {
					return
				}
				if name, ok := childName(prefix, string(ev.Kv.Key)); ok {
					fn(name, json.RawMessage(ev.Kv.Value))
				}
			}
		}
	}()
	return sub, nil
}

// childName returns the child key of a direct child of prefix.
func childName(prefix, key string) (string, bool) {
	name, ok := strings.CutPrefix(key, prefix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
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
