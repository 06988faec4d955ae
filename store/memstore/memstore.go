// Package memstore is an in-process store.Store. It backs tests and
// single-process demos.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sparkle/client-go/store"
)

type child struct {
	key   string
	value json.RawMessage
}

// Store is an in-memory store.Store. The zero value is not usable; call New.
type Store struct {
	mu       sync.RWMutex
	values   map[string]json.RawMessage
	children map[string][]child
	subs     map[string]map[*subscription]struct{}
	closed   bool
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		values:   make(map[string]json.RawMessage),
		children: make(map[string][]child),
		subs:     make(map[string]map[*subscription]struct{}),
	}
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memstore: encode %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.values[store.CleanPath(path)] = data
	return nil
}

// Get implements store.Store. When nothing was Set at path but children were
// pushed to it, the children are returned as an object keyed by child key.
func (s *Store) Get(ctx context.Context, path string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = store.CleanPath(path)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrClosed
	}
	data, ok := s.values[path]
	if !ok {
		if kids := s.children[path]; len(kids) > 0 {
			obj := make(map[string]json.RawMessage, len(kids))
			for _, c := range kids {
				obj[c.key] = c.value
			}
			s.mu.RUnlock()
			encoded, err := json.Marshal(obj)
			if err != nil {
				return err
			}
			return json.Unmarshal(encoded, out)
		}
	}
	s.mu.RUnlock()

	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(data, out)
}

// Push implements store.Store. Child keys are version 7 UUIDs, which sort in
// creation order.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("memstore: encode %s: %w", path, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("memstore: child key: %w", err)
	}
	path = store.CleanPath(path)
	c := child{key: id.String(), value: data}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", store.ErrClosed
	}
	s.children[path] = append(s.children[path], c)
	for sub := range s.subs[path] {
		sub.enqueue(c)
	}
	return c.key, nil
}

// OnChildAdded implements store.Store.
func (s *Store) OnChildAdded(ctx context.Context, path string, fn store.ChildFunc) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("memstore: nil callback")
	}
	path = store.CleanPath(path)
	sub := newSubscription(fn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	for _, c := range s.children[path] {
		sub.enqueue(c)
	}
	if s.subs[path] == nil {
		s.subs[path] = make(map[*subscription]struct{})
	}
	s.subs[path][sub] = struct{}{}
	s.mu.Unlock()

	sub.remove = func() {
		s.mu.Lock()
		delete(s.subs[path], sub)
		s.mu.Unlock()
	}
	go sub.run()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
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
	var all []*subscription
	for _, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	s.subs = make(map[string]map[*subscription]struct{})
	s.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

// Len returns the number of children pushed to path.
func (s *Store) Len(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.children[store.CleanPath(path)])
}

// subscription delivers queued children on its own goroutine so that a slow
// callback never blocks Push.
type subscription struct {
	fn     store.ChildFunc
	remove func()

	mu      sync.Mutex
	queue   []child
	notify  chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

func newSubscription(fn store.ChildFunc) *subscription {
	return &subscription{
		fn:     fn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *subscription) enqueue(c child) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, c := range batch {
			if s.stopped.Load() {
				return
			}
			s.fn(c.key, c.value)
		}

		select {
		case <-s.done:
			return
		case <-s.notify:
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
	})
}

// Unsubscribe implements store.Subscription.
func (s *subscription) Unsubscribe() {
	if s.remove != nil {
		s.remove()
	}
	s.stop()
}
