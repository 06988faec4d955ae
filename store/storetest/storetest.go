// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkle/client-go/store"
)

// Factory returns a fresh, empty store. Paths written by one test must not
// be visible to another; implementations backed by a shared server should
// use a unique key prefix per call.
type Factory func(t *testing.T) store.Store

// DeliveryTimeout bounds how long the suite waits for a child-added callback.
var DeliveryTimeout = 5 * time.Second

type record struct {
	Key  string `json:"key"`
	Seq  int    `json:"seq,omitempty"`
	Note string `json:"note,omitempty"`
}

// Run exercises newStore against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, newStore) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore) })
	t.Run("SetKeepsChildren", func(t *testing.T) { testSetKeepsChildren(t, newStore) })
	t.Run("PushOrder", func(t *testing.T) { testPushOrder(t, newStore) })
	t.Run("ReplayThenStream", func(t *testing.T) { testReplayThenStream(t, newStore) })
	t.Run("Unsubscribe", func(t *testing.T) { testUnsubscribe(t, newStore) })
	t.Run("IsolatedPaths", func(t *testing.T) { testIsolatedPaths(t, newStore) })
}

func testSetGet(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users/alice", record{Key: "k1"}))

	var got record
	require.NoError(t, s.Get(ctx, "users/alice", &got))
	assert.Equal(t, "k1", got.Key)

	// Set overwrites.
	require.NoError(t, s.Set(ctx, "users/alice", record{Key: "k2"}))
	require.NoError(t, s.Get(ctx, "users/alice", &got))
	assert.Equal(t, "k2", got.Key)
}

func testGetMissing(t *testing.T, newStore Factory) {
	s := newStore(t)

	var got record
	err := s.Get(context.Background(), "users/nobody", &got)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSetKeepsChildren(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Push(ctx, "users/bob/messages", record{Note: "first"})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "users/bob", record{Key: "bob-key"}))

	var got record
	require.NoError(t, s.Get(ctx, "users/bob", &got))
	assert.Equal(t, "bob-key", got.Key)

	children := collect(t, s, "users/bob/messages", 1)
	assert.Equal(t, "first", children[0].Note)
}

func testPushOrder(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 10; i++ {
		key, err := s.Push(ctx, "users/carol/messages", record{Seq: i})
		require.NoError(t, err)
		require.NotEmpty(t, key)
		keys = append(keys, key)
	}
	for i := 1; i < len(keys); i++ {
		assert.NotEqual(t, keys[i-1], keys[i], "push keys must be unique")
	}

	children := collect(t, s, "users/carol/messages", 10)
	for i, c := range children {
		assert.Equal(t, i, c.Seq, "child %d out of order", i)
	}
}

func testReplayThenStream(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()
	path := "users/dave/messages"

	for i := 0; i < 3; i++ {
		_, err := s.Push(ctx, path, record{Seq: i})
		require.NoError(t, err)
	}

	got := make(chan record, 16)
	sub, err := s.OnChildAdded(ctx, path, func(key string, value json.RawMessage) {
		var r record
		if err := json.Unmarshal(value, &r); err == nil {
			got <- r
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := 3; i < 6; i++ {
		_, err := s.Push(ctx, path, record{Seq: i})
		require.NoError(t, err)
	}

	for want := 0; want < 6; want++ {
		select {
		case r := <-got:
			assert.Equal(t, want, r.Seq)
		case <-time.After(DeliveryTimeout):
			t.Fatalf("timed out waiting for child %d", want)
		}
	}
}

func testUnsubscribe(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()
	path := "users/erin/messages"

	var mu sync.Mutex
	count := 0
	first := make(chan struct{}, 1)
	sub, err := s.OnChildAdded(ctx, path, func(string, json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
		select {
		case first <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	_, err = s.Push(ctx, path, record{Seq: 1})
	require.NoError(t, err)
	select {
	case <-first:
	case <-time.After(DeliveryTimeout):
		t.Fatal("timed out waiting for first child")
	}

	sub.Unsubscribe()
	sub.Unsubscribe()

	_, err = s.Push(ctx, path, record{Seq: 2})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func testIsolatedPaths(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Push(ctx, "users/frank/messages", record{Note: "frank"})
	require.NoError(t, err)
	_, err = s.Push(ctx, "users/grace/messages", record{Note: "grace"})
	require.NoError(t, err)

	children := collect(t, s, "users/grace/messages", 1)
	assert.Equal(t, "grace", children[0].Note)
}

// collect subscribes to path, waits for n children and unsubscribes.
func collect(t *testing.T, s store.Store, path string, n int) []record {
	t.Helper()

	ch := make(chan record, n+8)
	sub, err := s.OnChildAdded(context.Background(), path, func(_ string, value json.RawMessage) {
		var r record
		if err := json.Unmarshal(value, &r); err != nil {
			panic(fmt.Sprintf("storetest: bad child %s: %v", value, err))
		}
		ch <- r
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	out := make([]record, 0, n)
	for len(out) < n {
		select {
		case r := <-ch:
			out = append(out, r)
		case <-time.After(DeliveryTimeout):
			t.Fatalf("timed out after %d of %d children at %s", len(out), n, path)
		}
	}
	select {
	case r := <-ch:
		t.Fatalf("unexpected extra child at %s: %+v", path, r)
	case <-time.After(50 * time.Millisecond):
	}
	return out
}
