// Package store defines the contract sparkle uses to reach the shared,
// untrusted realtime database that holds published identities and message
// envelopes.
//
// Paths are slash separated without a leading slash, for example
// "users/<identifier>/messages". Values are JSON.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when nothing is stored at a path.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// ChildFunc receives one child of a watched path. Key is the child's key
// under the path; value is its raw JSON.
type ChildFunc func(key string, value json.RawMessage)

// Subscription is a live OnChildAdded registration.
type Subscription interface {
	// Unsubscribe stops delivery. No callback starts after it returns.
	// It is safe to call more than once.
	Unsubscribe()
}

// Store is a key-addressed JSON store with append and child-added
// notifications.
type Store interface {
	// Set writes value at path, replacing what was there. Children of path
	// that are not members of value are left untouched.
	Set(ctx context.Context, path string, value any) error

	// Get decodes the value at path into out. It returns ErrNotFound when
	// the path is empty.
	Get(ctx context.Context, path string, out any) error

	// Push appends value as a new child of path and returns the child key,
	// which is unique under path.
	Push(ctx context.Context, path string, value any) (string, error)

	// OnChildAdded calls fn once for every child of path: first for the
	// children that already exist, then for each child pushed afterwards,
	// in the order they were added. Calls for one subscription never run
	// concurrently.
	OnChildAdded(ctx context.Context, path string, fn ChildFunc) (Subscription, error)

	// Close releases the store's resources and cancels its subscriptions.
	Close() error
}

const (
	usersRoot       = "users"
	messagesSegment = "messages"
)

// UserPath is the path under which an identity publishes its public key.
func UserPath(identifier string) string {
	return usersRoot + "/" + identifier
}

// MessagesPath is the path envelopes addressed to identifier are pushed to.
func MessagesPath(identifier string) string {
	return UserPath(identifier) + "/" + messagesSegment
}

// CleanPath trims surrounding slashes and collapses empty segments.
func CleanPath(path string) string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// FuncSubscription adapts a function to Subscription.
type FuncSubscription func()

// Unsubscribe calls f.
func (f FuncSubscription) Unsubscribe() { f() }
