package sparkle

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// subscription represents an active message subscription.
type subscription struct {
	id         string
	identifier string
	callback   func(*Message)
	active     atomic.Bool
}

// subscriptionManager fans decrypted messages out to callbacks registered
// per local identity. Callbacks are never invoked after unsubscription
// completes.
type subscriptionManager struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*subscription // identifier -> subID -> subscription
	nextID atomic.Uint64
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subs: make(map[string]map[string]*subscription),
	}
}

// subscribe registers a callback for messages addressed to identifier.
// Returns an unsubscribe function that must be called to clean up.
func (m *subscriptionManager) subscribe(identifier string, callback func(*Message)) func() {
	id := strconv.FormatUint(m.nextID.Add(1), 10)

	sub := &subscription{
		id:         id,
		identifier: identifier,
		callback:   callback,
	}
	sub.active.Store(true)

	m.mu.Lock()
	if m.subs[identifier] == nil {
		m.subs[identifier] = make(map[string]*subscription)
	}
	m.subs[identifier][id] = sub
	m.mu.Unlock()

	return func() {
		m.unsubscribe(identifier, id)
	}
}

// unsubscribe removes a subscription. Safe to call multiple times.
func (m *subscriptionManager) unsubscribe(identifier, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idSubs, ok := m.subs[identifier]; ok {
		if sub, ok := idSubs[subID]; ok {
			sub.active.Store(false)
			delete(idSubs, subID)
			if len(idSubs) == 0 {
				delete(m.subs, identifier)
			}
		}
	}
}

// notify calls all registered callbacks for identifier, outside the lock.
func (m *subscriptionManager) notify(identifier string, msg *Message) {
	m.mu.RLock()
	idSubs := m.subs[identifier]
	if len(idSubs) == 0 {
		m.mu.RUnlock()
		return
	}

	subs := make([]*subscription, 0, len(idSubs))
	for _, sub := range idSubs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.callback(msg)
		}
	}
}

// count returns the number of callbacks registered for identifier.
func (m *subscriptionManager) count(identifier string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[identifier])
}

// clearKey removes every subscription for identifier.
func (m *subscriptionManager) clearKey(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[identifier] {
		sub.active.Store(false)
	}
	delete(m.subs, identifier)
}

// clear removes all subscriptions. Called during Client.Close().
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, idSubs := range m.subs {
		for _, sub := range idSubs {
			sub.active.Store(false)
		}
	}
	m.subs = make(map[string]map[string]*subscription)
}
