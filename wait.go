package sparkle

import (
	"context"
	"fmt"
)

// Watch returns a channel that receives messages as they arrive.
// The channel is not closed when the context is cancelled; use a select
// on ctx.Done() to detect cancellation.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
//	defer cancel()
//
//	ch := identity.Watch(ctx)
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return
//	    case msg := <-ch:
//	        fmt.Printf("%s: %s\n", msg.From, msg.Text)
//	    }
//	}
func (i *Identity) Watch(ctx context.Context) <-chan *Message {
	ch := make(chan *Message, 16)

	unsubscribe := i.OnMessage(func(msg *Message) {
		select {
		case ch <- msg:
		default:
			// Buffer full, drop
		}
	})

	// The channel is left open so an in-flight callback never sends on a
	// closed channel.
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch
}

// WatchFunc calls fn for each message as they arrive until the context is
// cancelled.
func (i *Identity) WatchFunc(ctx context.Context, fn func(*Message)) {
	messages := i.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-messages:
			if msg != nil {
				fn(msg)
			}
		}
	}
}

// WaitForMessage waits for a message matching the given criteria, checking
// messages already stored before waiting for new ones. The identity must
// be published.
func (i *Identity) WaitForMessage(ctx context.Context, opts ...WaitOption) (*Message, error) {
	if !i.Published() {
		return nil, ErrIdentityNotPublished
	}

	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	// Watch before reading history so nothing slips between the two.
	messages := i.Watch(ctx)

	existing, err := i.Messages(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if cfg.Matches(m) {
			return m, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-messages:
			if msg != nil && cfg.Matches(msg) {
				return msg, nil
			}
		}
	}
}

// WaitForMessages waits until at least count matching messages are found.
func (i *Identity) WaitForMessages(ctx context.Context, count int, opts ...WaitOption) ([]*Message, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be non-negative, got %d", count)
	}
	if count == 0 {
		return []*Message{}, nil
	}
	if !i.Published() {
		return nil, ErrIdentityNotPublished
	}

	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	seen := make(map[string]struct{})
	var results []*Message

	addIfNew := func(m *Message) {
		if _, ok := seen[m.ID]; ok {
			return
		}
		if cfg.Matches(m) {
			seen[m.ID] = struct{}{}
			results = append(results, m)
		}
	}

	messages := i.Watch(ctx)

	existing, err := i.Messages(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		addIfNew(m)
		if len(results) >= count {
			return results[:count], nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-messages:
			if msg != nil {
				addIfNew(msg)
				if len(results) >= count {
					return results[:count], nil
				}
			}
		}
	}
}

// IdentityEvent is a message arriving at a specific local identity.
type IdentityEvent struct {
	Identity *Identity
	Message  *Message
}

// WatchIdentities returns a channel that receives messages from several
// identities. The channel is not closed when the context is cancelled.
func (c *Client) WatchIdentities(ctx context.Context, identities ...*Identity) <-chan *IdentityEvent {
	ch := make(chan *IdentityEvent, 16)

	if len(identities) == 0 {
		close(ch)
		return ch
	}

	unsubscribes := make([]func(), 0, len(identities))
	for _, id := range identities {
		unsub := c.subs.subscribe(id.identifier, func(msg *Message) {
			go func(m *Message) {
				select {
				case ch <- &IdentityEvent{Identity: id, Message: m}:
				case <-ctx.Done():
				}
			}(msg)
		})
		unsubscribes = append(unsubscribes, unsub)
	}

	go func() {
		<-ctx.Done()
		for _, unsub := range unsubscribes {
			unsub()
		}
	}()

	return ch
}
