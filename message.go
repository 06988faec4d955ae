package sparkle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sparkle/client-go/internal/crypto"
	"github.com/sparkle/client-go/internal/metrics"
	"github.com/sparkle/client-go/store"
)

// Message is a decrypted message.
type Message struct {
	// ID is the store key of the envelope.
	ID string
	// From is the sender identifier claimed by the envelope. It is not
	// authenticated.
	From string
	// To is the receiver identifier recorded in the envelope.
	To   string
	Text string
}

// Send encrypts text for peer and pushes the envelope to the peer's
// message path. The returned message carries the store key as ID.
func (i *Identity) Send(ctx context.Context, peer *Peer, text string) (*Message, error) {
	if peer == nil {
		return nil, fmt.Errorf("peer is nil")
	}
	c := i.client
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if err := c.waitForSendToken(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	env, err := crypto.Encrypt(ctx, text, peer.publicKey, i.identifier, peer.identifier)
	if err != nil {
		c.metrics.RecordFailure(metrics.OpEncrypt, "encrypt")
		return nil, err
	}
	c.metrics.RecordEncrypted(time.Since(start))

	sctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start = time.Now()
	path := store.MessagesPath(peer.identifier)
	key, err := c.store.Push(sctx, path, env)
	if err != nil {
		c.metrics.RecordFailure(metrics.OpPush, "store")
		return nil, storeError("push", path, err)
	}
	c.metrics.Observe(metrics.OpPush, time.Since(start))

	c.logger.Debug().
		Str("identifier", i.identifier).
		Str("peer", peer.identifier).
		Str("key", key).
		Msg("message sent")

	return &Message{
		ID:   key,
		From: i.identifier,
		To:   peer.identifier,
		Text: text,
	}, nil
}

// SendTo resolves identifier with Client.Peer and sends text to it.
func (i *Identity) SendTo(ctx context.Context, identifier, text string) (*Message, error) {
	peer, err := i.client.Peer(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return i.Send(ctx, peer, text)
}

// decrypt turns one stored envelope into a Message. Failures are returned
// as *DecryptionError.
func (i *Identity) decrypt(ctx context.Context, key string, raw json.RawMessage) (*Message, error) {
	c := i.client
	start := time.Now()

	fail := func(err error) error {
		de := &DecryptionError{Stage: decryptionStage(err), Key: key, Err: err}
		c.metrics.RecordFailure(metrics.OpDecrypt, de.Stage)
		return de
	}

	env, err := crypto.ParseEnvelope(raw)
	if err != nil {
		return nil, fail(err)
	}
	text, err := crypto.Decrypt(ctx, env, i.keypair)
	if err != nil {
		return nil, fail(err)
	}
	c.metrics.RecordDecrypted(time.Since(start))

	return &Message{
		ID:   key,
		From: env.Sender,
		To:   env.Receiver,
		Text: text,
	}, nil
}

// Messages reads every envelope currently stored for the identity and
// decrypts it, in key order. Envelopes that fail to decrypt are skipped and
// reported to the error handler. It works whether or not the identity has
// been published.
func (i *Identity) Messages(ctx context.Context) ([]*Message, error) {
	c := i.client
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	sctx, cancel := c.withTimeout(ctx)
	defer cancel()

	path := store.MessagesPath(i.identifier)
	var children map[string]json.RawMessage
	if err := c.store.Get(sctx, path, &children); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []*Message{}, nil
		}
		return nil, storeError("get", path, err)
	}

	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]*Message, 0, len(keys))
	for _, k := range keys {
		msg, err := i.decrypt(ctx, k, children[k])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			i.reportError(err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// OnMessage registers fn for every message delivered to the identity's
// listener. Calls for one identity are sequential. Returns an unsubscribe
// function; fn is never called after it returns.
func (i *Identity) OnMessage(fn func(*Message)) func() {
	return i.client.subs.subscribe(i.identifier, fn)
}
