package sparkle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sparkle/client-go/internal/crypto"
	"github.com/sparkle/client-go/internal/metrics"
	"github.com/sparkle/client-go/store"
)

// Identity is a local key pair registered with a Client. Its identifier is
// the hex SHA-256 of the public modulus.
type Identity struct {
	identifier string
	keypair    *crypto.KeyPair
	client     *Client
	createdAt  time.Time

	mu          sync.Mutex
	listening   store.Subscription
	cancel      context.CancelFunc
	publishedAt time.Time
}

func newIdentity(kp *crypto.KeyPair, c *Client) *Identity {
	return &Identity{
		identifier: kp.Identifier(),
		keypair:    kp,
		client:     c,
		createdAt:  time.Now().UTC(),
	}
}

// Identifier returns the identity's public identifier.
func (i *Identity) Identifier() string {
	return i.identifier
}

// CreatedAt returns when the key pair was created or imported.
func (i *Identity) CreatedAt() time.Time {
	return i.createdAt
}

// PublicKeyJWK returns the public key as a JWK.
func (i *Identity) PublicKeyJWK() ([]byte, error) {
	return crypto.ExportPublicJWK(i.keypair)
}

// Published reports whether Publish has succeeded and the identity is
// listening for messages.
func (i *Identity) Published() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.listening != nil
}

// PublishedAt returns when the public key was last written, or the zero
// time.
func (i *Identity) PublishedAt() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.publishedAt
}

// Peer returns the identity as a Peer, which lets it send to itself.
func (i *Identity) Peer() (*Peer, error) {
	jwk, err := crypto.ExportPublicJWK(i.keypair)
	if err != nil {
		return nil, err
	}
	return &Peer{
		identifier: i.identifier,
		publicKey:  i.keypair.PublicKey,
		jwk:        jwk,
	}, nil
}

// Publish writes the public key under the identity's user path and starts
// listening for messages pushed to it. Calling it again rewrites the key
// and keeps the existing listener.
//
// Messages already waiting are delivered to OnMessage callbacks and
// watchers once the listener starts.
func (i *Identity) Publish(ctx context.Context) error {
	c := i.client
	if err := c.checkClosed(); err != nil {
		return err
	}

	jwk, err := crypto.ExportPublicJWK(i.keypair)
	if err != nil {
		return err
	}

	sctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	path := store.UserPath(i.identifier)
	if err := c.store.Set(sctx, path, publishedKey{Key: string(jwk)}); err != nil {
		c.metrics.RecordFailure(metrics.OpPublish, "store")
		return storeError("set", path, err)
	}
	c.metrics.Observe(metrics.OpPublish, time.Since(start))

	i.mu.Lock()
	defer i.mu.Unlock()
	i.publishedAt = time.Now().UTC()
	if i.listening != nil {
		return nil
	}

	// The listener outlives ctx; it ends with Close or RemoveIdentity.
	listenCtx, stop := context.WithCancel(context.Background())
	msgPath := store.MessagesPath(i.identifier)
	sub, err := c.store.OnChildAdded(listenCtx, msgPath, i.handleChild)
	if err != nil {
		stop()
		return storeError("subscribe", msgPath, err)
	}
	i.listening = sub
	i.cancel = stop

	c.logger.Info().Str("identifier", i.identifier).Msg("identity published")
	return nil
}

// stopListening ends the message listener, if any.
func (i *Identity) stopListening() {
	i.mu.Lock()
	sub, cancel := i.listening, i.cancel
	i.listening, i.cancel = nil, nil
	i.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Unsubscribe()
	cancel()
}

// handleChild decrypts one envelope delivered by the store listener and
// fans it out to subscribers.
func (i *Identity) handleChild(key string, value json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	msg, err := i.decrypt(ctx, key, value)
	if err != nil {
		i.reportError(err)
		return
	}
	i.client.subs.notify(i.identifier, msg)
}

// reportError logs a background delivery failure and passes it to the
// error handler.
func (i *Identity) reportError(err error) {
	c := i.client
	ev := c.logger.Warn().Str("identifier", i.identifier)
	if de, ok := err.(*DecryptionError); ok {
		ev = ev.Str("key", de.Key).Str("stage", de.Stage).Err(de.Err)
	} else {
		ev = ev.Err(err)
	}
	ev.Msg("message dropped")

	if c.cfg.onError != nil {
		c.cfg.onError(err)
	}
}
