package sparkle

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/sparkle/client-go/internal/crypto"
	"github.com/sparkle/client-go/internal/metrics"
	"github.com/sparkle/client-go/store"
)

// publishedKey is the record stored under store.UserPath. Key holds the
// public JWK as JSON text.
type publishedKey struct {
	Key string `json:"key"`
}

// Peer is a resolved remote party that messages can be sent to.
type Peer struct {
	identifier string
	publicKey  *rsa.PublicKey
	jwk        []byte
}

// Identifier returns the identifier the peer was resolved by.
func (p *Peer) Identifier() string {
	return p.identifier
}

// PublicKeyJWK returns the peer's public key as a JWK.
func (p *Peer) PublicKeyJWK() []byte {
	out := make([]byte, len(p.jwk))
	copy(out, p.jwk)
	return out
}

// Peer resolves the public key published under identifier.
//
// A malformed identifier fails with ErrInvalidIdentifier before the store is
// touched. ErrPeerNotFound means nothing is published under it.
//
// The returned key is whatever was last written under the identifier's
// path. Peer does not check that it hashes to identifier.
func (c *Client) Peer(ctx context.Context, identifier string) (*Peer, error) {
	if err := crypto.ValidateIdentifier(identifier); err != nil {
		return nil, err
	}
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	if c.peers != nil {
		if cached, ok := c.peers.Get(identifier); ok {
			c.metrics.RecordCacheHit()
			return cached.(*Peer), nil
		}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	path := store.UserPath(identifier)
	var rec publishedKey
	if err := c.store.Get(ctx, path, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPeerNotFound, identifier)
		}
		c.metrics.RecordFailure(metrics.OpResolve, "store")
		return nil, storeError("get", path, err)
	}
	if rec.Key == "" {
		return nil, fmt.Errorf("%w: %s has no key", ErrPeerNotFound, identifier)
	}

	pub, err := crypto.ImportPublicJWK([]byte(rec.Key))
	if err != nil {
		c.metrics.RecordFailure(metrics.OpResolve, StageKey)
		return nil, err
	}
	c.metrics.Observe(metrics.OpResolve, time.Since(start))

	p := &Peer{
		identifier: identifier,
		publicKey:  pub,
		jwk:        []byte(rec.Key),
	}
	if c.peers != nil {
		c.peers.SetDefault(identifier, p)
	}
	c.logger.Debug().Str("peer", identifier).Msg("peer resolved")
	return p, nil
}

// ValidateIdentifier returns ErrInvalidIdentifier unless s is 64 lowercase
// hex characters.
func ValidateIdentifier(s string) error {
	return crypto.ValidateIdentifier(s)
}

// ForgetPeer drops identifier from the peer cache, if any.
func (c *Client) ForgetPeer(identifier string) {
	if c.peers != nil {
		c.peers.Delete(identifier)
	}
}
