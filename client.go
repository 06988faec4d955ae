package sparkle

import (
	"context"
	"sync"
	"time"

	"github.com/pmylund/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sparkle/client-go/internal/crypto"
	"github.com/sparkle/client-go/internal/metrics"
	"github.com/sparkle/client-go/store"
)

// Client is the main Sparkle client. It owns the local identities and the
// store they talk through.
type Client struct {
	store   store.Store
	cfg     *clientConfig
	logger  zerolog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	peers   *cache.Cache // nil unless WithPeerCache

	// Subscription manager for message notifications
	subs *subscriptionManager

	mu         sync.RWMutex
	identities map[string]*Identity // keyed by identifier
	closed     bool
}

// New creates a client on top of st. The client takes ownership of st and
// closes it on Close.
func New(st store.Store, opts ...Option) (*Client, error) {
	if st == nil {
		return nil, ErrMissingStore
	}

	cfg := &clientConfig{
		logger:  zerolog.Nop(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		store:      st,
		cfg:        cfg,
		logger:     cfg.logger.With().Str("component", "sparkle").Logger(),
		identities: make(map[string]*Identity),
		subs:       newSubscriptionManager(),
	}
	if cfg.registerer != nil {
		c.metrics = metrics.New(cfg.registerer)
	}
	if cfg.sendLimit > 0 {
		burst := cfg.sendBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.sendLimit, burst)
	}
	if cfg.peerCacheTTL > 0 {
		c.peers = cache.New(cfg.peerCacheTTL, 2*cfg.peerCacheTTL)
	}

	c.logger.Debug().Str("ciphersuite", crypto.AlgsCiphersuite).Msg("client ready")
	return c, nil
}

// checkClosed returns ErrClientClosed if the client has been closed.
func (c *Client) checkClosed() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// withTimeout applies the client timeout when ctx carries no deadline.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.cfg.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.timeout)
}

// registerIdentity adds an identity to the client's registry.
func (c *Client) registerIdentity(id *Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if _, exists := c.identities[id.identifier]; exists {
		return ErrIdentityExists
	}
	c.identities[id.identifier] = id
	return nil
}

// CreateIdentity generates a new RSA-4096 key pair and registers it with
// the client. The identity is not visible to peers until Publish is called.
//
// Key generation takes a noticeable amount of CPU time. If ctx ends first,
// CreateIdentity returns ctx.Err() and the generated key is discarded.
func (c *Client) CreateIdentity(ctx context.Context) (*Identity, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		kp  *crypto.KeyPair
		err error
	}
	done := make(chan result, 1)
	go func() {
		kp, err := crypto.GenerateKeyPair()
		done <- result{kp, err}
	}()

	var kp *crypto.KeyPair
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		kp = r.kp
	}

	id := newIdentity(kp, c)
	if err := c.registerIdentity(id); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("identifier", id.identifier).Msg("identity created")
	return id, nil
}

// Identity returns a registered identity by identifier.
func (c *Client) Identity(identifier string) (*Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.identities[identifier]
	return id, ok
}

// Identities returns all identities managed by this client.
func (c *Client) Identities() []*Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*Identity, 0, len(c.identities))
	for _, id := range c.identities {
		result = append(result, id)
	}
	return result
}

// RemoveIdentity stops an identity's listener and forgets it. The published
// key stays in the store.
func (c *Client) RemoveIdentity(identifier string) bool {
	c.mu.Lock()
	id, ok := c.identities[identifier]
	if ok {
		delete(c.identities, identifier)
	}
	c.mu.Unlock()

	if ok {
		id.stopListening()
		c.subs.clearKey(identifier)
	}
	return ok
}

// Close stops every identity's listener and closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ids := make([]*Identity, 0, len(c.identities))
	for _, id := range c.identities {
		ids = append(ids, id)
	}
	c.identities = make(map[string]*Identity)
	c.mu.Unlock()

	for _, id := range ids {
		id.stopListening()
	}
	c.subs.clear()
	if c.peers != nil {
		c.peers.Flush()
	}
	return storeError("close", "", c.store.Close())
}

// waitForSendToken blocks until the send rate limit admits one more send.
func (c *Client) waitForSendToken(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	r := c.limiter.Reserve()
	if !r.OK() {
		return ErrRateLimited
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	c.metrics.RecordRateLimitWait()
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		r.Cancel()
		return ErrRateLimited
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
