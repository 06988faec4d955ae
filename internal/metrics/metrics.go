// Package metrics records envelope and store activity as Prometheus
// metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sparkle"

// Operation labels.
const (
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
	OpPublish = "publish"
	OpResolve = "resolve"
	OpPush    = "push"
)

// Metrics holds the client's collectors. A nil *Metrics records nothing.
type Metrics struct {
	EnvelopesEncrypted prometheus.Counter
	EnvelopesDecrypted prometheus.Counter
	Failures           *prometheus.CounterVec
	Duration           *prometheus.HistogramVec
	PeerCacheHits      prometheus.Counter
	RateLimitWaits     prometheus.Counter
}

// New registers the collectors on reg. It panics if they are already
// registered there, like promauto.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EnvelopesEncrypted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_encrypted_total",
			Help:      "Total number of envelopes encrypted",
		}),
		EnvelopesDecrypted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_decrypted_total",
			Help:      "Total number of envelopes decrypted",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of failed operations by stage",
		}, []string{"op", "stage"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		PeerCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_cache_hits_total",
			Help:      "Total number of peer lookups served from cache",
		}),
		RateLimitWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Total number of sends delayed by the rate limit",
		}),
	}
}

// RecordEncrypted records one successful encryption.
func (m *Metrics) RecordEncrypted(d time.Duration) {
	if m == nil {
		return
	}
	m.EnvelopesEncrypted.Inc()
	m.Duration.WithLabelValues(OpEncrypt).Observe(d.Seconds())
}

// RecordDecrypted records one successful decryption.
func (m *Metrics) RecordDecrypted(d time.Duration) {
	if m == nil {
		return
	}
	m.EnvelopesDecrypted.Inc()
	m.Duration.WithLabelValues(OpDecrypt).Observe(d.Seconds())
}

// RecordFailure records a failed op at stage.
func (m *Metrics) RecordFailure(op, stage string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(op, stage).Inc()
}

// Observe records the duration of op.
func (m *Metrics) Observe(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordCacheHit records a peer served from cache.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.PeerCacheHits.Inc()
}

// RecordRateLimitWait records a send that had to wait for a token.
func (m *Metrics) RecordRateLimitWait() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}
