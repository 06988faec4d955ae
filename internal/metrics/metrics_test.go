package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordEncrypted(time.Millisecond)
	m.RecordEncrypted(time.Millisecond)
	m.RecordDecrypted(time.Millisecond)
	m.RecordFailure(OpDecrypt, "unwrap")
	m.RecordCacheHit()
	m.RecordRateLimitWait()
	m.Observe(OpPush, time.Millisecond)

	if got := testutil.ToFloat64(m.EnvelopesEncrypted); got != 2 {
		t.Errorf("envelopes encrypted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EnvelopesDecrypted); got != 1 {
		t.Errorf("envelopes decrypted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Failures.WithLabelValues(OpDecrypt, "unwrap")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PeerCacheHits); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.Duration); n != 3 {
		t.Errorf("duration series = %d, want 3", n)
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	m.RecordEncrypted(time.Second)
	m.RecordDecrypted(time.Second)
	m.RecordFailure(OpEncrypt, "wrap")
	m.RecordCacheHit()
	m.RecordRateLimitWait()
	m.Observe(OpPush, time.Second)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
