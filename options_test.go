package sparkle

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func TestDefaultConstants(t *testing.T) {
	if defaultTimeout != 30*time.Second {
		t.Errorf("defaultTimeout = %v, want 30s", defaultTimeout)
	}
	if defaultWaitTimeout != 60*time.Second {
		t.Errorf("defaultWaitTimeout = %v, want 60s", defaultWaitTimeout)
	}
}

func TestWithTimeout(t *testing.T) {
	cfg := &clientConfig{}
	WithTimeout(120 * time.Second)(cfg)
	if cfg.timeout != 120*time.Second {
		t.Errorf("timeout = %v, want 120s", cfg.timeout)
	}
}

func TestWithLogger(t *testing.T) {
	cfg := &clientConfig{}
	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.WarnLevel)
	WithLogger(logger)(cfg)
	if cfg.logger.GetLevel() != zerolog.WarnLevel {
		t.Errorf("logger level = %v, want warn", cfg.logger.GetLevel())
	}
}

func TestWithPeerCache(t *testing.T) {
	cfg := &clientConfig{}
	WithPeerCache(5 * time.Minute)(cfg)
	if cfg.peerCacheTTL != 5*time.Minute {
		t.Errorf("peerCacheTTL = %v, want 5m", cfg.peerCacheTTL)
	}
}

func TestWithSendRateLimit(t *testing.T) {
	cfg := &clientConfig{}
	WithSendRateLimit(2.5, 4)(cfg)
	if cfg.sendLimit != rate.Limit(2.5) {
		t.Errorf("sendLimit = %v, want 2.5", cfg.sendLimit)
	}
	if cfg.sendBurst != 4 {
		t.Errorf("sendBurst = %d, want 4", cfg.sendBurst)
	}
}

func TestWithMetrics(t *testing.T) {
	cfg := &clientConfig{}
	reg := prometheus.NewRegistry()
	WithMetrics(reg)(cfg)
	if cfg.registerer != reg {
		t.Error("registerer was not set")
	}
}

func TestWithErrorHandler(t *testing.T) {
	cfg := &clientConfig{}
	called := false
	WithErrorHandler(func(error) { called = true })(cfg)
	if cfg.onError == nil {
		t.Fatal("onError was not set")
	}
	cfg.onError(nil)
	if !called {
		t.Error("onError did not call the handler")
	}
}

func TestWaitOptions(t *testing.T) {
	cfg := &waitConfig{}
	WithFrom("abc")(cfg)
	WithWaitTimeout(time.Second)(cfg)
	pred := func(*Message) bool { return true }
	WithPredicate(pred)(cfg)

	if cfg.from != "abc" {
		t.Errorf("from = %q, want abc", cfg.from)
	}
	if cfg.timeout != time.Second {
		t.Errorf("timeout = %v, want 1s", cfg.timeout)
	}
	if cfg.predicate == nil {
		t.Error("predicate was not set")
	}
}

func TestWaitConfig_Matches(t *testing.T) {
	msg := &Message{ID: "k1", From: "alice", To: "bob", Text: "hello world"}

	tests := []struct {
		name string
		cfg  waitConfig
		want bool
	}{
		{"empty matches all", waitConfig{}, true},
		{"from match", waitConfig{from: "alice"}, true},
		{"from mismatch", waitConfig{from: "carol"}, false},
		{"predicate true", waitConfig{predicate: func(m *Message) bool { return m.Text == "hello world" }}, true},
		{"predicate false", waitConfig{predicate: func(m *Message) bool { return false }}, false},
		{"from and predicate", waitConfig{from: "alice", predicate: func(m *Message) bool { return m.To == "bob" }}, true},
		{"from ok predicate false", waitConfig{from: "alice", predicate: func(m *Message) bool { return false }}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Matches(msg); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
