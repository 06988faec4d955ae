package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior for failed HTTP requests.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int
	// BaseDelay is the initial delay between retry attempts.
	BaseDelay time.Duration
	// MaxDelay is the maximum delay between retry attempts.
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases after each attempt.
	Multiplier float64
	// Jitter is the randomization factor (0.0 to 1.0) applied to each delay.
	Jitter float64
	// RetryableOn determines if a status code should trigger a retry.
	RetryableOn func(statusCode int) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseDelay:   DefaultRetryDelay,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
		RetryableOn: statusSet([]int{408, 429, 500, 502, 503, 504}),
	}
}

func statusSet(codes []int) func(int) bool {
	codes = slices.Clone(codes)
	return func(statusCode int) bool {
		return slices.Contains(codes, statusCode)
	}
}

// RetryStatus reports whether a response with statusCode should be retried.
// A POST creates a new child on every call, so it is only retried when the
// server says it did not process the request.
func (r *RetryConfig) RetryStatus(method string, statusCode int) bool {
	if method == http.MethodPost {
		return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
	}
	return r.RetryableOn != nil && r.RetryableOn(statusCode)
}

// RetryNetwork reports whether a transport failure should be retried.
func (r *RetryConfig) RetryNetwork(method string) bool {
	return method != http.MethodPost
}

// BackOff builds the exponential policy for one request.
func (r *RetryConfig) BackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseDelay
	b.MaxInterval = r.MaxDelay
	b.Multiplier = r.Multiplier
	b.RandomizationFactor = r.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
