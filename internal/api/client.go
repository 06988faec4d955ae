package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Client talks to a realtime database over its REST interface. Every path
// maps to "<base>/<path>.json".
type Client struct {
	baseURL      string
	authToken    string
	httpClient   *http.Client
	streamClient *http.Client
	retry        *RetryConfig
	logger       zerolog.Logger
}

// Config holds the configuration for NewClient.
type Config struct {
	// BaseURL is the database root, e.g. "https://example.firebaseio.com".
	BaseURL string
	// AuthToken is sent as a bearer token when set. Databases with public
	// rules need none.
	AuthToken string
	// HTTPClient overrides the default client. Event streams reuse its
	// transport without the timeout.
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryDelay is the initial retry delay.
	RetryDelay time.Duration
	// RetryOn overrides the retryable status codes.
	RetryOn []int
	// Logger receives request level debug output.
	Logger *zerolog.Logger
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		retry.BaseDelay = cfg.RetryDelay
	}
	if len(cfg.RetryOn) > 0 {
		retry.RetryableOn = statusSet(cfg.RetryOn)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		httpClient: httpClient,
		streamClient: &http.Client{
			Transport:     httpClient.Transport,
			CheckRedirect: httpClient.CheckRedirect,
			Jar:           httpClient.Jar,
		},
		retry:  retry,
		logger: logger,
	}, nil
}

// Option configures a client built with New.
type Option func(*Config)

// WithAuthToken sets the bearer token.
func WithAuthToken(token string) Option {
	return func(c *Config) {
		c.AuthToken = token
	}
}

// WithRetries sets the number of retries.
func WithRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = &logger
	}
}

// New creates a client for baseURL with functional options.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := Config{BaseURL: baseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewClient(cfg)
}

// BaseURL returns the database root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL returns the REST URL of path with query appended.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + "/" + cleanPath(path) + ".json"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func cleanPath(path string) string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, url.PathEscape(p))
		}
	}
	return strings.Join(out, "/")
}

// Do performs a JSON request with retries. result may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}
	target := c.URL(path, query)

	attempt := 0
	op := func() error {
		attempt++

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		c.setHeaders(req, "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			netErr := &NetworkError{Err: err, URL: redact(target), Attempt: attempt}
			if !c.retry.RetryNetwork(method) {
				return backoff.Permanent(netErr)
			}
			return netErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			apiErr := parseErrorResponse(resp, path)
			if c.retry.RetryStatus(method, resp.StatusCode) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
				return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
			}
		}
		return nil
	}

	return backoff.RetryNotify(op, c.retry.BackOff(ctx), func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).
			Int("attempt", attempt).Dur("wait", wait).Msg("retrying request")
	})
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Accept", accept)
}

// redact strips the query string, which may carry credentials.
func redact(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func parseErrorResponse(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
			Path:       path,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		Path:       path,
	}
}
