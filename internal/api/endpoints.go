package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

var jsonNull = []byte("null")

// Put replaces the value at path.
func (c *Client) Put(ctx context.Context, path string, value any) error {
	return c.Do(ctx, http.MethodPut, path, printSilent(), value, nil)
}

// Patch updates the named members of the object at path and leaves the
// others untouched.
func (c *Client) Patch(ctx context.Context, path string, value any) error {
	return c.Do(ctx, http.MethodPatch, path, printSilent(), value, nil)
}

// Get returns the raw value at path. A path holding no value yields
// ErrNotFound.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return raw, nil
}

// Post appends value as a new child of path and returns the generated key.
func (c *Client) Post(ctx context.Context, path string, value any) (string, error) {
	var result PushResponse
	if err := c.Do(ctx, http.MethodPost, path, nil, value, &result); err != nil {
		return "", err
	}
	if result.Name == "" {
		return "", fmt.Errorf("push to %s returned no key", path)
	}
	return result.Name, nil
}

// Children returns the children of path ordered by key. When after is not
// empty only keys greater than after are returned.
func (c *Client) Children(ctx context.Context, path, after string) (map[string]json.RawMessage, error) {
	query := url.Values{}
	query.Set("orderBy", strconv.Quote("$key"))
	if after != "" {
		query.Set("startAt", strconv.Quote(after))
	}

	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return nil, err
	}
	children := make(map[string]json.RawMessage)
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return children, nil
	}
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("children of %s: %w", path, err)
	}
	delete(children, after)
	return children, nil
}

// OpenStream opens a server-sent event stream on path. The caller must
// close the response body.
func (c *Client) OpenStream(ctx context.Context, path string) (*http.Response, error) {
	target := c.URL(path, nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{Err: err, URL: redact(target), Attempt: 1}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp, path)
	}
	return resp, nil
}

// printSilent asks the server to answer writes with 204 and no body.
func printSilent() url.Values {
	return url.Values{"print": []string{"silent"}}
}
