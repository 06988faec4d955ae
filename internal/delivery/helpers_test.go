package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sparkle/client-go/internal/api"
)

// fakeDB serves one location's children over the REST and streaming
// interfaces of a realtime database.
type fakeDB struct {
	mu        sync.Mutex
	children  map[string]json.RawMessage
	streams   []chan string
	connects  int
	lists     int
	denyWatch bool
	dropAfter bool

	quit chan struct{}
	srv  *httptest.Server
}

func newFakeDB(t *testing.T) *fakeDB {
	t.Helper()
	f := &fakeDB{
		children: make(map[string]json.RawMessage),
		quit:     make(chan struct{}),
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(func() {
		close(f.quit)
		f.srv.Close()
	})
	return f
}

func (f *fakeDB) client(t *testing.T) *api.Client {
	t.Helper()
	c, err := api.New(f.srv.URL, api.WithRetryDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("api.New() error = %v", err)
	}
	return c
}

func (f *fakeDB) add(key string, n int) {
	value := json.RawMessage(strconv.Itoa(n))
	f.mu.Lock()
	f.children[key] = value
	streams := slices.Clone(f.streams)
	f.mu.Unlock()

	event := fmt.Sprintf("event: put\ndata: {\"path\":\"/%s\",\"data\":%s}\n\n", key, value)
	for _, ch := range streams {
		select {
		case ch <- event:
		case <-f.quit:
		}
	}
}

func (f *fakeDB) snapshot() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.children) == 0 {
		return []byte("null")
	}
	data, _ := json.Marshal(f.children)
	return data
}

func (f *fakeDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Accept") == "text/event-stream" {
		f.serveStream(w, r)
		return
	}

	f.mu.Lock()
	f.lists++
	startAt, _ := strconv.Unquote(r.URL.Query().Get("startAt"))
	out := make(map[string]json.RawMessage)
	for k, v := range f.children {
		if k >= startAt {
			out[k] = v
		}
	}
	f.mu.Unlock()

	if len(out) == 0 {
		w.Write([]byte("null"))
		return
	}
	json.NewEncoder(w).Encode(out)
}

func (f *fakeDB) serveStream(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.connects++
	deny, drop := f.denyWatch, f.dropAfter
	f.mu.Unlock()

	if deny {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Permission denied"}`))
		return
	}

	ch := make(chan string, 16)
	f.mu.Lock()
	f.streams = append(f.streams, ch)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.streams = slices.DeleteFunc(f.streams, func(c chan string) bool { return c == ch })
		f.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "event: put\ndata: {\"path\":\"/\",\"data\":%s}\n\n", f.snapshot())
	w.(http.Flusher).Flush()
	if drop {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-f.quit:
			return
		case event := <-ch:
			w.Write([]byte(event))
			w.(http.Flusher).Flush()
		}
	}
}

func (f *fakeDB) denyStreams() {
	f.mu.Lock()
	f.denyWatch = true
	f.mu.Unlock()
}

func (f *fakeDB) dropStreams() {
	f.mu.Lock()
	f.dropAfter = true
	f.mu.Unlock()
}

func (f *fakeDB) connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// recorder collects delivered children.
type recorder struct {
	mu      sync.Mutex
	keys    []string
	active  int
	overlap bool
}

func (r *recorder) handle(ctx context.Context, c Child) error {
	r.mu.Lock()
	r.active++
	if r.active > 1 {
		r.overlap = true
	}
	r.keys = append(r.keys, c.Key)
	r.mu.Unlock()

	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.keys)
}

func (r *recorder) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if keys := r.snapshot(); len(keys) >= n {
			return keys
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d children, got %v", n, r.snapshot())
	return nil
}

func fastConfig(client *api.Client) Config {
	return Config{
		APIClient:               client,
		PollingInitialInterval:  10 * time.Millisecond,
		PollingMaxBackoff:       20 * time.Millisecond,
		SSEReconnectInterval:    10 * time.Millisecond,
		SSEConnectionTimeout:    2 * time.Second,
		SSEMaxReconnectAttempts: 3,
	}
}

func joinKeys(keys []string) string {
	return strings.Join(keys, ",")
}
