package rtdb

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeDB is a minimal realtime database: a JSON tree served over REST with
// streaming GETs that report children pushed to the streamed location.
type fakeDB struct {
	mu      sync.Mutex
	root    map[string]any
	seq     int
	watches map[string][]chan string
	methods []string

	quit chan struct{}
	srv  *httptest.Server
}

func newFakeDB(t *testing.T) *fakeDB {
	t.Helper()
	f := &fakeDB{
		root:    make(map[string]any),
		watches: make(map[string][]chan string),
		quit:    make(chan struct{}),
	}
	f.srv = httptest.NewServer(f)
	t.Cleanup(func() {
		close(f.quit)
		f.srv.Close()
	})
	return f
}

func segments(urlPath string) []string {
	p := strings.TrimSuffix(strings.Trim(urlPath, "/"), ".json")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (f *fakeDB) lookup(segs []string) any {
	var node any = f.root
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

func (f *fakeDB) parent(segs []string) map[string]any {
	node := f.root
	for _, s := range segs[:len(segs)-1] {
		next, ok := node[s].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[s] = next
		}
		node = next
	}
	return node
}

func (f *fakeDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segs := segments(r.URL.Path)
	if r.Header.Get("Accept") == "text/event-stream" {
		f.serveStream(w, r, strings.Join(segs, "/"))
		return
	}

	body, _ := io.ReadAll(r.Body)
	var value any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &value); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":%q}`, err.Error())
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, r.Method)

	switch r.Method {
	case http.MethodGet:
		node := f.lookup(segs)
		if startAt, err := strconv.Unquote(r.URL.Query().Get("startAt")); err == nil {
			if m, ok := node.(map[string]any); ok {
				filtered := make(map[string]any)
				for k, v := range m {
					if k >= startAt {
						filtered[k] = v
					}
				}
				node = filtered
			}
		}
		json.NewEncoder(w).Encode(node)
	case http.MethodPut:
		f.parent(segs)[segs[len(segs)-1]] = value
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch:
		p := f.parent(segs)
		obj, ok := p[segs[len(segs)-1]].(map[string]any)
		if !ok {
			obj = make(map[string]any)
			p[segs[len(segs)-1]] = obj
		}
		for k, v := range value.(map[string]any) {
			obj[k] = v
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		f.seq++
		key := fmt.Sprintf("-K%08d", f.seq)
		child := append(slices.Clone(segs), key)
		f.parent(child)[key] = value
		event := fmt.Sprintf("event: put\ndata: {\"path\":\"/%s\",\"data\":%s}\n\n", key, body)
		for _, ch := range f.watches[strings.Join(segs, "/")] {
			ch <- event
		}
		fmt.Fprintf(w, `{"name":%q}`, key)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeDB) serveStream(w http.ResponseWriter, r *http.Request, path string) {
	ch := make(chan string, 64)

	f.mu.Lock()
	snapshot, _ := json.Marshal(f.lookup(segments(path)))
	f.watches[path] = append(f.watches[path], ch)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.watches[path] = slices.DeleteFunc(f.watches[path], func(c chan string) bool { return c == ch })
		f.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "event: put\ndata: {\"path\":\"/\",\"data\":%s}\n\n", snapshot)
	w.(http.Flusher).Flush()

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

func (f *fakeDB) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.methods)
}
