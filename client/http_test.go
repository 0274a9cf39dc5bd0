package client_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/nStangl/minivault-go/client"
)

// vaultHandler mimics the MiniVault HTTP surface: raw bodies on GET,
// a {success, error} envelope on mutations, X-API-Key auth.
type vaultHandler struct {
	apiKey string

	mu   sync.Mutex
	data map[string][]byte
}

func (h *vaultHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path[1:]

	if key == "health" && r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(client.Health{Status: "healthy", CacheItems: int64(len(h.data))})
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.mu.Lock()
		v, ok := h.data[key]
		h.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}

		_, _ = w.Write(v)

	case http.MethodPut, http.MethodDelete:
		if h.apiKey != "" && r.Header.Get("X-API-Key") != h.apiKey {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "unauthorized"})
			return
		}

		h.mu.Lock()
		if r.Method == http.MethodPut {
			var buf bytes.Buffer
			_, _ = buf.ReadFrom(r.Body)
			h.data[key] = buf.Bytes()
		} else {
			delete(h.data, key)
		}
		h.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func newHTTP(t *testing.T, apiKey string, opts ...client.Option) (client.Client, *vaultHandler, *logtest.Hook) {
	t.Helper()

	h := &vaultHandler{apiKey: apiKey, data: make(map[string][]byte)}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger, hook := logtest.NewNullLogger()
	opts = append(opts, client.WithLogger(logger))

	return client.NewHTTP(srv.URL, opts...), h, hook
}

func TestHTTPSetGetDelete(t *testing.T) {
	c, _, _ := newHTTP(t, "")

	if !c.Set("user:1", []byte("alice")) {
		t.Fatal("set returned false")
	}

	if got := c.Get("user:1"); !bytes.Equal(got, []byte("alice")) {
		t.Errorf("get = %q but expected %q", got, "alice")
	}

	if !c.Exists("user:1") {
		t.Error("exists = false for a stored key")
	}

	if !c.Delete("user:1") {
		t.Fatal("delete returned false")
	}

	if c.Exists("user:1") {
		t.Error("exists = true after delete")
	}
}

func TestHTTPGetAbsent(t *testing.T) {
	c, _, hook := newHTTP(t, "")

	if got := c.Get("nope"); got != nil {
		t.Errorf("get on missing key = %q but expected nil", got)
	}

	// A 404 is a clean miss, not a failure.
	if len(hook.Entries) != 0 {
		t.Errorf("missing key logged %d diagnostics", len(hook.Entries))
	}
}

func TestHTTPCredentialHeader(t *testing.T) {
	c, h, _ := newHTTP(t, "tok", client.WithAPIKey("tok"))

	if !c.Set("k", []byte("v")) {
		t.Fatal("authenticated set returned false")
	}

	if got, ok := h.data["k"]; !ok || !bytes.Equal(got, []byte("v")) {
		t.Errorf("stored value = (%q, %t) but expected %q", got, ok, "v")
	}
}

func TestHTTPEnvelopeFailureCollapses(t *testing.T) {
	c, h, hook := newHTTP(t, "tok", client.WithAPIKey("wrong"))

	if c.Set("k", []byte("v")) {
		t.Error("set with a rejected credential returned true")
	}

	if _, ok := h.data["k"]; ok {
		t.Error("value was stored despite the rejected credential")
	}

	if c.Delete("k") {
		t.Error("delete with a rejected credential returned true")
	}

	if len(hook.Entries) < 2 {
		t.Errorf("expected a diagnostic per failed call, got %d", len(hook.Entries))
	}
}

func TestHTTPHealth(t *testing.T) {
	c, h, _ := newHTTP(t, "")
	h.data["a"] = []byte("1")

	report := c.Health()
	if report == nil {
		t.Fatal("health returned nil")
	}

	if report.Status != "healthy" || report.CacheItems != 1 {
		t.Errorf("health = %+v but expected healthy/1", report)
	}
}

func TestHTTPServerGoneCollapses(t *testing.T) {
	h := &vaultHandler{data: make(map[string][]byte)}
	srv := httptest.NewServer(h)
	url := srv.URL
	srv.Close()

	logger, hook := logtest.NewNullLogger()
	c := client.NewHTTP(url, client.WithLogger(logger))

	if got := c.Get("k"); got != nil {
		t.Errorf("get against a dead server = %q but expected nil", got)
	}

	if c.Set("k", []byte("v")) {
		t.Error("set against a dead server returned true")
	}

	if len(hook.Entries) < 2 {
		t.Errorf("expected a diagnostic per failed call, got %d", len(hook.Entries))
	}
}

func TestHTTPJSON(t *testing.T) {
	type user struct {
		Name string `json:"name"`
	}

	c, _, _ := newHTTP(t, "")

	if !c.SetJSON("user:1", user{Name: "Alice"}) {
		t.Fatal("set json returned false")
	}

	var got user
	if !c.GetJSON("user:1", &got) {
		t.Fatal("get json returned false")
	}

	if got.Name != "Alice" {
		t.Errorf("get json name = %q but expected %q", got.Name, "Alice")
	}
}
