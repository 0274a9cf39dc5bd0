package client_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/nStangl/minivault-go/client"
	"github.com/nStangl/minivault-go/vaulttest"
)

const testTimeout = 500 * time.Millisecond

func newServer(t *testing.T, opts ...vaulttest.Option) *vaulttest.Server {
	t.Helper()

	srv, err := vaulttest.New(opts...)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}

	t.Cleanup(srv.Close)

	return srv
}

func newBinary(t *testing.T, srv *vaulttest.Server, opts ...client.Option) (client.Client, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	opts = append(opts, client.WithTimeout(testTimeout), client.WithLogger(logger))

	return client.NewBinary(srv.Addr(), opts...), hook
}

func TestBinarySetGetDelete(t *testing.T) {
	srv := newServer(t)
	c, hook := newBinary(t, srv)

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

	for _, e := range hook.Entries {
		if e.Level <= logrus.WarnLevel && e.Message != "get failed" {
			t.Errorf("unexpected diagnostic: %s", e.Message)
		}
	}
}

func TestBinaryGetAbsent(t *testing.T) {
	srv := newServer(t)
	c, hook := newBinary(t, srv)

	if got := c.Get("nope"); got != nil {
		t.Errorf("get on missing key = %q but expected nil", got)
	}

	// The failure is observable only on the side channel.
	if len(hook.Entries) == 0 {
		t.Error("missing-key get left no diagnostic")
	}
}

func TestBinaryGetEmptyBodyMeansAbsent(t *testing.T) {
	srv := newServer(t)
	srv.Put("blank", []byte{})

	c, _ := newBinary(t, srv)

	// A zero-length success body is the wire's "not found"; an empty
	// stored value is indistinguishable from a missing key.
	if got := c.Get("blank"); got != nil {
		t.Errorf("get on empty value = %#v but expected nil", got)
	}

	if c.Exists("blank") {
		t.Error("exists = true for an empty stored value")
	}
}

func TestBinaryNilValueSet(t *testing.T) {
	srv := newServer(t)
	c, _ := newBinary(t, srv)

	if !c.Set("k", nil) {
		t.Fatal("set with nil value returned false")
	}

	if v, ok := srv.Value("k"); !ok || len(v) != 0 {
		t.Errorf("stored value = (%q, %t) but expected an empty value", v, ok)
	}
}

func TestBinaryAuthenticated(t *testing.T) {
	srv := newServer(t, vaulttest.WithAPIKey("tok"))
	c, _ := newBinary(t, srv, client.WithAPIKey("tok"))

	if !c.Set("k", []byte("v")) {
		t.Fatal("authenticated set returned false")
	}

	if got := c.Get("k"); !bytes.Equal(got, []byte("v")) {
		t.Errorf("authenticated get = %q but expected %q", got, "v")
	}
}

func TestBinaryAuthRejected(t *testing.T) {
	srv := newServer(t, vaulttest.WithAPIKey("tok"))
	c, hook := newBinary(t, srv, client.WithAPIKey("wrong"))

	if c.Set("k", []byte("v")) {
		t.Error("set with a rejected credential returned true")
	}

	// The operation must never reach the store after a failed
	// handshake.
	if _, ok := srv.Value("k"); ok {
		t.Error("value was stored despite auth failure")
	}

	if len(hook.Entries) == 0 {
		t.Error("auth failure left no diagnostic")
	}
}

func TestBinaryUnauthenticatedRejected(t *testing.T) {
	srv := newServer(t, vaulttest.WithAPIKey("tok"))
	srv.Put("k", []byte("v"))

	c, _ := newBinary(t, srv)

	if got := c.Get("k"); got != nil {
		t.Errorf("unauthenticated get = %q but expected nil", got)
	}
}

func TestBinaryServerErrorCollapses(t *testing.T) {
	srv := newServer(t)
	srv.Inject("doomed", vaulttest.FaultErrorStatus)

	c, hook := newBinary(t, srv)

	if c.Set("doomed", []byte("v")) {
		t.Error("set = true on an error status")
	}

	if c.Delete("doomed") {
		t.Error("delete = true on an error status")
	}

	if got := c.Get("doomed"); got != nil {
		t.Errorf("get = %q on an error status but expected nil", got)
	}

	if len(hook.Entries) < 3 {
		t.Errorf("expected a diagnostic per failed call, got %d", len(hook.Entries))
	}
}

func TestBinaryConnectFailureCollapses(t *testing.T) {
	srv := newServer(t)
	addr := srv.Addr()
	srv.Close()

	logger, hook := logtest.NewNullLogger()
	c := client.NewBinary(addr, client.WithTimeout(testTimeout), client.WithLogger(logger))

	if got := c.Get("k"); got != nil {
		t.Errorf("get against a dead server = %q but expected nil", got)
	}

	if c.Set("k", []byte("v")) {
		t.Error("set against a dead server returned true")
	}

	if c.Health() != nil {
		t.Error("health against a dead server returned a report")
	}

	if len(hook.Entries) < 3 {
		t.Errorf("expected a diagnostic per failed call, got %d", len(hook.Entries))
	}
}

func TestBinaryHealth(t *testing.T) {
	srv := newServer(t)
	srv.Put("a", []byte("1"))
	srv.Put("b", []byte("2"))

	c, _ := newBinary(t, srv)

	h := c.Health()
	if h == nil {
		t.Fatal("health returned nil")
	}

	if h.Status != "healthy" {
		t.Errorf("health status = %q but expected %q", h.Status, "healthy")
	}

	if h.CacheItems != 2 {
		t.Errorf("health cache items = %d but expected 2", h.CacheItems)
	}
}

func TestBinaryJSON(t *testing.T) {
	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	srv := newServer(t)
	c, hook := newBinary(t, srv)

	if !c.SetJSON("user:1", user{Name: "Alice", Age: 30}) {
		t.Fatal("set json returned false")
	}

	var got user
	if !c.GetJSON("user:1", &got) {
		t.Fatal("get json returned false")
	}

	if got.Name != "Alice" || got.Age != 30 {
		t.Errorf("get json = %+v but expected Alice/30", got)
	}

	// Malformed payloads are reported as absent, never fatal.
	srv.Put("garbage", []byte("{not json"))

	var g user
	if c.GetJSON("garbage", &g) {
		t.Error("get json = true for a malformed payload")
	}

	if len(hook.Entries) == 0 {
		t.Error("malformed payload left no diagnostic")
	}
}

func TestBinaryFrameTooLargeNoDial(t *testing.T) {
	srv := newServer(t)
	addr := srv.Addr()
	srv.Close()

	logger, _ := logtest.NewNullLogger()
	c := client.NewBinary(addr, client.WithTimeout(testTimeout), client.WithLogger(logger))

	// Encode-time failures are caught before any wire interaction, so
	// even a dead server address does not slow the call down.
	start := time.Now()

	if c.Set(string(bytes.Repeat([]byte("k"), 1<<16)), []byte("v")) {
		t.Error("set with an oversized key returned true")
	}

	if elapsed := time.Since(start); elapsed > testTimeout {
		t.Errorf("oversized-key set took %s, suggesting it dialed", elapsed)
	}
}
