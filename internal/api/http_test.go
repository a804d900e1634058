package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/heysubinoy/pyazkv/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
)

type testClient struct {
	t       *testing.T
	handler http.Handler
}

func newTestClient(t *testing.T, srv *Server) *testClient {
	t.Helper()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return &testClient{t: t, handler: srv.WithLogging(mux)}
}

func newMemoryClient(t *testing.T) *testClient {
	return newTestClient(t, NewServer(store.NewMemStore(4), nil, hclog.NewNullLogger()))
}

func newRaftClient(t *testing.T) *testClient {
	t.Helper()
	rs, err := store.NewRaftStore(store.NewMemStore(4), store.RaftOptions{
		NodeID:           "http-test",
		ApplyTimeout:     time.Second,
		HeartbeatTimeout: 50 * time.Millisecond,
		ElectionTimeout:  50 * time.Millisecond,
	}, hclog.NewNullLogger())
	if err != nil {
		t.Fatalf("NewRaftStore: %v", err)
	}
	t.Cleanup(func() { rs.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.WaitForLeader(ctx); err != nil {
		t.Fatalf("WaitForLeader: %v", err)
	}
	return newTestClient(t, NewServer(rs, rs.GetRaft(), hclog.NewNullLogger()))
}

func (c *testClient) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *testClient) put(key, body string) *httptest.ResponseRecorder {
	return c.do(http.MethodPut, "/data/"+key, body)
}

func (c *testClient) get(key string) *httptest.ResponseRecorder {
	return c.do(http.MethodGet, "/data/"+key, "")
}

func (c *testClient) del(key string) *httptest.ResponseRecorder {
	return c.do(http.MethodDelete, "/data/"+key, "")
}

func (c *testClient) all() map[string]any {
	c.t.Helper()
	rec := c.do(http.MethodGet, "/data", "")
	if rec.Code != http.StatusOK {
		c.t.Fatalf("GET /data = %d", rec.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		c.t.Fatalf("GET /data body %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, want, rec.Body.String())
	}
}

func expectValue(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	expectStatus(t, rec, http.StatusOK)
	var body struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if string(body.Value) != want {
		t.Fatalf("value = %s, want %s", body.Value, want)
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, c *testClient)) {
	t.Run("memory", func(t *testing.T) { fn(t, newMemoryClient(t)) })
	t.Run("raft", func(t *testing.T) { fn(t, newRaftClient(t)) })
}

func TestScenario_CreateUpdateDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient) {
		expectStatus(t, c.put("foo", `{"value":"bar"}`), http.StatusCreated)
		expectValue(t, c.get("foo"), `"bar"`)
		expectStatus(t, c.put("foo", `{"value":"baz"}`), http.StatusOK)
		expectValue(t, c.get("foo"), `"baz"`)
		expectStatus(t, c.del("foo"), http.StatusOK)
		expectStatus(t, c.get("foo"), http.StatusNotFound)
	})
}

func TestGet_MissingKey(t *testing.T) {
	c := newMemoryClient(t)

	rec := c.get("never-set")
	expectStatus(t, rec, http.StatusNotFound)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "Key not found!" {
		t.Errorf("error = %q, want %q", body["error"], "Key not found!")
	}
}

func TestPut_FalsyValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient) {
		values := map[string]string{
			"empty-string": `""`,
			"zero":         `0`,
			"false":        `false`,
			"null":         `null`,
			"empty-object": `{}`,
			"empty-array":  `[]`,
		}
		for key, v := range values {
			expectStatus(t, c.put(key, `{"value":`+v+`}`), http.StatusCreated)
			expectValue(t, c.get(key), v)
		}
		if got := len(c.all()); got != len(values) {
			t.Errorf("GET /data returned %d keys, want %d", got, len(values))
		}
		for key := range values {
			expectStatus(t, c.del(key), http.StatusOK)
		}
	})
}

func TestPut_NestedValue(t *testing.T) {
	c := newMemoryClient(t)

	expectStatus(t, c.put("cfg", `{"value": {"a": [1, 2, {"b": null}]}}`), http.StatusCreated)
	expectValue(t, c.get("cfg"), `{"a":[1,2,{"b":null}]}`)
}

func TestPut_InvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no body", ""},
		{"not json", "not json"},
		{"missing value field", `{"bad":"field"}`},
		{"json null", `null`},
		{"array", `["value"]`},
		{"trailing data", `{"value":1} {"value":2}`},
		{"truncated", `{"value":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMemoryClient(t)

			expectStatus(t, c.put("test", tt.body), http.StatusBadRequest)
			expectStatus(t, c.get("test"), http.StatusNotFound)

			expectStatus(t, c.put("test", `{"value":"prior"}`), http.StatusCreated)
			expectStatus(t, c.put("test", tt.body), http.StatusBadRequest)
			expectValue(t, c.get("test"), `"prior"`)
		})
	}
}

func TestPut_BodyTooLarge(t *testing.T) {
	srv := NewServer(store.NewMemStore(1), nil, hclog.NewNullLogger())
	srv.MaxBodyBytes = 16
	c := newTestClient(t, srv)

	expectStatus(t, c.put("big", `{"value":"`+strings.Repeat("x", 64)+`"}`), http.StatusRequestEntityTooLarge)
	expectStatus(t, c.get("big"), http.StatusNotFound)
}

func TestPut_InvalidKey(t *testing.T) {
	c := newMemoryClient(t)

	expectStatus(t, c.put("a%2Fb", `{"value":1}`), http.StatusBadRequest)
	if len(c.all()) != 0 {
		t.Errorf("invalid key must not be stored")
	}
}

func TestPut_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient) {
		expectStatus(t, c.put("k", `{"value":42}`), http.StatusCreated)
		expectStatus(t, c.put("k", `{"value":42}`), http.StatusOK)

		want := map[string]any{"k": float64(42)}
		if got := c.all(); !reflect.DeepEqual(got, want) {
			t.Errorf("GET /data = %v, want %v", got, want)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient) {
		expectStatus(t, c.put("keep", `{"value":"x"}`), http.StatusCreated)

		rec := c.del("missing")
		expectStatus(t, rec, http.StatusNotFound)
		if got := c.all(); len(got) != 1 || got["keep"] != "x" {
			t.Errorf("failed delete changed the store: %v", got)
		}

		rec = c.do(http.MethodDelete, "/data/keep", `{"ignored":true}`)
		expectStatus(t, rec, http.StatusOK)
		expectStatus(t, c.get("keep"), http.StatusNotFound)
	})
}

func TestBulkOperations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, c *testClient) {
		if got := c.all(); len(got) != 0 {
			t.Fatalf("expected empty store, got %v", got)
		}
		rec := c.do(http.MethodGet, "/data", "")
		if strings.TrimSpace(rec.Body.String()) != "{}" {
			t.Errorf("empty store body = %q, want {}", rec.Body.String())
		}

		data := map[string]string{"a": "first", "b": "second", "c": "third"}
		for _, k := range []string{"a", "b", "c"} {
			expectStatus(t, c.put(k, `{"value":"`+data[k]+`"}`), http.StatusCreated)
		}

		updates := map[string]string{"a": "updated_a", "c": "updated_c"}
		for k, v := range updates {
			expectStatus(t, c.put(k, `{"value":"`+v+`"}`), http.StatusOK)
		}

		want := map[string]any{"a": "updated_a", "b": "second", "c": "updated_c"}
		if got := c.all(); !reflect.DeepEqual(got, want) {
			t.Errorf("after updates = %v, want %v", got, want)
		}

		expectStatus(t, c.del("b"), http.StatusOK)
		delete(want, "b")
		if got := c.all(); !reflect.DeepEqual(got, want) {
			t.Errorf("after delete = %v, want %v", got, want)
		}
	})
}

func TestMethodNotAllowed(t *testing.T) {
	c := newMemoryClient(t)

	expectStatus(t, c.do(http.MethodPost, "/data/foo", `{"value":1}`), http.StatusMethodNotAllowed)
	expectStatus(t, c.do(http.MethodPut, "/data", `{"value":1}`), http.StatusMethodNotAllowed)
}

func TestHealth(t *testing.T) {
	c := newMemoryClient(t)

	rec := c.do(http.MethodGet, "/healthz", "")
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "OK" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

// failingStore reports an unexpected error on every mutation.
type failingStore struct{ kv.Store }

func (failingStore) Set(string, kv.Value) (bool, error) { return false, io.ErrUnexpectedEOF }
func (failingStore) Delete(string) error                { return io.ErrUnexpectedEOF }

func TestStoreFailureIsInternalError(t *testing.T) {
	c := newTestClient(t, NewServer(failingStore{store.NewMemStore(1)}, nil, hclog.NewNullLogger()))

	expectStatus(t, c.put("k", `{"value":1}`), http.StatusInternalServerError)
	expectStatus(t, c.del("k"), http.StatusInternalServerError)
}

func TestNotLeaderStoreError(t *testing.T) {
	srv := NewServer(store.NewMemStore(1), nil, hclog.NewNullLogger())
	rec := httptest.NewRecorder()
	srv.writeStoreError(rec, store.ErrNotLeader)
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestWithLogging_RecoversPanic(t *testing.T) {
	srv := NewServer(store.NewMemStore(1), nil, hclog.NewNullLogger())
	h := srv.WithLogging(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))
	expectStatus(t, rec, http.StatusInternalServerError)
}

func TestMetricsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst := store.NewInstrumentedStore(store.NewMemStore(2), reg)
	srv := NewServer(inst, nil, hclog.NewNullLogger())

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	RegisterMetricsRoutes(mux, inst, reg)
	c := &testClient{t: t, handler: mux}

	c.put("a", `{"value":1}`)
	c.get("a")

	rec := c.do(http.MethodGet, "/metrics", "")
	expectStatus(t, rec, http.StatusOK)
	var snapshot struct {
		Keys       int               `json:"keys"`
		Operations map[string]uint64 `json:"operations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snapshot.Keys != 1 || snapshot.Operations["set"] != 1 || snapshot.Operations["get"] != 1 {
		t.Errorf("metrics = %+v", snapshot)
	}

	rec = c.do(http.MethodGet, "/metrics/prometheus", "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "pyazkv_store_operations_total") {
		t.Errorf("prometheus output missing operations counter")
	}
}

func TestMetricsReset(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst := store.NewInstrumentedStore(store.NewMemStore(2), reg)
	srv := NewServer(inst, nil, hclog.NewNullLogger())

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	RegisterMetricsRoutes(mux, inst, reg)
	c := &testClient{t: t, handler: mux}

	c.put("a", `{"value":1}`)
	c.get("a")

	expectStatus(t, c.do(http.MethodPost, "/metrics/reset", ""), http.StatusNoContent)
	expectStatus(t, c.do(http.MethodGet, "/metrics/reset", ""), http.StatusMethodNotAllowed)

	m := inst.GetMetrics()
	if m.GetCount != 0 || m.SetCount != 0 {
		t.Errorf("counters not cleared: %+v", m)
	}
	if m.Keys != 1 {
		t.Errorf("reset must keep data, Keys = %d", m.Keys)
	}
	rec := c.do(http.MethodGet, "/metrics/prometheus", "")
	if !strings.Contains(rec.Body.String(), `pyazkv_store_operations_total{op="set",result="ok"} 1`) {
		t.Errorf("prometheus counters must survive a reset:\n%s", rec.Body.String())
	}
}
