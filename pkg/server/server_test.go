package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexepic/metrix-studio/pkg/commands"
	"github.com/nexepic/metrix-studio/pkg/config"
	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/history"
	"github.com/nexepic/metrix-studio/pkg/native"
	"github.com/nexepic/metrix-studio/pkg/native/nativetest"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestServer(t *testing.T) (*Server, *nativetest.Engine) {
	t.Helper()

	engine := nativetest.NewEngine()
	engine.On("MATCH (a)-[r]->(b) RETURN a, r, b", nativetest.Rows([]string{"a", "r", "b"}, []native.Cell{
		native.NodeCell(1, native.Str("Person"), native.Str(`{"name":"ann"}`)),
		native.EdgeCell(10, 1, 2, native.Str("KNOWS"), native.Str(`{"since":2020}`)),
		native.NodeCell(2, native.Str("Person"), native.Str(`{"name":"bob"}`)),
	}))
	engine.On("RETURN 1", nativetest.Rows([]string{"1"}, []native.Cell{native.IntCell(1)}))
	engine.On("MATC", nativetest.Fail("Parser exception"))
	engine.On("CRASH", nativetest.SystemFail("engine crashed"))

	store, err := history.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := commands.New(engine, commands.WithHistory(store))
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	srv, err := New(svc, nil, nil)
	require.NoError(t, err)
	return srv, engine
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["error"])
	assert.Equal(t, message, body["message"])
	assert.Equal(t, float64(status), body["code"])
}

// =============================================================================
// Tests
// =============================================================================

func TestNewRequiresService(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}

func TestOpenQueryClose(t *testing.T) {
	srv, engine := setupTestServer(t)

	rec := do(t, srv, http.MethodPost, "/db/open", PathRequest{Path: "/data/social.mx"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Database created/opened at /data/social.mx", decode(t, rec)["message"])

	rec = do(t, srv, http.MethodGet, "/db/status", nil)
	assert.JSONEq(t, `{"state":"open","path":"/data/social.mx","connected":true}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "MATCH (a)-[r]->(b) RETURN a, r, b"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result struct {
		Columns    []string            `json:"columns"`
		Rows       [][]json.RawMessage `json:"rows"`
		Nodes      []driver.GraphNode  `json:"nodes"`
		Edges      []driver.GraphEdge  `json:"edges"`
		DurationMS *int64              `json:"duration_ms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"a", "r", "b"}, result.Columns)
	require.Len(t, result.Rows, 1)
	assert.JSONEq(t, `{"_type":"node","id":1}`, string(result.Rows[0][0]))
	assert.JSONEq(t, `{"_type":"edge","id":10}`, string(result.Rows[0][1]))
	require.Len(t, result.Nodes, 2)
	assert.Equal(t, "bob", result.Nodes[1].Properties["name"])
	require.Len(t, result.Edges, 1)
	assert.Equal(t, "KNOWS", result.Edges[0].Label)
	assert.NotNil(t, result.DurationMS)

	rec = do(t, srv, http.MethodPost, "/db/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Database closed", decode(t, rec)["message"])

	stats := engine.Stats()
	assert.Equal(t, stats.DBsOpened, stats.DBsClosed)
	assert.Equal(t, stats.CursorsOpened, stats.CursorsClosed)
}

func TestConnectExisting(t *testing.T) {
	srv, engine := setupTestServer(t)

	rec := do(t, srv, http.MethodPost, "/db/connect", PathRequest{Path: "/data/missing.mx"})
	assertError(t, rec, http.StatusNotFound, driver.MsgNullNativeError)

	engine.AddDatabase("/data/existing.mx")
	rec = do(t, srv, http.MethodPost, "/db/connect", PathRequest{Path: "/data/existing.mx"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Connected to existing database at /data/existing.mx", decode(t, rec)["message"])
}

func TestErrorMapping(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "RETURN 1"})
	assertError(t, rec, http.StatusConflict, "No database is currently open.")

	rec = do(t, srv, http.MethodPost, "/db/open", PathRequest{Path: "bad\x00path"})
	assertError(t, rec, http.StatusBadRequest, "Invalid path string")

	rec = do(t, srv, http.MethodPost, "/db/open", PathRequest{Path: "/data/a.mx"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "MATC"})
	assertError(t, rec, http.StatusUnprocessableEntity, "Parser exception")

	rec = do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "CRASH"})
	assertError(t, rec, http.StatusBadGateway, "engine crashed")

	rec = do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "RETURN\x001"})
	assertError(t, rec, http.StatusBadRequest, "Invalid query string (contains null byte)")

	assert.Equal(t, int64(5), srv.Stats().ErrorCount)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&driver.Error{Kind: driver.ErrInvalidInput}, http.StatusBadRequest},
		{driver.NoConnection(), http.StatusConflict},
		{&driver.Error{Kind: driver.ErrOpenFailure}, http.StatusNotFound},
		{&driver.Error{Kind: driver.ErrExecutionFailure}, http.StatusUnprocessableEntity},
		{&driver.Error{Kind: driver.ErrSystemFailure}, http.StatusBadGateway},
		{driver.LockFailure(), http.StatusServiceUnavailable},
		{commands.ErrHistoryDisabled, http.StatusNotImplemented},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), "%v", tt.err)
	}
}

func TestBadRequests(t *testing.T) {
	srv, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/db/open", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "invalid request body")

	rec = do(t, srv, http.MethodPost, "/db/open", PathRequest{})
	assertError(t, rec, http.StatusBadRequest, "path is required")

	rec = do(t, srv, http.MethodDelete, "/recent", nil)
	assertError(t, rec, http.StatusBadRequest, "path is required")

	rec = do(t, srv, http.MethodGet, "/db/open", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestSizeLimit(t *testing.T) {
	srv, _ := setupTestServer(t)
	srv.config.MaxRequestSize = 16

	rec := do(t, srv, http.MethodPost, "/db/open", PathRequest{Path: "/data/a-very-long-database-path.mx"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _ := setupTestServer(t)

	do(t, srv, http.MethodPost, "/db/open", PathRequest{Path: "/data/a.mx"})
	do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "RETURN 1"})
	do(t, srv, http.MethodPost, "/db/query", QueryRequest{Query: "MATC"})

	rec := do(t, srv, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, history.StatusError, entries[0].Status)
	assert.Equal(t, history.StatusSuccess, entries[1].Status)
	assert.Equal(t, 1, entries[1].RowCount)

	rec = do(t, srv, http.MethodGet, "/history?limit=1", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	rec = do(t, srv, http.MethodDelete, "/history", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, "/history", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/recent", nil)
	var recent []history.Connection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, "/data/a.mx", recent[0].Path)

	rec = do(t, srv, http.MethodDelete, "/recent?path=/data/a.mx", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, srv, http.MethodGet, "/recent", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistoryDisabled(t *testing.T) {
	svc := commands.New(nativetest.NewEngine())
	srv, err := New(svc, nil, nil)
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/history", nil)
	assertError(t, rec, http.StatusNotImplemented, commands.ErrHistoryDisabled.Error())
}

func TestHealthAndStatus(t *testing.T) {
	srv, _ := setupTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = do(t, srv, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "closed", body["database"].(map[string]any)["state"])
	assert.GreaterOrEqual(t, srv.Stats().RequestCount, int64(2))
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t)
	srv.config.CORSOrigins = []string{"http://app.test"}

	req := httptest.NewRequest(http.MethodOptions, "/db/query", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := setupTestServer(t)
	handler := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assertError(t, rec, http.StatusInternalServerError, "internal server error")
}

func TestStartStop(t *testing.T) {
	srv, _ := setupTestServer(t)
	srv.config.Port = 0

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx))
	assert.ErrorIs(t, srv.Start(), ErrServerClosed)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.Default().Server)
	assert.Equal(t, "127.0.0.1", cfg.Address)
	assert.Equal(t, 7480, cfg.Port)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxRequestSize)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
}
