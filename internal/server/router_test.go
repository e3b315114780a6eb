package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/supervisor"
)

type fakeBackend struct {
	port    uint16
	ready   bool
	status  supervisor.Status
	pingErr error
	sawCtx  bool
}

func (f *fakeBackend) Port() (uint16, bool) { return f.port, f.ready }
func (f *fakeBackend) Status() supervisor.Status { return f.status }
func (f *fakeBackend) Ping(ctx context.Context) error {
	_, f.sawCtx = ctx.Deadline()
	return f.pingErr
}

func setupRouter(t *testing.T, b Backend, base string, opts ...RouterOption) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(b, base, opts...).Handler()
}

func doReq(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPortReady(t *testing.T) {
	h := setupRouter(t, &fakeBackend{port: 4321, ready: true}, "/api")
	rec := doReq(t, h, "/api/port")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"port":4321,"ready":true}`, rec.Body.String())
}

func TestPortAbsent(t *testing.T) {
	h := setupRouter(t, &fakeBackend{}, "")
	rec := doReq(t, h, "/port")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"port":null,"ready":false}`, rec.Body.String())
}

func TestPortZeroIsReady(t *testing.T) {
	h := setupRouter(t, &fakeBackend{port: 0, ready: true}, "/api/")
	rec := doReq(t, h, "/api/port")
	assert.JSONEq(t, `{"port":0,"ready":true}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	p := uint16(8080)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	st := supervisor.Status{RunID: "r1", State: supervisor.StateRunning, PID: 42, Port: &p, Handshake: supervisor.HandshakeComplete, StartedAt: &started}
	h := setupRouter(t, &fakeBackend{status: st}, "/api")
	rec := doReq(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got supervisor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, supervisor.StateRunning, got.State)
	assert.Equal(t, 42, got.PID)
	require.NotNil(t, got.Port)
	assert.Equal(t, p, *got.Port)
	assert.True(t, got.StartedAt.Equal(started))
}

func TestPing(t *testing.T) {
	fb := &fakeBackend{}
	h := setupRouter(t, fb, "/api")
	rec := doReq(t, h, "/api/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.True(t, fb.sawCtx)

	fb.pingErr = supervisor.ErrNotReady
	rec = doReq(t, h, "/api/ping?timeout=1s")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), supervisor.ErrNotReady.Error())

	fb.pingErr = context.DeadlineExceeded
	rec = doReq(t, h, "/api/ping")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	fb.pingErr = errors.New("ping backend: status 500")
	rec = doReq(t, h, "/api/ping")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzAndUnknownRoute(t *testing.T) {
	h := setupRouter(t, &fakeBackend{}, "/api")
	assert.Equal(t, http.StatusOK, doReq(t, h, "/api/healthz").Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, "/port").Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, h, "/metrics").Code)
}

func TestMetricsMounted(t *testing.T) {
	require.NoError(t, metrics.Register(prometheus.DefaultRegisterer))
	metrics.SetPort(1234, true)
	h := setupRouter(t, &fakeBackend{}, "/api", WithMetrics())
	rec := doReq(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tether_backend_port 1234")
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", "/api", &fakeBackend{port: 9, ready: true})
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()

	resp, err := http.Get("http://" + srv.Addr + "/api/port")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"port":9`))

	_, err = NewServer(srv.Addr, "", &fakeBackend{})
	assert.Error(t, err, "second bind on the same address should fail")
}
