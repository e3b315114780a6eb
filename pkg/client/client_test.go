package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tether/internal/server"
	"github.com/loykin/tether/internal/supervisor"
)

type stubBackend struct {
	port    uint16
	ready   bool
	pingErr error
}

func (s *stubBackend) Port() (uint16, bool) { return s.port, s.ready }
func (s *stubBackend) Status() supervisor.Status {
	st := supervisor.Status{State: supervisor.StateIdle}
	if s.ready {
		p := s.port
		st.State, st.Port, st.PID = supervisor.StateRunning, &p, 77
	}
	return st
}
func (s *stubBackend) Ping(context.Context) error { return s.pingErr }

func newTestClient(t *testing.T, b server.Backend) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := httptest.NewServer(server.NewRouter(b, "/api").Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api/", Timeout: 2 * time.Second})
}

func TestClientPortAndStatus(t *testing.T) {
	b := &stubBackend{}
	c := newTestClient(t, b)
	ctx := context.Background()

	_, ok, err := c.Port(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	b.port, b.ready = 4321, true
	p, ok, err := c.Port(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint16(4321), p)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateRunning, st.State)
	assert.Equal(t, 77, st.PID)
	require.NotNil(t, st.Port)
	assert.Equal(t, uint16(4321), *st.Port)
	assert.True(t, c.IsReachable(ctx))
}

func TestClientPing(t *testing.T) {
	b := &stubBackend{}
	c := newTestClient(t, b)
	require.NoError(t, c.Ping(context.Background()))

	b.pingErr = supervisor.ErrNotReady
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), supervisor.ErrNotReady.Error())
}

func TestClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()
	c := New(Config{BaseURL: ts.URL})
	_, _, err := c.Port(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")

	ts.Close()
	assert.False(t, c.IsReachable(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultConfig().BaseURL, DefaultBaseURL)
}
