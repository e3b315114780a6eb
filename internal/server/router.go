package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/supervisor"
)

// Backend is the part of the supervisor the query API reads.
type Backend interface {
	Port() (uint16, bool)
	Status() supervisor.Status
	Ping(ctx context.Context) error
}

// Router provides embeddable HTTP handlers for querying the backend.
// Endpoints:
//
//	GET {basePath}/port     {"port":n,"ready":true} or {"port":null,"ready":false}
//	GET {basePath}/status   supervisor.Status
//	GET {basePath}/ping     probes the backend; query: timeout=3s (optional)
//	GET {basePath}/healthz  liveness of the host itself
//	GET /metrics            when WithMetrics is set
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	b           Backend
	basePath    string
	withMetrics bool
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithMetrics mounts the Prometheus handler at /metrics.
func WithMetrics() RouterOption {
	return func(r *Router) { r.withMetrics = true }
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/port, /api/status, /api/ping.
func NewRouter(b Backend, basePath string, opts ...RouterOption) *Router {
	r := &Router{b: b, basePath: sanitizeBase(basePath)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/port", r.handlePort)
	group.GET("/status", r.handleStatus)
	group.GET("/ping", r.handlePing)
	group.GET("/healthz", r.handleHealthz)
	if r.withMetrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer listens on addr and serves the router in the background. Bind
// errors are returned; stop the server with its Shutdown or Close.
func NewServer(addr, basePath string, b Backend, opts ...RouterOption) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           NewRouter(b, basePath, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// PortResp is the body of GET {basePath}/port.
type PortResp struct {
	Port  *uint16 `json:"port"`
	Ready bool    `json:"ready"`
}

func (r *Router) handlePort(c *gin.Context) {
	var resp PortResp
	if p, ok := r.b.Port(); ok {
		resp = PortResp{Port: &p, Ready: true}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.b.Status())
}

func (r *Router) handlePing(c *gin.Context) {
	timeout := queryDuration(c, "timeout", 3*time.Second, 30*time.Second)
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	if err := r.b.Ping(ctx); err != nil {
		code := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
