package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestQueryDuration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]time.Duration{
		"":         3 * time.Second,
		"?t=500ms": 500 * time.Millisecond,
		"?t=bogus": 3 * time.Second,
		"?t=-1s":   3 * time.Second,
		"?t=1h":    3 * time.Second,
		"?t=10s":   10 * time.Second,
	}
	for q, want := range cases {
		var got time.Duration
		r := gin.New()
		r.GET("/x", func(c *gin.Context) { got = queryDuration(c, "t", 3*time.Second, 10*time.Second) })
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/x"+q, nil))
		if got != want {
			t.Fatalf("queryDuration(%q)=%s want %s", q, got, want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, 201, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type: %s", ct)
	}
}
