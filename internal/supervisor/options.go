package supervisor

import (
	"log/slog"
	"net/http"

	"github.com/loykin/tether/internal/backend"
	"github.com/loykin/tether/internal/history"
)

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger; a component=backend attribute is added.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder enables lifecycle history.
func WithRecorder(r *history.Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

// WithResolver decides the install dir at Start, overriding Spec.InstallDir.
func WithResolver(r backend.Resolver) Option {
	return func(s *Supervisor) { s.resolver = r }
}

// WithHTTPClient sets the client used by Ping.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Supervisor) {
		if c != nil {
			s.httpClient = c
		}
	}
}
