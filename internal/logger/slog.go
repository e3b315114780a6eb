package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Settings configures the host's own structured logger.
type Settings struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Color  bool   // colored level prefix for text output
	File   string // optional rotated log file instead of stderr
	Config        // rotation parameters reused for File
}

// ParseLevel accepts the slog level names, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// New builds a logger from s. The returned closer releases the log file, if any.
func New(s Settings) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(s.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if s.File != "" {
		f := s.rotating(s.File)
		w, closer = f, f
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(s.Format) {
	case "", "text":
		if s.Color && s.File == "" {
			h = NewColorTextHandler(w, opts)
		} else {
			h = slog.NewTextHandler(w, opts)
		}
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", s.Format)
	}
	return slog.New(h), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
