package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// EventType defines the kind of backend lifecycle event.
type EventType string

const (
	EventLaunch    EventType = "launch"
	EventHandshake EventType = "handshake"
	EventExit      EventType = "exit"
	EventShutdown  EventType = "shutdown"
)

// Record describes one backend run at the time of the event.
type Record struct {
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	Executable string     `json:"executable"`
	PID        int        `json:"pid"`
	Port       *int       `json:"port"`              // nil until the handshake completes
	Handshake  string     `json:"handshake"`         // complete, incomplete, timeout or empty
	StartedAt  time.Time  `json:"started_at"`
	StoppedAt  *time.Time `json:"stopped_at"`
	ExitErr    string     `json:"exit_err,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// DefaultSendTimeout bounds a single Send issued by a Recorder.
const DefaultSendTimeout = 2 * time.Second

// Recorder sends events to an optional sink. Failures are logged, never returned.
type Recorder struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
}

// NewRecorder accepts a nil sink, in which case Record does nothing.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, timeout: DefaultSendTimeout, logger: logger}
}

func (r *Recorder) Record(t EventType, rec Record) {
	if r == nil || r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	e := Event{Type: t, OccurredAt: time.Now().UTC(), Record: rec}
	if err := r.sink.Send(ctx, e); err != nil {
		r.logger.Warn("Failed to record backend history", "event", t, "run_id", rec.RunID, "error", err)
	}
}

// Close closes the sink when it supports it.
func (r *Recorder) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	if c, ok := r.sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NullPort, NullTime and NullString convert optional record fields for SQL sinks.
func NullPort(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
