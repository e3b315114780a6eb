package supervisor

import (
	"time"

	"github.com/loykin/tether/internal/metrics"
)

// State is the coarse lifecycle position of the backend.
type State string

const (
	StateIdle     State = "idle"     // never launched
	StateStarting State = "starting" // launched, waiting for the port handshake
	StateRunning  State = "running"  // handshake resolved, process alive
	StateExited   State = "exited"   // process ended on its own
	StateStopped  State = "stopped"  // killed by Shutdown
)

// Handshake outcomes as reported in Status and history.
const (
	HandshakePending    = "pending"
	HandshakeComplete   = metrics.HandshakeComplete
	HandshakeIncomplete = metrics.HandshakeIncomplete
	HandshakeTimeout    = metrics.HandshakeTimeout
)

// Status is a point-in-time view of the supervised backend.
type Status struct {
	RunID      string          `json:"run_id,omitempty"`
	State      State           `json:"state"`
	PID        int             `json:"pid,omitempty"`
	Executable string          `json:"executable,omitempty"`
	Port       *uint16         `json:"port"`
	Handshake  string          `json:"handshake,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	StoppedAt  *time.Time      `json:"stopped_at,omitempty"`
	ExitErr    string          `json:"exit_err,omitempty"`
	Resources  *metrics.Sample `json:"resources,omitempty"`
}

// Ready reports whether a port is known.
func (s Status) Ready() bool { return s.Port != nil }
