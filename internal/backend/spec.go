package backend

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/loykin/tether/internal/logger"
)

// DefaultHandshakePrefix is the stdout line prefix announcing the listening port.
const DefaultHandshakePrefix = "SERVER_PORT:"

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultKillWait         = 5 * time.Second
	DefaultPingPath         = "/api/ping"
)

// Spec describes the bundled backend to launch.
type Spec struct {
	Name             string        `json:"name"`              // label used for logs and mirror files (default "server")
	InstallDir       string        `json:"install_dir"`       // directory holding the executable; also the working dir
	Executable       string        `json:"executable"`        // path relative to InstallDir; default server / server.exe
	Args             []string      `json:"args"`              // extra arguments
	Env              []string      `json:"env"`               // merged environment (K=V); empty inherits the host env
	HandshakePrefix  string        `json:"handshake_prefix"`  // default SERVER_PORT:
	HandshakeTimeout time.Duration `json:"handshake_timeout"` // 0 waits forever
	KillWait         time.Duration `json:"kill_wait"`         // upper bound for reaping after kill
	PIDFile          string        `json:"pid_file"`          // optional; enables orphan cleanup
	PingPath         string        `json:"ping_path"`         // readiness probe path
	SampleInterval   time.Duration `json:"sample_interval"`   // resource sampling; 0 disables
	Log              logger.Config `json:"log"`               // backend output mirror files
}

// ExecutableName returns the platform specific backend file name.
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return "server.exe"
	}
	return "server"
}

// WorkDir is the absolute install dir; the backend runs with it as cwd.
func (s Spec) WorkDir() (string, error) { return filepath.Abs(s.InstallDir) }

// ExecutablePath joins the install dir with the executable name, which may
// itself be a relative path such as "bin/server".
func (s Spec) ExecutablePath() (string, error) {
	dir, err := s.WorkDir()
	if err != nil {
		return "", err
	}
	name := s.Executable
	if name == "" {
		name = ExecutableName()
	}
	return filepath.Join(dir, name), nil
}

// WithDefaults fills zero values. HandshakeTimeout is left alone since 0 is meaningful.
func (s Spec) WithDefaults() Spec {
	if s.Name == "" {
		s.Name = "server"
	}
	if s.HandshakePrefix == "" {
		s.HandshakePrefix = DefaultHandshakePrefix
	}
	if s.KillWait <= 0 {
		s.KillWait = DefaultKillWait
	}
	if s.PingPath == "" {
		s.PingPath = DefaultPingPath
	}
	return s
}

// buildCommand constructs the command without starting it.
func (s Spec) buildCommand(dir, path string) *exec.Cmd {
	// #nosec G204 -- path is the bundled backend resolved from the install dir
	cmd := exec.Command(path, s.Args...)
	cmd.Dir = dir
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	configureSysProcAttr(cmd)
	return cmd
}
