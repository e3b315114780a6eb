package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/tether/internal/backend"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "tether.toml")
	require.NoError(t, os.WriteFile(file, []byte(data), 0o644))
	return file
}

func TestLoad_Minimal(t *testing.T) {
	file := writeTOML(t, `
[backend]
install_dir = "/opt/app/resources"
`)
	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "/opt/app/resources", cfg.Backend.InstallDir)
	assert.Equal(t, backend.DefaultHandshakeTimeout, cfg.Backend.HandshakeTimeout)
	assert.Equal(t, backend.DefaultKillWait, cfg.Backend.KillWait)
	assert.Equal(t, backend.DefaultPingPath, cfg.Backend.PingPath)
	assert.Equal(t, time.Duration(0), cfg.Backend.SampleInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Listen)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.False(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.History.Enabled)
}

func TestLoad_Full(t *testing.T) {
	file := writeTOML(t, `
[backend]
install_dir = "exe:resources"
executable = "api"
args = ["--quiet"]
env = ["NODE_ENV=production"]
handshake_timeout = "0s"
kill_wait = "2s"
pidfile = "/tmp/tether.pid"
ping_path = "/health"
sample_interval = "500ms"

[log]
level = "debug"
format = "json"
color = false
dir = "/var/log/tether"
max_backups = 9

[server]
listen = ":9000"
base_path = ""

[metrics]
enabled = true
listen = ":9100"

[history]
enabled = true
dsn = "sqlite:///tmp/h.db"
`)
	cfg, err := Load(file)
	require.NoError(t, err)

	b := cfg.Backend
	assert.Equal(t, "api", b.Executable)
	assert.Equal(t, []string{"--quiet"}, b.Args)
	assert.Equal(t, []string{"NODE_ENV=production"}, b.Env)
	assert.Equal(t, time.Duration(0), b.HandshakeTimeout)
	assert.Equal(t, 2*time.Second, b.KillWait)
	assert.Equal(t, "/tmp/tether.pid", b.PIDFile)
	assert.Equal(t, "/health", b.PingPath)
	assert.Equal(t, 500*time.Millisecond, b.SampleInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 9, cfg.Log.MaxBackups)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "", cfg.Server.BasePath)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Equal(t, "sqlite:///tmp/h.db", cfg.History.DSN)

	dir, err := cfg.Resolver().InstallDir()
	require.NoError(t, err)
	assert.Equal(t, "resources", filepath.Base(dir))
}

func TestLoad_EnvAndFlagOverrides(t *testing.T) {
	file := writeTOML(t, `
[backend]
install_dir = "/from/file"
kill_wait = "1s"
`)
	t.Setenv("TETHER_BACKEND_KILL_WAIT", "3s")
	t.Setenv("TETHER_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("install-dir", "", "")
	require.NoError(t, fs.Parse([]string{"--install-dir", "/from/flag"}))

	cfg, err := Load(file, FlagBinding{Key: "backend.install_dir", Flag: fs.Lookup("install-dir")})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.Backend.InstallDir)
	assert.Equal(t, 3*time.Second, cfg.Backend.KillWait)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_UnchangedFlagKeepsFileValue(t *testing.T) {
	file := writeTOML(t, `
[backend]
install_dir = "/from/file"
`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("install-dir", "", "")
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(file, FlagBinding{Key: "backend.install_dir", Flag: fs.Lookup("install-dir")}, FlagBinding{Key: "x"})
	require.NoError(t, err)
	assert.Equal(t, "/from/file", cfg.Backend.InstallDir)
}

func TestLoad_NoFileUsesEnv(t *testing.T) {
	t.Setenv("TETHER_BACKEND_INSTALL_DIR", "/env/dir")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/dir", cfg.Backend.InstallDir)
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"install_dir": `
[backend]
install_dir = ""
`,
		"negative": `
[backend]
install_dir = "/x"
kill_wait = "-1s"
`,
		"level": `
[backend]
install_dir = "/x"
[log]
level = "loud"
`,
		"format": `
[backend]
install_dir = "/x"
[log]
format = "xml"
`,
		"history": `
[backend]
install_dir = "/x"
[history]
enabled = true
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeTOML(t, data))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestBackendSpec(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "backend.env")
	require.NoError(t, os.WriteFile(envFile, []byte("FROM_FILE=1\nSHARED=file\n"), 0o600))

	file := writeTOML(t, `
[backend]
install_dir = "`+filepath.ToSlash(dir)+`"
env = ["SHARED=list", "REF=${FROM_FILE}-x"]
env_files = ["`+filepath.ToSlash(envFile)+`"]
kill_wait = "0s"

[log]
dir = "`+filepath.ToSlash(dir)+`/logs"
`)
	cfg, err := Load(file)
	require.NoError(t, err)
	spec, err := cfg.BackendSpec()
	require.NoError(t, err)

	assert.Equal(t, dir, spec.InstallDir)
	assert.Equal(t, "server", spec.Name)
	assert.Equal(t, backend.DefaultKillWait, spec.KillWait)
	assert.Equal(t, backend.DefaultHandshakeTimeout, spec.HandshakeTimeout)
	assert.True(t, spec.Log.Enabled())

	joined := "\n" + strings.Join(spec.Env, "\n") + "\n"
	assert.Contains(t, joined, "\nFROM_FILE=1\n")
	assert.Contains(t, joined, "\nSHARED=list\n")
	assert.Contains(t, joined, "\nREF=1-x\n")

	cfg.Backend.EnvFiles = []string{filepath.Join(dir, "nope.env")}
	_, err = cfg.BackendSpec()
	require.Error(t, err)
}

func TestLoggerSettings(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "debug", Format: "json", File: "/tmp/tether.log", MaxSizeMB: 5}}
	s := cfg.LoggerSettings()
	assert.Equal(t, "debug", s.Level)
	assert.Equal(t, "/tmp/tether.log", s.File)
	assert.Equal(t, 5, s.MaxSizeMB)

	cfg.Log.File = ""
	assert.Equal(t, 0, cfg.LoggerSettings().MaxSizeMB)
}
