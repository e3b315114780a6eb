package logger

import (
	"fmt"
	"io"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults, lumberjack units.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where the backend's raw stdout/stderr lines are mirrored.
// With only Dir set, files are Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type Config struct {
	Dir        string `json:"dir"`
	StdoutPath string `json:"stdout_path"`
	StderrPath string `json:"stderr_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Enabled reports whether any mirror file is configured.
func (c Config) Enabled() bool {
	return c.Dir != "" || c.StdoutPath != "" || c.StderrPath != ""
}

// Writers returns rotating writers for the backend's two streams. Either may
// be nil when neither an explicit path nor Dir applies to it.
func (c Config) Writers(name string) (stdout io.WriteCloser, stderr io.WriteCloser) {
	outPath, errPath := c.StdoutPath, c.StderrPath
	if outPath == "" && c.Dir != "" {
		outPath = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if errPath == "" && c.Dir != "" {
		errPath = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	if outPath != "" {
		stdout = c.rotating(outPath)
	}
	if errPath != "" {
		stderr = c.rotating(errPath)
	}
	return stdout, stderr
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
