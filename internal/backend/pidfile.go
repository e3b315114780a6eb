package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// WritePIDFile records pid and its start time as "<pid>\n{json}".
func WritePIDFile(path string, pid int, startUnix int64) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	meta, _ := json.Marshal(pidMeta{StartUnix: startUnix})
	data := strconv.Itoa(pid) + "\n" + string(meta) + "\n"
	return os.WriteFile(path, []byte(data), 0o600)
}

// ReadPIDFile parses a file written by WritePIDFile. Legacy files holding
// only the pid return a zero start time.
func ReadPIDFile(path string) (int, int64, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, 0, err
	}
	pidLine, rest, _ := strings.Cut(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	var m pidMeta
	if rest = strings.TrimSpace(rest); rest != "" {
		_ = json.Unmarshal([]byte(rest), &m)
	}
	return pid, m.StartUnix, nil
}

// RemovePIDFile is best effort.
func RemovePIDFile(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// ReapOrphan kills a backend left behind by a host that died without
// shutting it down. The recorded process is only killed when its start time
// still matches, so a reused pid is left alone. The file is removed either way.
func ReapOrphan(path string) (pid int, killed bool, err error) {
	if path == "" {
		return 0, false, nil
	}
	pid, start, err := ReadPIDFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		RemovePIDFile(path)
		return 0, false, err
	}
	defer RemovePIDFile(path)

	if start == 0 || !pidAlive(pid) || isZombie(pid) {
		return pid, false, nil
	}
	if cur, err := procStartUnix(pid); err != nil || cur != start {
		return pid, false, nil
	}
	if err := killPID(pid); err != nil {
		return pid, false, err
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && pidAlive(pid) && !isZombie(pid) {
		time.Sleep(20 * time.Millisecond)
	}
	return pid, true, nil
}

// StartTime returns the OS-reported start time of pid in Unix seconds.
func StartTime(pid int) (int64, error) { return procStartUnix(pid) }
