//go:build windows

package backend

import (
	"errors"
	"syscall"
)

var errNoStartTime = errors.New("process start time unavailable")

// procStartUnix reads the creation time via GetProcessTimes.
func procStartUnix(pid int) (int64, error) {
	if pid <= 0 {
		return 0, errNoStartTime
	}
	h, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return 0, err
	}
	defer func() { _ = syscall.CloseHandle(h) }()

	var creation, exit, kernel, user syscall.Filetime
	if err := syscall.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return 0, err
	}
	return creation.Nanoseconds() / 1e9, nil
}
