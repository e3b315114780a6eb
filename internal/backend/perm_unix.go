//go:build !windows

package backend

import "os"

// ensureExecutable sets rwxr-xr-x on the backend binary.
func ensureExecutable(path string) error {
	return os.Chmod(path, 0o755)
}
