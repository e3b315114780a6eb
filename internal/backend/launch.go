package backend

import (
	"fmt"
	"os"
)

// Launch starts the backend described by spec. It fails with ErrNotFound,
// ErrPermission or ErrSpawn; none of them are retried.
//
// Output goes through os.Pipe rather than cmd.StdoutPipe so that cmd.Wait,
// run by the reaper, never closes a pipe the readers are still using.
func Launch(spec Spec) (*Process, error) {
	dir, err := spec.WorkDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	path, err := spec.ExecutablePath()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrNotFound, path, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w at %s: is a directory", ErrNotFound, path)
	}
	if err := ensureExecutable(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPermission, path, err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(outR, outW)
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}

	cmd := spec.buildCommand(dir, path)
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		closeAll(outR, outW, errR, errW)
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, path, err)
	}
	// The child holds its own copies of the write ends.
	closeAll(outW, errW)
	return newProcess(cmd, path, outR, errR), nil
}

func closeAll(fs ...*os.File) {
	for _, f := range fs {
		_ = f.Close()
	}
}
