package backend

import "errors"

// Startup errors. Only these abort a launch.
var (
	ErrNotFound   = errors.New("backend executable not found")
	ErrPermission = errors.New("backend executable could not be made runnable")
	ErrSpawn      = errors.New("backend process could not be spawned")
)

// Errors absorbed by the supervisor and only logged.
var (
	ErrHandshakeIncomplete = errors.New("backend output closed before port handshake")
	ErrHandshakeTimeout    = errors.New("backend port handshake timed out")
	ErrDrain               = errors.New("backend output drain failed")
	ErrShutdown            = errors.New("backend shutdown failed")
)

// IsStartupErr reports whether err is fatal to application startup.
func IsStartupErr(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermission) || errors.Is(err, ErrSpawn)
}
