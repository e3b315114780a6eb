package backend

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Resolver locates the install directory holding the backend executable.
type Resolver interface {
	InstallDir() (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func() (string, error)

func (f ResolverFunc) InstallDir() (string, error) { return f() }

// FixedDir resolves to an explicit path.
func FixedDir(path string) Resolver {
	return ResolverFunc(func() (string, error) {
		if strings.TrimSpace(path) == "" {
			return "", errors.New("empty install dir")
		}
		return filepath.Abs(path)
	})
}

// ExecutableDir resolves to sub inside the directory of the running binary,
// which is where app bundles keep their resources.
func ExecutableDir(sub string) Resolver {
	return ResolverFunc(func() (string, error) {
		exe, err := os.Executable()
		if err != nil {
			return "", err
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Join(filepath.Dir(exe), sub), nil
	})
}

// ParseResolver turns a config value into a Resolver.
// "exe:<sub>" selects ExecutableDir; anything else is a fixed path.
func ParseResolver(v string) Resolver {
	if sub, ok := strings.CutPrefix(v, "exe:"); ok {
		return ExecutableDir(sub)
	}
	return FixedDir(v)
}
