//go:build windows

package backend

func ensureExecutable(string) error { return nil }
