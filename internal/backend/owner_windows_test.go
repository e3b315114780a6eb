//go:build windows

package backend

import "os"

func fileOwnedBy(os.FileInfo, int) bool { return false }
