//go:build !windows

package backend

import (
	"os"
	"syscall"
)

func fileOwnedBy(fi os.FileInfo, uid int) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	return ok && int(st.Uid) == uid
}
