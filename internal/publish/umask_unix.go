//go:build !windows && !plan9

package publish

import (
	"os"
	"syscall"
)

// applyUmask reads the process umask without permanently changing it:
// syscall.Umask both sets and returns the previous value, so we immediately
// restore it.
func applyUmask() os.FileMode {
	old := syscall.Umask(0)
	syscall.Umask(old)
	return os.FileMode(old)
}
