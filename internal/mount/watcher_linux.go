//go:build linux

package mount

import (
	"golang.org/x/sys/unix"
)

// watcher polls the mount-table file descriptor for the "urgent/priority"
// readiness edge the Linux kernel raises on /proc/self/mountinfo whenever
// the mount table changes (spec §4.4 "Change detection"). It never blocks:
// poll is called with a zero timeout immediately before each query.
type watcher struct {
	fd int
}

func newWatcher(path string) *watcher {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil
	}
	return &watcher{fd: fd}
}

// poll reports whether the mount table has changed since the last call,
// consuming the edge if so.
func (w *watcher) poll() bool {
	if w == nil {
		return false
	}
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLPRI | unix.POLLERR}}
	n, err := unix.Poll(fds, 0)
	if err != nil || n == 0 {
		return false
	}
	return fds[0].Revents&(unix.POLLPRI|unix.POLLERR) != 0
}
