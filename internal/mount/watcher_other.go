//go:build !linux

package mount

// watcher is a no-op stub on non-Linux platforms: there is no portable
// equivalent of POLLPRI-on-mountinfo, so the oracle simply never notices a
// changed mount table mid-process (it will still reload on the next process
// invocation, which is how updatedb/locate are normally run anyway).
type watcher struct{}

func newWatcher(string) *watcher { return nil }

func (w *watcher) poll() bool { return false }
