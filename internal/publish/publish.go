// Package publish implements the atomic publisher (spec §4.9): the new
// database is written to a uniquely-named temp file next to the target,
// then renamed into place only after a clean write, with signal-driven
// cleanup of the temp file in between.
package publish

import (
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mlocate-go/mlocate/filesystem"
)

// cleanupSignals are the signals that should unlink an in-progress temp file
// before producing the default exit behavior (spec §4.9: "SIGINT, SIGTERM,
// SIGABRT"). SIGABRT is included because the concern here isn't graceful
// service shutdown but never leaving a half-written temp file next to the
// target database.
var cleanupSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT}

// registry tracks temp file paths currently eligible for signal-driven
// cleanup, guarded by a mutex rather than the original C implementation's
// signal mask, since Go signal delivery already happens on a regular
// goroutine rather than interrupting arbitrary code.
type registry struct {
	mu    sync.Mutex
	paths map[string]struct{}
	once  sync.Once
	ch    chan os.Signal
}

var cleanupRegistry = &registry{paths: make(map[string]struct{})}

func (r *registry) register(path string) {
	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()

	r.once.Do(func() {
		r.ch = make(chan os.Signal, 1)
		signal.Notify(r.ch, cleanupSignals...)
		go r.handle()
	})
}

func (r *registry) unregister(path string) {
	r.mu.Lock()
	delete(r.paths, path)
	r.mu.Unlock()
}

func (r *registry) handle() {
	sig := <-r.ch
	r.mu.Lock()
	for path := range r.paths {
		os.Remove(path)
	}
	r.mu.Unlock()

	signal.Stop(r.ch)
	signal.Reset(sig)
	process, err := os.FindProcess(os.Getpid())
	if err == nil {
		process.Signal(sig)
	}
}

// Publisher drives one publish cycle: temp file creation, the caller's
// write into it, and a final atomic rename.
type Publisher struct {
	target  string
	tmpPath string
	tmpFile *os.File

	oldLock *filesystem.Locker
}

// New creates a uniquely-named temp file alongside target (spec §4.9
// "Creates the new database in a uniquely-named temp file next to the
// target") and registers it for signal-driven cleanup.
func New(target string) (*Publisher, error) {
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	tmpPath := filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create temporary database file")
	}

	cleanupRegistry.register(tmpPath)
	return &Publisher{target: target, tmpPath: tmpPath, tmpFile: f}, nil
}

// File returns the temp file for the caller (typically a codec.Writer) to
// write the new database into.
func (p *Publisher) File() *os.File {
	return p.tmpFile
}

// LockOldDatabase takes an advisory write lock on the previous database file
// (spec §5 "Process-level mutual exclusion"), holding it open until Finalize
// or Abort so the lock covers the entire publish, including the rename
// (spec §5 "Resource scoping": "The old database fd is held until after the
// rename so the advisory lock covers publication"). It reports
// ErrAlreadyLocked if another updater already holds the lock.
func (p *Publisher) LockOldDatabase(path string) error {
	lock, err := filesystem.NewLocker(path, 0o644)
	if err != nil {
		return errors.Wrap(err, "unable to open old database for locking")
	}
	if err := lock.Lock(false); err != nil {
		return ErrAlreadyLocked
	}
	p.oldLock = lock
	return nil
}

// ErrAlreadyLocked is returned by LockOldDatabase when another updater holds
// the lock, matching spec §5's "locked (probably by earlier updater)".
var ErrAlreadyLocked = errors.New("publish: database locked (probably by earlier updater)")

// Finalize sets the temp file's mode and ownership per spec §4.9, renames it
// over target, and clears the cleanup registration. If checkVisibility is
// true, the file is chowned to group and given mode 0640; otherwise it's
// left at the process umask applied to 0666. gid is ignored when
// checkVisibility is false.
func (p *Publisher) Finalize(checkVisibility bool, gid int) error {
	if err := p.tmpFile.Sync(); err != nil {
		return errors.Wrap(err, "unable to sync temporary database file")
	}

	if checkVisibility {
		if err := p.tmpFile.Chown(-1, gid); err != nil {
			return errors.Wrap(err, "unable to set database group ownership")
		}
		if err := p.tmpFile.Chmod(0o640); err != nil {
			return errors.Wrap(err, "unable to set database mode")
		}
	} else {
		umask := applyUmask()
		if err := p.tmpFile.Chmod(0o666 &^ umask); err != nil {
			return errors.Wrap(err, "unable to set database mode")
		}
	}

	if err := p.tmpFile.Close(); err != nil {
		return errors.Wrap(err, "unable to close temporary database file")
	}

	if err := os.Rename(p.tmpPath, p.target); err != nil {
		return errors.Wrap(err, "unable to install new database")
	}
	cleanupRegistry.unregister(p.tmpPath)

	if p.oldLock != nil {
		p.oldLock.Unlock()
	}
	return nil
}

// Abort discards the temp file without installing it, used on any error
// path before Finalize.
func (p *Publisher) Abort() {
	p.tmpFile.Close()
	os.Remove(p.tmpPath)
	cleanupRegistry.unregister(p.tmpPath)
	if p.oldLock != nil {
		p.oldLock.Unlock()
	}
}
