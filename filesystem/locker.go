package filesystem

import (
	"os"

	"github.com/pkg/errors"
)

// Locker is the advisory write lock the updater takes on the old database
// file to serialize concurrent builders (spec §5 "Process-level mutual
// exclusion").
type Locker struct {
	// The database file object to be locked.
	file *os.File
}

// NewLocker opens (creating if necessary) the file at path for locking.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	if file, err := os.OpenFile(path, mode, permissions); err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	} else {
		return &Locker{file: file}, nil
	}
}
