// Package codec implements the framed reader and writer for the on-disk
// mlocate database format described in spec §4.2/§6: a fixed header, an
// opaque configuration block, and an EOF-terminated sequence of directory
// records, each followed by an entry sequence that ends with an EntryEnd
// type byte.
package codec

import (
	"errors"
)

// Magic is the 8-byte magic value that opens every database file. It
// contains a NUL byte so that a misidentified text file is never mistaken
// for a database.
var Magic = [8]byte{0, 'm', 'l', 'o', 'c', 'a', 't', 'e'}

// Version is the only file-format version this package understands.
const Version = 0x00

// EntryType identifies the kind of a directory entry record, or marks the
// end of a directory's entry sequence.
type EntryType uint8

const (
	// EntryNormal marks a non-directory entry (file, symlink, device, ...).
	EntryNormal EntryType = 0
	// EntryDirectory marks an entry that is itself a directory.
	EntryDirectory EntryType = 1
	// EntryEnd is the sentinel that terminates a directory's entry sequence.
	EntryEnd EntryType = 2
)

// Sentinel errors describing the ways a stream can fail to be a valid
// database, per spec §7's error-kind table.
var (
	ErrBadMagic          = errors.New("codec: bad magic")
	ErrUnknownVersion    = errors.New("codec: unknown database version")
	ErrBadVisibilityFlag = errors.New("codec: visibility flag is neither 0 nor 1")
	ErrConfigTooLarge    = errors.New("codec: configuration block exceeds 2^32-1 bytes")
	ErrNameContainsNUL   = errors.New("codec: name contains a NUL byte")
)

// Header is the fixed portion of the database file, plus the variable-length
// scan root and opaque configuration block that immediately follow it on
// disk.
type Header struct {
	// Version is the on-disk format version. Only Version (0x00) is valid
	// for both reading and writing.
	Version uint8
	// CheckVisibility records whether the locator must enforce
	// ancestor-directory visibility before reporting a path (spec §4.3).
	CheckVisibility bool
	// ScanRoot is the canonical absolute path the database was built from.
	ScanRoot string
	// Config is the opaque configuration block, compared verbatim by the
	// updater to decide whether an old database can be reused at all (spec
	// §4.3 "Rationale for the embedded block").
	Config []byte
}
