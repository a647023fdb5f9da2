// Package dirmodel holds the in-memory shape of one directory (spec §4.5):
// its absolute path, a timestamp pair, and a sorted list of entries. It is
// the unit of both the on-disk stream and the merge.
package dirmodel

import "sort"

// Timestamp is the (seconds, nanoseconds) pair stored for a directory,
// computed as max(ctime, mtime) of the directory inode at scan time (spec
// §3 "DirectoryTimestamp"). StaleTimestamp is the sentinel meaning "treat as
// stale; force rescan next time".
type Timestamp struct {
	Sec  uint64
	Nsec uint32
}

// StaleTimestamp is the (0, 0) sentinel.
var StaleTimestamp = Timestamp{}

// IsStale reports whether t is the (0, 0) sentinel.
func (t Timestamp) IsStale() bool {
	return t == StaleTimestamp
}

// Equal reports whether two timestamps are identical.
func (t Timestamp) Equal(other Timestamp) bool {
	return t == other
}

// Clamp normalizes a timestamp read from a misbehaving filesystem driver:
// spec §3 requires that an out-of-range nanosecond component be clamped to
// zero rather than propagated.
func Clamp(sec uint64, nsec uint32) Timestamp {
	if nsec >= 1e9 {
		nsec = 0
	}
	return Timestamp{Sec: sec, Nsec: nsec}
}

// Entry is one directory entry: a non-empty name containing neither '/' nor
// NUL, and whether it is itself a directory. "." and ".." never appear.
type Entry struct {
	Name        string
	IsDirectory bool
}

// Directory is the in-memory representation of one scanned or reused
// directory. Entries must be strictly ascending by byte-wise Name; Builder
// enforces this by sorting before Finish.
type Directory struct {
	Path    string
	Time    Timestamp
	Entries []Entry
}

// Equivalent reports whether two directories are equivalent for merge-reuse
// purposes: equal path and equal timestamp (spec §3 "Directory").
func (d *Directory) Equivalent(other *Directory) bool {
	return d.Path == other.Path && d.Time.Equal(other.Time)
}

// EnsureSorted verifies the strictly-ascending-by-name invariant (spec §8),
// returning the index of the first violation, or -1 if none.
func (d *Directory) EnsureSorted() int {
	for i := 1; i < len(d.Entries); i++ {
		if d.Entries[i-1].Name >= d.Entries[i].Name {
			return i
		}
	}
	return -1
}

// Builder assembles one Directory at a time, reusing its scratch buffers
// between directories so that a full build allocates O(max directory size)
// rather than O(tree size) (spec §4.5, §9 "Obstack-style per-build arenas").
// Builder deliberately holds a single entry slice (names are plain Go
// strings), reset at directory boundaries, rather than replicating
// the mark/release stack of a C obstack: Go's garbage collector already
// gives us the ownership model the obstack exists to work around.
type Builder struct {
	path    string
	time    Timestamp
	entries []Entry
}

// Reset begins a new directory, discarding any entries accumulated so far
// but retaining the capacity of the entries slice.
func (b *Builder) Reset(path string, t Timestamp) {
	b.path = path
	b.time = t
	b.entries = b.entries[:0]
}

// Add appends one entry. Entries may be added in any order; Finish sorts
// them.
func (b *Builder) Add(name string, isDirectory bool) {
	b.entries = append(b.entries, Entry{Name: name, IsDirectory: isDirectory})
}

// Finish sorts the accumulated entries by name and returns the finished,
// read-only Directory. The returned Directory's Entries slice is a copy
// owned by the caller, so the next Reset can reuse the builder's own slice
// without touching the one just handed off.
func (b *Builder) Finish() *Directory {
	sort.Slice(b.entries, func(i, j int) bool {
		return b.entries[i].Name < b.entries[j].Name
	})
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	return &Directory{Path: b.path, Time: b.time, Entries: entries}
}
