// Package mount implements the bind-mount oracle (spec §4.4): it parses the
// kernel mount table, classifies no-op bind mounts, and watches the table
// for changes so long-lived queries/builds can notice new mounts.
package mount

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlocate-go/mlocate/internal/pathorder"
)

// DefaultMountinfoPath is where the Linux kernel exposes the current
// process's mount table.
const DefaultMountinfoPath = "/proc/self/mountinfo"

// Entry is one parsed mountinfo record (spec §6 "Mount table format").
type Entry struct {
	ID         int
	ParentID   int
	DevMajor   int
	DevMinor   int
	Root       string
	MountPoint string
	FSType     string
	Source     string
}

// Oracle answers "is this path the mount point of a no-op bind mount?" by
// holding the parsed mount table and a path-order cursor over it.
//
// Oracle is not safe for concurrent use; the build and match engines are
// both single-threaded (spec §5), so each gets its own Oracle instance.
type Oracle struct {
	path    string
	byID    map[int]*Entry
	bind    []*Entry // entries classified as no-op bind mounts, sorted by MountPoint
	all     []*Entry // every parsed entry, sorted by MountPoint, for longest-prefix fs-type lookups
	cursor  int
	watcher *watcher
}

// New reads and parses the mount table at path and returns a ready-to-use
// Oracle. Per spec §4.4 "Error model", a table that can't be read yields a
// usable Oracle that always answers false rather than an error: the build
// proceeds without bind-mount pruning.
func New(path string) *Oracle {
	o := &Oracle{path: path}
	o.reload()
	o.watcher = newWatcher(path)
	return o
}

// reload re-reads and re-classifies the mount table, swapping in the new
// state atomically from the caller's perspective (IsBindMount never
// observes a half-updated table).
func (o *Oracle) reload() {
	entries, err := parseMountinfo(o.path)
	if err != nil {
		o.byID = nil
		o.bind = nil
		o.cursor = 0
		return
	}

	byID := make(map[int]*Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var bind []*Entry
	for _, e := range entries {
		if isNoOpBindMount(e, byID) {
			bind = append(bind, e)
		}
	}
	sortEntriesByMountPoint(bind)

	all := append([]*Entry(nil), entries...)
	sortEntriesByMountPoint(all)

	o.byID = byID
	o.bind = bind
	o.all = all
	o.cursor = 0
}

// owningMount returns the mount entry whose mount point is the longest
// prefix of path, the same rule the kernel uses to resolve a path to its
// owning mount.
func (o *Oracle) owningMount(path string) *Entry {
	var best *Entry
	for _, e := range o.all {
		if e.MountPoint == path || strings.HasPrefix(path, e.MountPoint+"/") || e.MountPoint == "/" {
			if best == nil || len(e.MountPoint) > len(best.MountPoint) {
				best = e
			}
		}
	}
	return best
}

// FilesystemBoundary reports whether child is mounted on a different
// filesystem than parent (spec §4.6 pruning rule 4: "On a different
// filesystem from its parent (by st_dev)"), returning child's filesystem
// type when it is. It reports crossed=false if the mount table couldn't
// resolve either path, so the caller's pruning rule simply doesn't fire
// rather than blocking the build (spec §4.4 "Error model").
func (o *Oracle) FilesystemBoundary(parent, child string) (fsType string, crossed bool) {
	parentMount := o.owningMount(parent)
	childMount := o.owningMount(child)
	if parentMount == nil || childMount == nil {
		return "", false
	}
	if parentMount.MountPoint == childMount.MountPoint {
		return "", false
	}
	return childMount.FSType, true
}

// IsBindMount reports whether path is the mount point of a no-op bind mount.
// Callers are expected (per spec §4.4 "Lookup") to query in ascending
// pathorder.Compare order within a single build or query so the internal
// cursor advances monotonically, giving amortized O(1) per query; an
// out-of-order query still returns a correct answer, just at the cost of a
// cursor reset.
func (o *Oracle) IsBindMount(path string) bool {
	if o.watcher != nil && o.watcher.poll() {
		o.reload()
	}

	if len(o.bind) == 0 {
		return false
	}

	if o.cursor > 0 && !pathorder.LessStrings(o.bind[o.cursor-1].MountPoint, path) {
		o.cursor = 0
	}
	for o.cursor < len(o.bind) && pathorder.LessStrings(o.bind[o.cursor].MountPoint, path) {
		o.cursor++
	}
	return o.cursor < len(o.bind) && o.bind[o.cursor].MountPoint == path
}

// isNoOpBindMount implements the classification in spec §4.4: identical
// device, filesystem type, and source as the parent, and a mount point that
// does not sit where the parent would already expose the same root. A mount
// whose mount point extends the parent's mount point by exactly the suffix
// that its root extends the parent's root is a subtree mount of the same
// place, not a second label for it, and is not reported. Self-binds
// (source == mount point) are excluded.
func isNoOpBindMount(e *Entry, byID map[int]*Entry) bool {
	parent, ok := byID[e.ParentID]
	if !ok {
		return false
	}
	if e.Source == e.MountPoint {
		return false
	}
	if e.DevMajor != parent.DevMajor || e.DevMinor != parent.DevMinor {
		return false
	}
	if e.FSType != parent.FSType || e.Source != parent.Source {
		return false
	}

	mountSuffix, mountOK := suffixAfter(e.MountPoint, parent.MountPoint)
	rootSuffix, rootOK := suffixAfter(e.Root, parent.Root)
	return !(mountOK && rootOK && mountSuffix == rootSuffix)
}

// suffixAfter returns the suffix of child after trimming the prefix parent,
// requiring that the trim land on a path component boundary (or consume all
// of child exactly). It reports ok=false if parent isn't a genuine prefix of
// child.
func suffixAfter(child, parent string) (string, bool) {
	if parent == "/" {
		return strings.TrimPrefix(child, "/"), true
	}
	if child == parent {
		return "", true
	}
	if !strings.HasPrefix(child, parent+"/") {
		return "", false
	}
	return child[len(parent)+1:], true
}

func sortEntriesByMountPoint(entries []*Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && pathorder.LessStrings(entries[j].MountPoint, entries[j-1].MountPoint); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// parseMountinfo reads and decodes the mountinfo format described in spec
// §6: one mount per line, fields separated by single spaces, octal \NNN
// escapes for whitespace/backslash within fields, with a literal "-" field
// separating per-mount options from filesystem-type-specific fields.
func parseMountinfo(path string) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open mount table")
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		entry, err := parseMountinfoLine(scanner.Text())
		if err != nil {
			continue // malformed lines are skipped, not fatal
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read mount table")
	}
	return entries, nil
}

func parseMountinfoLine(line string) (*Entry, error) {
	fields, err := splitMountinfoFields(line)
	if err != nil {
		return nil, err
	}

	sep := -1
	for i, f := range fields {
		if f == "-" {
			sep = i
			break
		}
	}
	if sep < 0 || sep < 6 || len(fields) < sep+4 {
		return nil, fmt.Errorf("mount: malformed line: %q", line)
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, err
	}
	parentID, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, err
	}
	major, minor, err := splitDevNumbers(fields[2])
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:         id,
		ParentID:   parentID,
		DevMajor:   major,
		DevMinor:   minor,
		Root:       fields[3],
		MountPoint: fields[4],
		FSType:     fields[sep+1],
		Source:     fields[sep+2],
	}, nil
}

func splitDevNumbers(s string) (int, int, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return 0, 0, fmt.Errorf("mount: malformed dev field: %q", s)
	}
	major, err := strconv.Atoi(s[:idx])
	if err != nil {
		return 0, 0, err
	}
	minor, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return 0, 0, err
	}
	return major, minor, nil
}

// splitMountinfoFields splits on single spaces while decoding \NNN octal
// escapes within each field (original_source/src/bind-mount.c's
// parse_mount_string), so an escaped space doesn't become a field
// separator.
func splitMountinfoFields(line string) ([]string, error) {
	var fields []string
	var current strings.Builder
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ':
			fields = append(fields, current.String())
			current.Reset()
			i++
		case c == '\\' && i+3 < len(line) && isOctalDigit(line[i+1]) && isOctalDigit(line[i+2]) && isOctalDigit(line[i+3]):
			v := (oct(line[i+1]) << 6) | (oct(line[i+2]) << 3) | oct(line[i+3])
			current.WriteByte(byte(v))
			i += 4
		default:
			current.WriteByte(c)
			i++
		}
	}
	fields = append(fields, current.String())
	if len(fields) < 5 {
		return nil, fmt.Errorf("mount: too few fields: %q", line)
	}
	return fields, nil
}

func isOctalDigit(b byte) bool { return b >= '0' && b <= '7' }
func oct(b byte) int           { return int(b - '0') }
