package match

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/mlocate-go/mlocate/internal/codec"
	"github.com/mlocate-go/mlocate/internal/viscache"
)

// Separator selects the byte written after each matched path (spec §4.7
// "Output").
type Separator byte

const (
	SeparatorNewline Separator = '\n'
	SeparatorNUL     Separator = 0
)

// ExistenceMode controls the --existing filter (SPEC_FULL.md feature 3,
// --follow/--nofollow): Ignore performs no check, Stat follows a trailing
// symlink, Lstat does not.
type ExistenceMode int

const (
	ExistenceIgnore ExistenceMode = iota
	ExistenceStat
	ExistenceLstat
)

func exists(path string, mode ExistenceMode) bool {
	var err error
	switch mode {
	case ExistenceStat:
		_, err = os.Stat(path)
	case ExistenceLstat:
		_, err = os.Lstat(path)
	default:
		return true
	}
	return err == nil
}

// Options configures one Matcher run.
type Options struct {
	Patterns *PatternSet

	CountOnly  bool
	Statistics bool

	Limit     int // 0 means unbounded (spec §4.7 "Limit")
	Separator Separator
	Terminal  bool // replace non-printable bytes (spec §4.7 "Output")
	Existence ExistenceMode

	// IgnoreVisibility corresponds to locate -a/--all: it overrides the
	// database's check_visibility flag unconditionally, so no ancestor
	// permission checks are made.
	IgnoreVisibility bool
}

// Stats accumulates the tallies spec §4.7 "Statistics mode" requires, and
// doubles as the match/count summary for ordinary queries.
type Stats struct {
	Directories int
	Entries     int
	PathBytes   int64
	Matches     int
}

// Matcher streams one database through codec.Reader, reconstructing paths
// and applying Options. It is single-use: construct one per query.
type Matcher struct {
	r    *codec.Reader
	opts Options
	vis  *viscache.Cache
	w    *bufio.Writer

	stats Stats
}

// New creates a Matcher reading from r and writing matched paths to w.
func New(r *codec.Reader, w io.Writer, opts Options) *Matcher {
	return &Matcher{r: r, opts: opts, vis: viscache.New(), w: bufio.NewWriter(w)}
}

// Run streams the database to completion (or until the result cap is hit),
// flushes pending output, and returns accumulated statistics.
func (m *Matcher) Run() (Stats, error) {
	defer m.w.Flush()

	header, err := m.r.ReadHeader()
	if err != nil {
		return m.stats, errors.Wrap(err, "unable to read database header")
	}
	checkVisibility := header.CheckVisibility && !m.opts.IgnoreVisibility

	for {
		dh, err := m.r.ReadDirectoryHeader()
		if err == io.EOF {
			break
		}
		if err != nil {
			return m.stats, errors.Wrap(err, "unable to read directory header")
		}
		m.stats.Directories++
		m.stats.PathBytes += int64(len(dh.Path))

		stop, err := m.visit(dh.Path, checkVisibility)
		if err != nil {
			return m.stats, err
		}
		if stop {
			if err := m.r.SkipDirectoryBody(); err != nil {
				return m.stats, errors.Wrap(err, "unable to skip remaining entries")
			}
			break
		}

		for {
			name, _, ok, err := m.r.ReadEntry()
			if err != nil {
				return m.stats, errors.Wrap(err, "unable to read entry")
			}
			if !ok {
				break
			}
			m.stats.Entries++
			full := joinPath(dh.Path, name)
			m.stats.PathBytes += int64(len(full))

			stop, err := m.visit(full, checkVisibility)
			if err != nil {
				return m.stats, err
			}
			if stop {
				break
			}
		}
		if m.limitReached() {
			break
		}
	}

	if m.opts.Statistics {
		m.printStatistics()
	}
	return m.stats, nil
}

// visit applies matching, visibility, existence, and output to one
// candidate path (a directory's own path or one of its entries' full
// paths), returning stop=true once the result cap has just been reached.
func (m *Matcher) visit(p string, checkVisibility bool) (bool, error) {
	if m.opts.Statistics {
		return false, nil
	}
	if m.opts.Patterns != nil && !m.opts.Patterns.Match(p) {
		return false, nil
	}
	if checkVisibility && !m.vis.Visible(p) {
		return false, nil
	}
	if m.opts.Existence != ExistenceIgnore && !exists(p, m.opts.Existence) {
		return false, nil
	}

	m.stats.Matches++
	if !m.opts.CountOnly {
		if err := m.emit(p); err != nil {
			return false, errors.Wrap(err, "unable to write match")
		}
	}
	return m.limitReached(), nil
}

func (m *Matcher) limitReached() bool {
	return m.opts.Limit > 0 && m.stats.Matches >= m.opts.Limit
}

func (m *Matcher) emit(p string) error {
	if m.opts.Terminal && m.opts.Separator == SeparatorNewline {
		p = sanitizeForTerminal(p)
	}
	if _, err := m.w.WriteString(p); err != nil {
		return err
	}
	return m.w.WriteByte(byte(m.opts.Separator))
}

func (m *Matcher) printStatistics() {
	fmt.Fprintf(m.w, "%s directories\n", humanize.Comma(int64(m.stats.Directories)))
	fmt.Fprintf(m.w, "%s files\n", humanize.Comma(int64(m.stats.Entries)))
	fmt.Fprintf(m.w, "%s bytes in file names\n", humanize.Comma(m.stats.PathBytes))
}

// sanitizeForTerminal implements spec §4.7 "When stdout is a terminal and
// the separator is newline, non-printable bytes in the path are replaced by
// '?'", operating byte-wise: control bytes below 0x20 and DEL (0x7f) become
// '?', and every byte from 0x80 up is written unchanged, so multi-byte
// sequences, well-formed or not, pass through as they are.
func sanitizeForTerminal(p string) string {
	b := []byte(p)
	out := make([]byte, len(b))
	for i, c := range b {
		if c < 0x20 || c == 0x7f {
			out[i] = '?'
		} else {
			out[i] = c
		}
	}
	return string(out)
}

// joinPath reconstructs an entry's full path from its directory's path and
// its name, per spec §4.7: "no extra slash if dir.path == '/'".
func joinPath(dirPath, name string) string {
	if dirPath == "/" {
		return "/" + name
	}
	return dirPath + "/" + name
}
