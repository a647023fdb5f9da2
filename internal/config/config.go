// Package config produces the frozen Configuration snapshot that the core
// (internal/build, internal/match) consumes read-only (spec §4.3). Parsing
// the on-disk updatedb.conf file and the command-line flags is, per spec
// §1, external to the core; this package is that external layer, but its
// output type never leaks a file path or a flag set into the core — only a
// Snapshot value.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/mlocate-go/mlocate/internal/pathorder"
)

// DefaultConfigPath is where updatedb looks for its configuration file when
// none is given explicitly, matching the original tool's installed location.
const DefaultConfigPath = "/etc/updatedb.conf"

// DefaultOutputPath is the default database location.
const DefaultOutputPath = "/var/lib/mlocate/mlocate.db"

// Snapshot is the frozen set of decisions driving one build or query (spec
// §4.3).
type Snapshot struct {
	ScanRoot        string
	PrunePaths      []string
	PruneNames      []string
	PruneFSTypes    []string
	PruneBindMounts bool
	CheckVisibility bool
	OutputPath      string
	Verbose         bool
	DebugPruning    bool
}

// normalizeSets sorts and deduplicates the three prune sets per spec §4.3:
// prune_paths by pathorder.Compare, prune_names and prune_fs_types
// byte-wise, with prune_fs_types additionally upper-cased.
func (s *Snapshot) normalizeSets() {
	s.PrunePaths = sortUnique(s.PrunePaths, pathorder.LessStrings)

	s.PruneNames = sortUnique(s.PruneNames, strLess)

	upperFS := make([]string, len(s.PruneFSTypes))
	for i, t := range s.PruneFSTypes {
		upperFS[i] = strings.ToUpper(t)
	}
	s.PruneFSTypes = sortUnique(upperFS, strLess)
}

func strLess(a, b string) bool { return a < b }

func sortUnique(in []string, less func(a, b string) bool) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	deduped := out[:0]
	for i, s := range out {
		if i == 0 || s != deduped[len(deduped)-1] {
			deduped = append(deduped, s)
		}
	}
	return deduped
}

// ConfigBlock serializes the prune sets and flags into the opaque byte
// string embedded verbatim in the database header (spec §4.3 "config_block").
// Its only contract is byte-for-byte equality between builds with the same
// settings; the format is deliberately simple (NUL-joined fields) rather
// than anything meant for external parsing.
func (s *Snapshot) ConfigBlock() []byte {
	var buf bytes.Buffer
	writeField := func(values []string) {
		buf.WriteString(strings.Join(values, "\x00"))
		buf.WriteByte(0)
	}
	writeField(s.PrunePaths)
	writeField(s.PruneNames)
	writeField(s.PruneFSTypes)
	if s.PruneBindMounts {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// File holds the subset of updatedb.conf-recognized variables, parsed with
// godotenv's KEY="value" shell-variable syntax (matching the teacher's
// go.mod dependency and its pkg/environment convention of preferring a
// small parsing library over a hand-rolled tokenizer).
type File struct {
	PruneFS         []string
	PruneNames      []string
	PrunePaths      []string
	PruneBindMounts bool
	CheckVisibility bool
}

// LoadFile reads and parses an updatedb.conf-style configuration file. A
// missing file is not an error: it is treated as an empty configuration,
// since the CLI's --prunefoo/--add-prunefoo flags and built-in defaults may
// fully determine the snapshot.
func LoadFile(path string) (*File, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{CheckVisibility: true}, nil
		}
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	f := &File{CheckVisibility: true}
	if v, ok := values["PRUNEFS"]; ok {
		f.PruneFS = splitWhitespace(v)
	}
	if v, ok := values["PRUNENAMES"]; ok {
		f.PruneNames = splitWhitespace(v)
	}
	if v, ok := values["PRUNEPATHS"]; ok {
		f.PrunePaths = splitWhitespace(v)
	}
	if v, ok := values["PRUNE_BIND_MOUNTS"]; ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, errors.Wrap(err, "invalid PRUNE_BIND_MOUNTS")
		}
		f.PruneBindMounts = b
	}
	if v, ok := values["CHECK_VISIBILITY"]; ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, errors.Wrap(err, "invalid CHECK_VISIBILITY")
		}
		f.CheckVisibility = b
	}
	return f, nil
}

func splitWhitespace(s string) []string {
	return strings.Fields(s)
}

// parseBool accepts "0"/"no" and "1"/"yes", as original_source/src/conf.c's
// parse_bool does, and additionally any spelling strconv.ParseBool accepts
// ("true", "false", "t", "f", ...). Anything else is an error.
func parseBool(s string) (bool, error) {
	switch s {
	case "0", "no":
		return false, nil
	case "1", "yes":
		return true, nil
	default:
		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}
		return false, fmt.Errorf("expected yes/no, got %q", s)
	}
}

// Overrides carries the --prunefoo (replace) and --add-prunefoo (append)
// CLI flags (spec §6 "Updater CLI").
type Overrides struct {
	ScanRoot        string
	OutputPath      string
	PruneFS         []string
	AddPruneFS      []string
	PruneNames      []string
	AddPruneNames   []string
	PrunePaths      []string
	AddPrunePaths   []string
	PruneBindMounts *bool
	CheckVisibility *bool
	Verbose         bool
	DebugPruning    bool
}

// Build layers a File over built-in defaults and then applies Overrides,
// producing a normalized Snapshot ready for the core.
func Build(file *File, ov Overrides) (*Snapshot, error) {
	if file == nil {
		file = &File{CheckVisibility: true}
	}

	s := &Snapshot{
		ScanRoot:        "/",
		PrunePaths:      append([]string{}, file.PrunePaths...),
		PruneNames:      append([]string{}, file.PruneNames...),
		PruneFSTypes:    append([]string{}, file.PruneFS...),
		PruneBindMounts: file.PruneBindMounts,
		CheckVisibility: file.CheckVisibility,
		OutputPath:      DefaultOutputPath,
	}

	if ov.ScanRoot != "" {
		s.ScanRoot = ov.ScanRoot
	}
	if ov.OutputPath != "" {
		s.OutputPath = ov.OutputPath
	}
	if ov.PruneFS != nil {
		s.PruneFSTypes = append([]string{}, ov.PruneFS...)
	}
	s.PruneFSTypes = append(s.PruneFSTypes, ov.AddPruneFS...)
	if ov.PruneNames != nil {
		s.PruneNames = append([]string{}, ov.PruneNames...)
	}
	s.PruneNames = append(s.PruneNames, ov.AddPruneNames...)
	if ov.PrunePaths != nil {
		s.PrunePaths = append([]string{}, ov.PrunePaths...)
	}
	s.PrunePaths = append(s.PrunePaths, ov.AddPrunePaths...)
	if ov.PruneBindMounts != nil {
		s.PruneBindMounts = *ov.PruneBindMounts
	}
	if ov.CheckVisibility != nil {
		s.CheckVisibility = *ov.CheckVisibility
	}
	s.Verbose = ov.Verbose
	s.DebugPruning = ov.DebugPruning

	s.normalizeSets()

	if s.ScanRoot == "" {
		return nil, errors.New("scan root must not be empty")
	}

	return s, nil
}
