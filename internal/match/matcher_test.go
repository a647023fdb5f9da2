package match

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mlocate-go/mlocate/internal/codec"
)

func buildTestDB(t *testing.T, checkVisibility bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	if err := w.WriteHeader(&codec.Header{ScanRoot: "/", CheckVisibility: checkVisibility}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.WriteDirectory("/", 1, 0); err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	if err := w.WriteEntry("etc", true); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.WriteEntry("readme.txt", false); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.EndDirectory(); err != nil {
		t.Fatalf("EndDirectory: %v", err)
	}
	if err := w.WriteDirectory("/etc", 2, 0); err != nil {
		t.Fatalf("WriteDirectory: %v", err)
	}
	if err := w.WriteEntry("hosts", false); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.WriteEntry("fstab", false); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.EndDirectory(); err != nil {
		t.Fatalf("EndDirectory: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return buf.Bytes()
}

func TestMatcherFindsWholePathMatches(t *testing.T) {
	data := buildTestDB(t, false)
	p, err := CompileGlob("hosts", false)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	var out bytes.Buffer
	m := New(codec.NewReader(bytes.NewReader(data)), &out, Options{
		Patterns:  NewPatternSet(false, p),
		Separator: SeparatorNewline,
	})
	stats, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Matches != 1 {
		t.Fatalf("expected 1 match, got %d", stats.Matches)
	}
	if strings.TrimRight(out.String(), "\n") != "/etc/hosts" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestMatcherCountOnlyProducesNoOutput(t *testing.T) {
	data := buildTestDB(t, false)
	p, err := CompileGlob("e", false)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	var out bytes.Buffer
	m := New(codec.NewReader(bytes.NewReader(data)), &out, Options{
		Patterns:  NewPatternSet(false, p),
		CountOnly: true,
		Separator: SeparatorNewline,
	})
	stats, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output in count-only mode, got %q", out.String())
	}
	if stats.Matches == 0 {
		t.Fatalf("expected at least one match to be counted")
	}
}

func TestMatcherLimitStopsEarly(t *testing.T) {
	data := buildTestDB(t, false)
	p, err := CompileGlob("e", false) // whole-path substring: /etc, /readme.txt, /etc/... all match
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	var out bytes.Buffer
	m := New(codec.NewReader(bytes.NewReader(data)), &out, Options{
		Patterns:  NewPatternSet(false, p),
		Limit:     1,
		Separator: SeparatorNewline,
	})
	stats, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Matches != 1 {
		t.Fatalf("expected limit to cap matches at 1, got %d", stats.Matches)
	}
}

func TestMatcherStatisticsTalliesWithoutOutput(t *testing.T) {
	data := buildTestDB(t, false)
	var out bytes.Buffer
	m := New(codec.NewReader(bytes.NewReader(data)), &out, Options{
		Statistics: true,
	})
	stats, err := m.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Directories != 2 {
		t.Fatalf("expected 2 directories, got %d", stats.Directories)
	}
	if stats.Entries != 4 {
		t.Fatalf("expected 4 entries, got %d", stats.Entries)
	}
	if !strings.Contains(out.String(), "directories") {
		t.Fatalf("expected statistics summary in output, got %q", out.String())
	}
}

func TestJoinPathRootEdgeCase(t *testing.T) {
	if got := joinPath("/", "etc"); got != "/etc" {
		t.Fatalf("expected /etc, got %q", got)
	}
	if got := joinPath("/etc", "hosts"); got != "/etc/hosts" {
		t.Fatalf("expected /etc/hosts, got %q", got)
	}
}

func TestSanitizeForTerminalReplacesControlBytes(t *testing.T) {
	got := sanitizeForTerminal("/tmp/a\x01b")
	if got != "/tmp/a?b" {
		t.Fatalf("expected control byte replaced, got %q", got)
	}
}
