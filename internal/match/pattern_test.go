package match

import "testing"

func TestSimpleGlobMatchesBySubstring(t *testing.T) {
	p, err := CompileGlob("report", false)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	if !p.simple {
		t.Fatalf("expected pattern with no glob metacharacters to be flagged simple")
	}
	if !p.Match("/var/log/report.txt") {
		t.Fatalf("expected substring match")
	}
	if p.Match("/var/log/other.txt") {
		t.Fatalf("expected no match")
	}
}

func TestSimpleGlobCaseInsensitive(t *testing.T) {
	p, err := CompileGlob("Report", true)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	if !p.Match("/var/log/report.TXT") {
		t.Fatalf("expected case-insensitive substring match")
	}
}

func TestGlobWithMetacharacters(t *testing.T) {
	p, err := CompileGlob("*.go", false)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	if p.simple {
		t.Fatalf("pattern with metacharacters should not be flagged simple")
	}
	if !p.Match("main.go") {
		t.Fatalf("expected glob match")
	}
	if p.Match("main.c") {
		t.Fatalf("expected no glob match")
	}
}

func TestRegexCaseInsensitive(t *testing.T) {
	p, err := CompileRegex("^/etc/.*\\.conf$", true)
	if err != nil {
		t.Fatalf("CompileRegex: %v", err)
	}
	if !p.Match("/ETC/Foo.CONF") {
		t.Fatalf("expected case-insensitive regex match")
	}
}

func TestPatternSetBasenameOnly(t *testing.T) {
	p, err := CompileGlob("main.go", false)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	set := NewPatternSet(true, p)
	if !set.Match("/src/pkg/main.go") {
		t.Fatalf("expected basename match")
	}
	if set.Match("/src/main.go/extra") {
		t.Fatalf("unexpected basename match")
	}
}

func TestPatternSetWholePath(t *testing.T) {
	p, err := CompileGlob("/src/main.go", false)
	if err != nil {
		t.Fatalf("CompileGlob: %v", err)
	}
	set := NewPatternSet(false, p)
	if !set.Match("/src/main.go") {
		t.Fatalf("expected whole-path match")
	}
}

func TestPatternSetORsMultiplePatterns(t *testing.T) {
	a, _ := CompileGlob("foo", false)
	b, _ := CompileGlob("bar", false)
	set := NewPatternSet(false, a, b)
	if !set.Match("/x/bar.txt") {
		t.Fatalf("expected match against second pattern")
	}
	if set.Match("/x/baz.txt") {
		t.Fatalf("unexpected match")
	}
}
