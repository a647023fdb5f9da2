// Package match implements the streaming match engine (spec §4.7): path
// reconstruction from the database stream, pattern-set compilation in three
// modes, visibility enforcement, and output.
package match

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/coregx/coregex"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Mode selects how a Pattern is matched against a candidate string (spec
// §4.7 "Pattern set compilation").
type Mode int

const (
	// ModeRegex compiles the pattern as a regular expression.
	ModeRegex Mode = iota
	// ModeGlob compiles the pattern as a glob, except that a pattern with no
	// glob metacharacters is flagged Simple and matched by substring search.
	ModeGlob
)

// upperCaser implements spec §4.7's "upper-case wide-character form" for
// glob and simple (substring) patterns: case-insensitive matching folds both
// the pattern and every candidate through the same Unicode case mapping
// before comparing. Regex patterns are not folded this way; coregex has no
// case-insensitive compile flag (see DESIGN.md), so caseFoldRegexSource
// rewrites their source instead.
var upperCaser = cases.Upper(language.Und)

func foldUpper(s string) string {
	return upperCaser.String(norm.NFC.String(s))
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, `*?[\]`)
}

// caseFoldRegexSource rewrites each unescaped ASCII letter outside a bracket
// expression into a two-letter class, e.g. "a" becomes "[Aa]". This gives
// coregex case-insensitive semantics without a native flag; malformed
// expectations (an existing bracket expression containing both cases
// already) are harmless since expanding an already-present letter into its
// own class is a no-op for matching purposes.
func caseFoldRegexSource(src string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			b.WriteByte(c)
			b.WriteByte(src[i+1])
			i++
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == ']':
			inClass = false
			b.WriteByte(c)
		case !inClass && c >= 'a' && c <= 'z':
			b.WriteByte('[')
			b.WriteByte(c - 32)
			b.WriteByte(c)
			b.WriteByte(']')
		case !inClass && c >= 'A' && c <= 'Z':
			b.WriteByte('[')
			b.WriteByte(c)
			b.WriteByte(c + 32)
			b.WriteByte(']')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Pattern is one compiled member of a PatternSet.
type Pattern struct {
	mode            Mode
	caseInsensitive bool
	simple          bool
	raw             string
	upper           string
	re              *coregex.Regex
}

// CompileRegex compiles pattern as a regular expression (spec §4.7 mode (a)),
// using extended syntax: this backs --regex, which treats the positional
// patterns themselves as regular expressions.
func CompileRegex(pattern string, caseInsensitive bool) (*Pattern, error) {
	src := pattern
	if caseInsensitive {
		src = caseFoldRegexSource(pattern)
	}
	re, err := coregex.Compile(src)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compile pattern")
	}
	return &Pattern{mode: ModeRegex, caseInsensitive: caseInsensitive, raw: pattern, re: re}, nil
}

// basicRegexSpecials is the set of characters that carry special meaning in
// extended syntax but are plain literals in basic (POSIX BRE) syntax unless
// backslash-escaped.
var basicRegexSpecials = [256]bool{'(': true, ')': true, '{': true, '}': true, '+': true, '?': true, '|': true}

// translateBasicRegex rewrites a basic-regex source into the extended syntax
// coregex compiles, by swapping the escaped/literal role of the handful of
// metacharacters BRE and ERE disagree on: a bare `(` is literal in BRE and
// special in ERE, `\(` is the reverse, and likewise for `)`, `{`, `}`, `+`,
// `?`, and the GNU `\|` alternation extension. Bracket expressions are
// passed through untouched, matching caseFoldRegexSource's approach to the
// same problem.
func translateBasicRegex(src string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inClass:
			b.WriteByte(c)
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
			b.WriteByte(c)
		case c == '\\' && i+1 < len(src) && basicRegexSpecials[src[i+1]]:
			b.WriteByte(src[i+1])
			i++
		case c == '\\' && i+1 < len(src):
			b.WriteByte(c)
			b.WriteByte(src[i+1])
			i++
		case basicRegexSpecials[c]:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CompileBasicRegex compiles pattern as a POSIX basic regular expression
// (spec §6's repeatable --regexp flag, distinct from --regex's extended
// syntax): it translates BRE source into the extended syntax coregex
// compiles and otherwise behaves exactly like CompileRegex.
func CompileBasicRegex(pattern string, caseInsensitive bool) (*Pattern, error) {
	src := translateBasicRegex(pattern)
	if caseInsensitive {
		src = caseFoldRegexSource(src)
	}
	re, err := coregex.Compile(src)
	if err != nil {
		return nil, errors.Wrap(err, "unable to compile pattern")
	}
	return &Pattern{mode: ModeRegex, caseInsensitive: caseInsensitive, raw: pattern, re: re}, nil
}

// CompileGlob compiles pattern as a glob (spec §4.7 mode (b)), flagging it
// Simple when it contains none of the glob metacharacters `* ? [ \ ]`
// (mode (c)): simple patterns are matched by substring search, "an order of
// magnitude faster" per spec.
func CompileGlob(pattern string, caseInsensitive bool) (*Pattern, error) {
	p := &Pattern{mode: ModeGlob, caseInsensitive: caseInsensitive, raw: pattern}
	if !hasGlobMeta(pattern) {
		p.simple = true
		if caseInsensitive {
			p.upper = foldUpper(pattern)
		}
		return p, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("unable to compile glob pattern %q", pattern)
	}
	if caseInsensitive {
		p.upper = foldUpper(pattern)
	}
	return p, nil
}

// Match reports whether candidate satisfies this pattern.
func (p *Pattern) Match(candidate string) bool {
	switch p.mode {
	case ModeRegex:
		if p.re == nil {
			return false
		}
		return p.re.MatchString(candidate)
	case ModeGlob:
		if p.simple {
			if p.caseInsensitive {
				return strings.Contains(foldUpper(candidate), p.upper)
			}
			return strings.Contains(candidate, p.raw)
		}
		pat, cand := p.raw, candidate
		if p.caseInsensitive {
			pat, cand = p.upper, foldUpper(candidate)
		}
		ok, _ := doublestar.Match(pat, cand)
		return ok
	default:
		return false
	}
}

// PatternSet is an OR'd collection of patterns, matched against either the
// whole path or just the basename (spec §4.7 "Basename vs whole-path").
type PatternSet struct {
	patterns []*Pattern
	basename bool
}

// NewPatternSet builds a PatternSet from already-compiled patterns.
func NewPatternSet(basename bool, patterns ...*Pattern) *PatternSet {
	return &PatternSet{patterns: patterns, basename: basename}
}

func (s *PatternSet) candidate(path string) string {
	if !s.basename {
		return path
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Match reports whether any pattern in the set matches path.
func (s *PatternSet) Match(path string) bool {
	cand := s.candidate(path)
	for _, p := range s.patterns {
		if p.Match(cand) {
			return true
		}
	}
	return false
}
