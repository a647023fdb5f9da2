package pathorder

import "testing"

func TestSeparatorSortsBelowExtension(t *testing.T) {
	if !LessStrings("a/x", "a.y") {
		t.Fatalf("expected \"a/x\" < \"a.y\"")
	}
}

func TestTotalOrder(t *testing.T) {
	cases := []string{"\x00", "/", "/a", "/a/b", "/a.b", "/b", "a", "a.b", "ab"}
	for i := range cases {
		for j := range cases {
			got := Compare([]byte(cases[i]), []byte(cases[j]))
			switch {
			case i < j && got >= 0:
				t.Fatalf("expected %q < %q", cases[i], cases[j])
			case i > j && got <= 0:
				t.Fatalf("expected %q > %q", cases[i], cases[j])
			case i == j && got != 0:
				t.Fatalf("expected %q == %q", cases[i], cases[j])
			}
		}
	}
}

func TestAntisymmetric(t *testing.T) {
	a, b := []byte("/usr"), []byte("/usr.backup")
	if Compare(a, b) >= 0 {
		t.Fatalf("expected /usr < /usr.backup")
	}
	if Compare(b, a) <= 0 {
		t.Fatalf("expected /usr.backup > /usr")
	}
}

func TestSingleByteSeparatorBounds(t *testing.T) {
	for c := byte(1); c < 255; c++ {
		if c == '/' {
			continue
		}
		slash := []byte{'/'}
		other := []byte{c}
		if Compare(slash, other) >= 0 {
			t.Fatalf("expected '/' < %q", other)
		}
		if Compare(other, slash) <= 0 {
			t.Fatalf("expected %q > '/'", other)
		}
	}
}

func TestReflexive(t *testing.T) {
	for _, s := range []string{"", "/", "/a/b/c", "a.b.c"} {
		if Compare([]byte(s), []byte(s)) != 0 {
			t.Fatalf("expected %q == %q", s, s)
		}
	}
}
