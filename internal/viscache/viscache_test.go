package viscache

import "testing"

func withFakeProbe(t *testing.T, inaccessible map[string]bool, calls *[]string) func() {
	t.Helper()
	orig := probe
	probe = func(prefix string) bool {
		if calls != nil {
			*calls = append(*calls, prefix)
		}
		return !inaccessible[prefix]
	}
	return func() { probe = orig }
}

func TestVisibleAllAncestorsAccessible(t *testing.T) {
	defer withFakeProbe(t, nil, nil)()
	c := New()
	if !c.Visible("/priv/secret") {
		t.Fatalf("expected visible")
	}
}

func TestInvisibleWhenAncestorInaccessible(t *testing.T) {
	defer withFakeProbe(t, map[string]bool{"/priv": true}, nil)()
	c := New()
	if c.Visible("/priv/secret") {
		t.Fatalf("expected invisible since /priv is inaccessible")
	}
}

func TestCacheAvoidsRepeatedProbes(t *testing.T) {
	var calls []string
	defer withFakeProbe(t, nil, &calls)()
	c := New()
	c.Visible("/a/b/c")
	firstCalls := len(calls)
	c.Visible("/a/b/d")
	if len(calls) != firstCalls {
		t.Fatalf("expected no new probes for a sibling with identical ancestors, got %d new probes", len(calls)-firstCalls)
	}
}

func TestRootIsAlwaysVisible(t *testing.T) {
	defer withFakeProbe(t, nil, nil)()
	c := New()
	if !c.Visible("/") {
		t.Fatalf("expected / to be visible (no ancestors to check)")
	}
}
