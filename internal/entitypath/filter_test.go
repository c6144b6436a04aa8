package entitypath

import "testing"

// S4 — filter.
func TestScenarioS4Filter(t *testing.T) {
	f := ParseFilter("+/world/**\n-/world/car/**\n+/world/car/driver")

	cases := []struct {
		path string
		want bool
	}{
		{"/world/house", true},
		{"/world/car/hood", false},
		{"/world/car/driver", true},
		{"/unrelated", false},
	}
	for _, c := range cases {
		if got := f.IsIncluded(Parse(c.path)); got != c.want {
			t.Errorf("IsIncluded(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

// Invariant 7: filter specificity — MostSpecificMatch agrees with the
// last matching rule in sorted order.
func TestInvariantFilterSpecificity(t *testing.T) {
	f := ParseFilter("+/world/**\n-/world/car/**\n+/world/car/driver")
	f.ensureSorted()

	check := func(path string) {
		p := Parse(path)
		var want Effect
		wantOK := false
		for i := len(f.entries) - 1; i >= 0; i-- {
			if f.entries[i].rule.Matches(p) {
				want = f.entries[i].effect
				wantOK = true
				break
			}
		}
		got, gotOK := f.MostSpecificMatch(p)
		if gotOK != wantOK || (gotOK && got != want) {
			t.Errorf("MostSpecificMatch(%q) = (%v,%v), want (%v,%v)", path, got, gotOK, want, wantOK)
		}
	}
	for _, p := range []string{"/world/house", "/world/car/hood", "/world/car/driver", "/unrelated", "/world"} {
		check(p)
	}
}

func TestRuleSpecificityOrdering(t *testing.T) {
	// Equal path: recursive rule is less specific than non-recursive.
	recursive := Rule{Path: Parse("/a"), IncludeSubtree: true}
	exact := Rule{Path: Parse("/a"), IncludeSubtree: false}
	if !ruleLess(recursive, exact) {
		t.Fatal("expected recursive rule to sort before non-recursive rule at equal path")
	}

	shorter := Rule{Path: Parse("/a"), IncludeSubtree: true}
	longer := Rule{Path: Parse("/a/b"), IncludeSubtree: true}
	if !ruleLess(shorter, longer) {
		t.Fatal("expected shorter path to sort before longer path")
	}
}

func TestIsAnythingInSubtreeIncluded(t *testing.T) {
	f := ParseFilter("+/world/**\n-/world/car/**\n+/world/car/driver")

	if !f.IsAnythingInSubtreeIncluded(Parse("/world/car")) {
		t.Fatal("expected /world/car subtree to still include /world/car/driver")
	}
	if f.IsAnythingInSubtreeIncluded(Parse("/unrelated")) {
		t.Fatal("expected /unrelated subtree to include nothing")
	}
	if !f.IsAnythingInSubtreeIncluded(Parse("/world")) {
		t.Fatal("expected /world subtree to include something")
	}
}

func TestParseRuleRootRecursive(t *testing.T) {
	r := ParseRule("/**")
	if !r.Path.IsRoot() || !r.IncludeSubtree {
		t.Fatalf("expected root+recursive rule, got %+v", r)
	}
}

func TestAddRuleReplacesIdenticalRule(t *testing.T) {
	var f Filter
	p := Parse("/a/b")
	f.AddExact(p)
	f.AddRule(Exclude, Rule{Path: p, IncludeSubtree: false})

	if f.IsIncluded(p) {
		t.Fatal("expected the later Exclude to replace the earlier Include for the identical rule")
	}
	if len(f.entries) != 1 {
		t.Fatalf("expected a single entry after replacing an identical rule, got %d", len(f.entries))
	}
}
