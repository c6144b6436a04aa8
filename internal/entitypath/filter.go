package entitypath

import (
	"sort"
	"strings"
)

// Effect is the result of a matching filter Rule.
type Effect int

const (
	// Exclude is the default effect when no rule matches a path.
	Exclude Effect = iota
	Include
)

// Rule is a single line of a Filter: a path plus whether it also
// matches the path's subtree.
type Rule struct {
	Path           Path
	IncludeSubtree bool
}

// Matches reports whether r applies to path: either the paths are
// equal, or r is recursive and r.Path is an ancestor of path.
func (r Rule) Matches(path Path) bool {
	if r.IncludeSubtree {
		return path.StartsWith(r.Path)
	}
	return path.Equal(r.Path)
}

// ruleLess implements the filter's specificity order: rules sort first by
// path (lexicographic over parts), and for equal paths, non-recursive
// sorts after recursive. The last matching rule in this order is the
// most specific one (spec §4.2).
func ruleLess(a, b Rule) bool {
	pa, pb := a.Path.Parts(), b.Path.Parts()
	n := len(pa)
	if len(pb) < n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	if len(pa) != len(pb) {
		return len(pa) < len(pb)
	}
	// Equal paths: recursive (IncludeSubtree) sorts first, i.e.
	// !IncludeSubtree sorts after.
	if a.IncludeSubtree != b.IncludeSubtree {
		return a.IncludeSubtree // recursive < non-recursive
	}
	return false
}

type ruleEntry struct {
	rule   Rule
	effect Effect
	seq    int // insertion order, for tie-breaking equal-specificity rules
}

// Filter is an ordered set of (rule, effect) pairs implementing the
// hierarchical include/exclude semantics described in spec §4.2.
type Filter struct {
	entries []ruleEntry
	nextSeq int
	sorted  bool
}

// sameRule reports whether a and b have the same Path and
// IncludeSubtree.
func sameRule(a, b Rule) bool {
	return a.IncludeSubtree == b.IncludeSubtree && a.Path.Equal(b.Path)
}

// AddRule inserts a rule with the given effect. Adding a rule whose
// Path+IncludeSubtree already exists replaces the earlier effect but
// keeps the later insertion order, matching "last rule wins" for
// conflicting rules of identical specificity.
func (f *Filter) AddRule(effect Effect, rule Rule) {
	for i := range f.entries {
		if sameRule(f.entries[i].rule, rule) {
			f.entries[i].effect = effect
			f.entries[i].seq = f.nextSeq
			f.nextSeq++
			f.sorted = false
			return
		}
	}
	f.entries = append(f.entries, ruleEntry{rule: rule, effect: effect, seq: f.nextSeq})
	f.nextSeq++
	f.sorted = false
}

// AddExact includes path itself but not its subtree.
func (f *Filter) AddExact(path Path) {
	f.AddRule(Include, Rule{Path: path, IncludeSubtree: false})
}

// AddSubtree includes path and everything below it.
func (f *Filter) AddSubtree(path Path) {
	f.AddRule(Include, Rule{Path: path, IncludeSubtree: true})
}

func (f *Filter) ensureSorted() {
	if f.sorted {
		return
	}
	sort.SliceStable(f.entries, func(i, j int) bool {
		if ruleLess(f.entries[i].rule, f.entries[j].rule) {
			return true
		}
		if ruleLess(f.entries[j].rule, f.entries[i].rule) {
			return false
		}
		return f.entries[i].seq < f.entries[j].seq
	})
	f.sorted = true
}

// MostSpecificMatch returns the effect of the most specific rule that
// matches path, and true, or (Exclude, false) if no rule matches.
func (f *Filter) MostSpecificMatch(path Path) (Effect, bool) {
	f.ensureSorted()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].rule.Matches(path) {
			return f.entries[i].effect, true
		}
	}
	return Exclude, false
}

// IsIncluded reports whether path is included by f. No matching rule
// means excluded.
func (f *Filter) IsIncluded(path Path) bool {
	effect, ok := f.MostSpecificMatch(path)
	return ok && effect == Include
}

// IsAnythingInSubtreeIncluded reports whether path itself, or anything
// at or below it, is included by f. This lets callers (UI tree
// pruning, query subscription pruning) skip whole subtrees cheaply.
func (f *Filter) IsAnythingInSubtreeIncluded(path Path) bool {
	f.ensureSorted()

	for _, e := range f.entries {
		if e.effect == Include && e.rule.Path.StartsWith(path) {
			return true
		}
	}

	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if !e.rule.Matches(path) {
			continue
		}
		if e.effect == Include {
			return true
		}
		if e.rule.IncludeSubtree {
			return false
		}
		// Excluded but not recursively: keep looking for a less
		// specific rule, and we've already ruled out anything more
		// specific being included above.
	}
	return false
}

// ParseRule parses a single rule expression (no leading +/-): a path,
// optionally suffixed with "/**" to mark it recursive. The bare token
// "/**" means "root, recursive".
func ParseRule(expr string) Rule {
	expr = strings.TrimSpace(expr)
	if expr == "/**" {
		return Rule{Path: Root(), IncludeSubtree: true}
	}
	if rest, ok := strings.CutSuffix(expr, "/**"); ok {
		return Rule{Path: Parse(rest), IncludeSubtree: true}
	}
	return Rule{Path: Parse(expr), IncludeSubtree: false}
}

// ParseFilter parses one rule per line (spec §4.2 grammar): an
// optional leading '+'/'-' (default '+'), then a rule expression.
// Blank lines are skipped.
func ParseFilter(rules string) Filter {
	var f Filter
	for _, line := range strings.Split(rules, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		effect := Include
		rest := line
		switch line[0] {
		case '+':
			effect = Include
			rest = line[1:]
		case '-':
			effect = Exclude
			rest = line[1:]
		}

		f.AddRule(effect, ParseRule(rest))
	}
	return f
}
