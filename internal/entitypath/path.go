// Package entitypath implements entity paths: the hierarchical,
// slash-separated identifiers that every row in the data store is
// attached to (spec §3, §4.2), along with the include/exclude Filter
// used by query subscribers to prune subscriptions.
//
// Entity paths are interned so that downstream structures (the column
// store, the entity tree, the row index) can carry a cheap 64-bit Hash
// instead of a copy of the part list.
package entitypath

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Hash is the 64-bit primary key derived from a Path's parts. It is
// used everywhere downstream instead of the path itself.
type Hash uint64

// Path is an ordered sequence of path parts. The zero value is the
// root path ("/").
type Path struct {
	parts []string
}

// Root returns the empty (root) entity path.
func Root() Path { return Path{} }

// New builds a Path from already-split, already-validated parts. Use
// Parse for untrusted/user-facing input.
func New(parts ...string) Path {
	if len(parts) == 0 {
		return Path{}
	}
	cp := make([]string, len(parts))
	copy(cp, parts)
	return Path{parts: cp}
}

// Parse implements the forgiving grammar from spec §3: leading/trailing
// slashes are ignored and empty segments are skipped, so "/a/b/", "a/b"
// and "///a//b" all parse to the same Path.
func Parse(s string) Path {
	raw := strings.Split(s, "/")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p == "" {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return Path{}
	}
	return Path{parts: parts}
}

// IsRoot reports whether p is the empty path.
func (p Path) IsRoot() bool { return len(p.parts) == 0 }

// Len returns the number of parts in p.
func (p Path) Len() int { return len(p.parts) }

// Parts returns the path's parts. The returned slice must not be
// mutated by the caller.
func (p Path) Parts() []string { return p.parts }

// Parent returns p with its last part removed, and true, unless p is
// already root.
func (p Path) Parent() (Path, bool) {
	if len(p.parts) == 0 {
		return Path{}, false
	}
	return Path{parts: p.parts[:len(p.parts)-1]}, true
}

// Child returns p with part appended.
func (p Path) Child(part string) Path {
	parts := make([]string, len(p.parts)+1)
	copy(parts, p.parts)
	parts[len(p.parts)] = part
	return Path{parts: parts}
}

// Equal reports whether p and other have the same sequence of parts.
func (p Path) Equal(other Path) bool {
	if len(p.parts) != len(other.parts) {
		return false
	}
	for i := range p.parts {
		if p.parts[i] != other.parts[i] {
			return false
		}
	}
	return true
}

// StartsWith reports whether other is p itself or an ancestor of p,
// i.e. other's parts are a prefix of p's parts.
func (p Path) StartsWith(other Path) bool {
	if len(other.parts) > len(p.parts) {
		return false
	}
	for i := range other.parts {
		if p.parts[i] != other.parts[i] {
			return false
		}
	}
	return true
}

// String returns the canonical "/a/b/c" form. The root path is "/".
func (p Path) String() string {
	if len(p.parts) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, part := range p.parts {
		b.WriteByte('/')
		b.WriteString(part)
	}
	return b.String()
}

// Hash computes the 64-bit EntityPathHash for p. Hashing is
// order-sensitive and part-boundary-sensitive (a separator byte is
// mixed in between parts so that {"ab","c"} and {"a","bc"} hash
// differently).
func (p Path) Hash() Hash {
	h := xxhash.New()
	for _, part := range p.parts {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return Hash(h.Sum64())
}
