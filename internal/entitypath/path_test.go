package entitypath

import "testing"

func TestParseForgiving(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/a/b/c", "/a/b/c"},
		{"a/b/c", "/a/b/c"},
		{"///a//b/", "/a/b"},
		{"", "/"},
		{"/", "/"},
	}
	for _, c := range cases {
		got := Parse(c.in).String()
		if got != c.want {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Parse("/a/b").Equal(Parse("a/b/")) {
		t.Fatal("expected equal paths to compare equal")
	}
	if Parse("/a/b").Equal(Parse("/a/c")) {
		t.Fatal("expected different paths to compare unequal")
	}
}

func TestStartsWith(t *testing.T) {
	world := Parse("/world")
	if !Parse("/world/car/driver").StartsWith(world) {
		t.Fatal("expected /world/car/driver to start with /world")
	}
	if Parse("/unworldly").StartsWith(world) {
		t.Fatal("expected /unworldly to not start with /world")
	}
	if !Root().StartsWith(Root()) {
		t.Fatal("expected root to start with root")
	}
}

func TestHashDistinguishesBoundaries(t *testing.T) {
	a := Parse("/ab/c").Hash()
	b := Parse("/a/bc").Hash()
	if a == b {
		t.Fatal("expected part-boundary-sensitive hashing to differ")
	}
}

func TestHashStable(t *testing.T) {
	if Parse("/a/b").Hash() != Parse("a/b").Hash() {
		t.Fatal("expected equal paths to hash equal")
	}
}
