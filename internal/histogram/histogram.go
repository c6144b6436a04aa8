// Package histogram implements a count-weighted multiset of int64 keys
// (spec §4.1): increment, total/range counts, and a lazy ordered range
// iterator, backed by a 20-level, 8-way branching tree over a 16-way
// dense leaf (3 address bits per inner level, 4 at the leaf, covering
// the full 64-bit key space).
//
// Inner nodes start sparse (a small sorted list) and promote to a
// dense 8-slot array once they hold more than sparseOverflow entries,
// bounding worst-case lookup at O(log8 N) while keeping memory low for
// the common case of clustered keys (bursts of nearby timestamps
// separated by long gaps).
package histogram

import "sort"

const (
	rootLevel    = 61
	leafLevel    = 1
	levelStep    = 3
	addrMask     = 0b111
	numChildren  = 8
	numLeafSlots = 16

	sparseOverflow = 32
)

func splitAddress(level uint, addr uint64) (top, bottom uint64) {
	top = (addr >> level) & addrMask
	bottom = addr & ((uint64(1) << level) - 1)
	return
}

// foldToOrdered maps a signed int64 key space onto an unsigned uint64
// space while preserving ordering, so the tree (which only deals in
// uint64 addresses) sees monotonic addresses for monotonic keys.
func foldToOrdered(key int64) uint64 {
	return uint64(key) ^ (1 << 63)
}

func unfoldFromOrdered(addr uint64) int64 {
	return int64(addr ^ (1 << 63))
}

// Range is an inclusive [Min, Max] range of int64 keys.
type Range struct {
	Min, Max int64
}

// Single returns the single-key range {k, k}.
func Single(k int64) Range { return Range{Min: k, Max: k} }

type rangeU64 struct{ min, max uint64 }

func (r rangeU64) contains(k uint64) bool { return r.min <= k && k <= r.max }

func (r rangeU64) intersects(o rangeU64) bool { return r.min <= o.max && o.min <= r.max }

// clipRange returns the intersection of a and b, assumed to overlap.
func clipRange(a, b rangeU64) rangeU64 {
	min := a.min
	if b.min > min {
		min = b.min
	}
	max := a.max
	if b.max < max {
		max = b.max
	}
	return rangeU64{min: min, max: max}
}

// Histogram is a count-weighted multiset of int64 keys.
type Histogram struct {
	root node
}

// node is the tagged union of the three representations a tree level
// can take: an overflowed inner node, a sparse inner node, or a dense
// leaf. Exactly one of the three pointers is non-nil.
type node struct {
	inner  *innerNode
	sparse *sparseNode
	dense  *denseNode
}

func nodeForLevel(level uint) node {
	if level == leafLevel {
		return node{dense: &denseNode{}}
	}
	return node{sparse: &sparseNode{}}
}

type innerNode struct {
	totalCount uint64
	children   [numChildren]*node
}

type sparseNode struct {
	// Sorted (relative address, count) pairs.
	addrs  []uint64
	counts []uint32
}

type denseNode struct {
	counts [numLeafSlots]uint32
}

// New returns an empty Histogram.
func New() *Histogram { return &Histogram{root: nodeForLevel(rootLevel)} }

// Increment bumps the count at key by delta, creating tree nodes
// lazily as needed.
func (h *Histogram) Increment(key int64, delta uint32) {
	h.root.increment(rootLevel, foldToOrdered(key), delta)
}

// Decrement reduces the count at key by delta (saturating at zero),
// used by garbage collection to unwind a dropped row's contribution to
// every ancestor subtree's histogram. It never removes tree structure;
// an emptied node simply reports a zero count from then on.
func (h *Histogram) Decrement(key int64, delta uint32) {
	h.root.decrement(rootLevel, foldToOrdered(key), delta)
}

// TotalCount returns the cardinality of the multiset (sum of all
// counts, not the number of distinct keys).
func (h *Histogram) TotalCount() uint64 {
	return h.root.totalCount()
}

// RangeCount returns the sum of counts for keys within r (inclusive).
func (h *Histogram) RangeCount(r Range) uint64 {
	if r.Min > r.Max {
		return 0
	}
	return h.root.rangeCount(rootLevel, rangeU64{min: foldToOrdered(r.Min), max: foldToOrdered(r.Max)})
}

// Iter returns a restartable iterator over (range, count) pairs whose
// key lies within r, in ascending key order. granularity coarsens the
// output: once a subtree's address span is at or below granularity,
// its contents are aggregated into a single (range, count) pair
// instead of being descended into key by key, and consecutive keys
// held in a sparse node that fall in the same granularity-aligned
// block are merged into one pair spanning the first to the last of
// them. Keys held in a 16-slot dense leaf are still reported one by
// one when granularity is below 16. A granularity of 0 or 1 preserves
// the finest-grained behavior (one entry per populated key).
func (h *Histogram) Iter(r Range, granularity uint64) *Iterator {
	if granularity < 1 {
		granularity = 1
	}
	return &Iterator{
		rng:         rangeU64{min: foldToOrdered(r.Min), max: foldToOrdered(r.Max)},
		granularity: granularity,
		stack: []frame{{
			level:   rootLevel,
			absAddr: 0,
			n:       &h.root,
			index:   0,
		}},
	}
}

func (n *node) increment(level uint, relAddr uint64, delta uint32) {
	switch {
	case n.inner != nil:
		n.inner.increment(level, relAddr, delta)
	case n.dense != nil:
		n.dense.increment(relAddr, delta)
	case n.sparse != nil:
		if promoted := n.sparse.increment(level, relAddr, delta); promoted != nil {
			n.sparse = nil
			n.inner = promoted
		}
	}
}

func (n *node) decrement(level uint, relAddr uint64, delta uint32) {
	switch {
	case n.inner != nil:
		n.inner.decrement(level, relAddr, delta)
	case n.dense != nil:
		n.dense.decrement(relAddr, delta)
	case n.sparse != nil:
		n.sparse.decrement(level, relAddr, delta)
	}
}

func (n *node) totalCount() uint64 {
	switch {
	case n.inner != nil:
		return n.inner.totalCount
	case n.dense != nil:
		return n.dense.totalCount()
	case n.sparse != nil:
		return n.sparse.totalCount()
	}
	return 0
}

func (n *node) rangeCount(level uint, r rangeU64) uint64 {
	switch {
	case n.inner != nil:
		return n.inner.rangeCount(level, r)
	case n.dense != nil:
		return n.dense.rangeCount(r)
	case n.sparse != nil:
		return n.sparse.rangeCount(r)
	}
	return 0
}

func (in *innerNode) increment(level uint, relAddr uint64, delta uint32) {
	childLevel := level - levelStep
	top, bottom := splitAddress(level, relAddr)
	child := in.children[top]
	if child == nil {
		nn := nodeForLevel(childLevel)
		child = &nn
		in.children[top] = child
	}
	child.increment(childLevel, bottom, delta)
	in.totalCount += uint64(delta)
}

func (in *innerNode) decrement(level uint, relAddr uint64, delta uint32) {
	childLevel := level - levelStep
	top, bottom := splitAddress(level, relAddr)
	child := in.children[top]
	if child == nil {
		return
	}
	child.decrement(childLevel, bottom, delta)
	d := uint64(delta)
	if d > in.totalCount {
		d = in.totalCount
	}
	in.totalCount -= d
}

func childSize(childLevel, level uint) uint64 {
	if childLevel == 0 {
		return numLeafSlots
	}
	return uint64(1) << level
}

func (in *innerNode) rangeCount(level uint, r rangeU64) uint64 {
	minChild := (r.min >> level) & addrMask

	if r.min == 0 && r.max >= (uint64(1)<<(level+levelStep))-1 {
		return in.totalCount
	}

	childLevel := level - levelStep
	size := childSize(childLevel, level)

	var total uint64
	for ci := uint64(0); ci < numChildren; ci++ {
		if minChild <= ci {
			if child := in.children[ci]; child != nil {
				total += child.rangeCount(childLevel, r)
			}
		}
		if r.max < size {
			break
		}
		r.min = saturatingSub(r.min, size)
		r.max = saturatingSub(r.max, size)
	}
	return total
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func (s *sparseNode) increment(level uint, relAddr uint64, delta uint32) *innerNode {
	idx := sort.Search(len(s.addrs), func(i int) bool { return s.addrs[i] >= relAddr })
	if idx < len(s.addrs) && s.addrs[idx] == relAddr {
		s.counts[idx] += delta
		return nil
	}

	if len(s.addrs) < sparseOverflow {
		s.addrs = append(s.addrs, 0)
		s.counts = append(s.counts, 0)
		copy(s.addrs[idx+1:], s.addrs[idx:])
		copy(s.counts[idx+1:], s.counts[idx:])
		s.addrs[idx] = relAddr
		s.counts[idx] = delta
		return nil
	}

	in := &innerNode{}
	for i, addr := range s.addrs {
		in.increment(level, addr, s.counts[i])
	}
	in.increment(level, relAddr, delta)
	return in
}

func (s *sparseNode) decrement(level uint, relAddr uint64, delta uint32) {
	idx := sort.Search(len(s.addrs), func(i int) bool { return s.addrs[i] >= relAddr })
	if idx < len(s.addrs) && s.addrs[idx] == relAddr {
		if delta > s.counts[idx] {
			delta = s.counts[idx]
		}
		s.counts[idx] -= delta
	}
}

func (s *sparseNode) totalCount() uint64 {
	var total uint64
	for _, c := range s.counts {
		total += uint64(c)
	}
	return total
}

func (s *sparseNode) rangeCount(r rangeU64) uint64 {
	var total uint64
	for i, addr := range s.addrs {
		if r.contains(addr) {
			total += uint64(s.counts[i])
		}
	}
	return total
}

func (d *denseNode) increment(relAddr uint64, delta uint32) {
	d.counts[relAddr] += delta
}

func (d *denseNode) decrement(relAddr uint64, delta uint32) {
	if delta > d.counts[relAddr] {
		delta = d.counts[relAddr]
	}
	d.counts[relAddr] -= delta
}

func (d *denseNode) totalCount() uint64 {
	var total uint64
	for _, c := range d.counts {
		total += uint64(c)
	}
	return total
}

func (d *denseNode) rangeCount(r rangeU64) uint64 {
	max := r.max
	if max > numLeafSlots-1 {
		max = numLeafSlots - 1
	}
	var total uint64
	for i := r.min; i <= max; i++ {
		total += uint64(d.counts[i])
	}
	return total
}

// Iterator walks a Histogram depth-first, yielding (range, count)
// pairs covering every populated key that intersects the query range, in
// ascending key order. It holds an explicit stack rather than relying
// on goroutine-based generators, so it can be paused and resumed
// cheaply and never leaks a goroutine if abandoned mid-iteration.
type Iterator struct {
	rng         rangeU64
	granularity uint64
	stack       []frame
}

type frame struct {
	level   uint
	absAddr uint64
	n       *node
	index   int
}

// Next returns the next (range, count) pair, or ok=false when
// exhausted.
func (it *Iterator) Next() (r Range, count uint64, ok bool) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]

		switch {
		case top.n.inner != nil:
			childLevel := top.level - levelStep
			size := childSize(childLevel, top.level)

			advanced := false
			for top.index < numChildren {
				absAddr := top.absAddr + size*uint64(top.index)
				childRange := rangeU64{min: absAddr, max: absAddr + (size - 1)}
				idx := top.index
				top.index++
				if !it.rng.intersects(childRange) {
					continue
				}
				child := top.n.inner.children[idx]
				if child == nil {
					continue
				}
				if size <= it.granularity {
					clipped := clipRange(childRange, it.rng)
					if count := child.rangeCount(childLevel, clipped); count > 0 {
						return Range{Min: unfoldFromOrdered(clipped.min), Max: unfoldFromOrdered(clipped.max)}, count, true
					}
					continue
				}
				it.stack = append(it.stack, frame{level: childLevel, absAddr: absAddr, n: child, index: 0})
				advanced = true
				break
			}
			if !advanced && top.index >= numChildren {
				it.stack = it.stack[:len(it.stack)-1]
			}

		case top.n.sparse != nil:
			s := top.n.sparse
			found := false
			for top.index < len(s.addrs) {
				relAddr, c := s.addrs[top.index], s.counts[top.index]
				absAddr := top.absAddr + relAddr
				if found && (!it.rng.contains(absAddr) || absAddr/it.granularity != foldToOrdered(r.Min)/it.granularity) {
					break
				}
				top.index++
				if c > 0 && it.rng.contains(absAddr) {
					if !found {
						found, r, count = true, Single(unfoldFromOrdered(absAddr)), 0
					}
					r.Max, count = unfoldFromOrdered(absAddr), count+uint64(c)
				}
			}
			if !found {
				it.stack = it.stack[:len(it.stack)-1]
				continue
			}
			return r, count, true

		case top.n.dense != nil:
			d := top.n.dense
			found := false
			for top.index < numLeafSlots {
				c := d.counts[top.index]
				absAddr := top.absAddr + uint64(top.index)
				top.index++
				if c > 0 && it.rng.contains(absAddr) {
					found = true
					r, count = Single(unfoldFromOrdered(absAddr)), uint64(c)
					break
				}
			}
			if !found {
				it.stack = it.stack[:len(it.stack)-1]
				continue
			}
			return r, count, true
		}
	}
	return Range{}, 0, false
}

// Collect drains it into a slice, mostly useful for tests.
func (it *Iterator) Collect() []KeyCount {
	var out []KeyCount
	for {
		r, c, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, KeyCount{Range: r, Count: c})
	}
}

// KeyCount is a single entry yielded by Iterator.Collect.
type KeyCount struct {
	Range Range
	Count uint64
}
