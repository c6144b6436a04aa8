package store

import (
	"sync"

	"github.com/tracehive/datastore/internal/entitypath"
	"github.com/tracehive/datastore/internal/histogram"
)

// pendingClear is a recorded clear event that must be re-applied to
// any component registered under a node after the clear happened
// (spec §4.5, §9): "new components appearing under a cleared subtree
// must also be cleared".
type pendingClear struct {
	RowID     RowID
	TimePoint TimePoint
}

// treeNode mirrors one path part of a logged entity path (spec §4.5).
// Children are created lazily with the same double-checked-locking
// pattern used throughout this store's tree structures: an RLock probe
// first, a Lock-and-recheck only on the (rare) miss.
type treeNode struct {
	part     string
	children map[string]*treeNode

	histograms map[string]*histogram.Histogram // per timeline
	components map[Key]struct{}
	pending    []pendingClear

	lock sync.RWMutex
}

func newTreeNode(part string) *treeNode {
	return &treeNode{part: part}
}

// findOrCreate descends parts from n, creating missing children.
func (n *treeNode) findOrCreate(parts []string) *treeNode {
	if len(parts) == 0 {
		return n
	}

	n.lock.RLock()
	child, ok := n.children[parts[0]]
	n.lock.RUnlock()
	if ok {
		return child.findOrCreate(parts[1:])
	}

	n.lock.Lock()
	if child, ok = n.children[parts[0]]; !ok {
		child = newTreeNode(parts[0])
		if n.children == nil {
			n.children = make(map[string]*treeNode)
		}
		n.children[parts[0]] = child
	}
	n.lock.Unlock()
	return child.findOrCreate(parts[1:])
}

// find descends parts from n without creating anything, returning nil
// if the path has never been logged.
func (n *treeNode) find(parts []string) *treeNode {
	if len(parts) == 0 {
		return n
	}
	n.lock.RLock()
	child, ok := n.children[parts[0]]
	n.lock.RUnlock()
	if !ok {
		return nil
	}
	return child.find(parts[1:])
}

// recordTime bumps n's per-timeline histogram for a single row.
func (n *treeNode) recordTime(timeline string, t int64) {
	n.lock.Lock()
	if n.histograms == nil {
		n.histograms = make(map[string]*histogram.Histogram)
	}
	h, ok := n.histograms[timeline]
	if !ok {
		h = histogram.New()
		n.histograms[timeline] = h
	}
	n.lock.Unlock()
	h.Increment(t, 1)
}

// histogramFor returns n's histogram for timeline, if any rows have
// ever been recorded on it.
func (n *treeNode) histogramFor(timeline string) (*histogram.Histogram, bool) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	h, ok := n.histograms[timeline]
	return h, ok
}

// unrecordTime undoes recordTime for a dropped row (GC).
func (n *treeNode) unrecordTime(timeline string, t int64) {
	n.lock.RLock()
	h, ok := n.histograms[timeline]
	n.lock.RUnlock()
	if ok {
		h.Decrement(t, 1)
	}
}

// noteComponent records that component d has been observed at n
// itself (not its subtree). Returns true the first time this
// component is seen at n.
func (n *treeNode) noteComponent(d ComponentDescriptor) bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.components == nil {
		n.components = make(map[Key]struct{})
	}
	k := d.Key()
	if _, ok := n.components[k]; ok {
		return false
	}
	n.components[k] = struct{}{}
	return true
}

// observedComponents returns a snapshot of the components seen at n.
func (n *treeNode) observedComponents() []ComponentDescriptor {
	n.lock.RLock()
	defer n.lock.RUnlock()
	out := make([]ComponentDescriptor, 0, len(n.components))
	for k := range n.components {
		out = append(out, k.Descriptor())
	}
	return out
}

// addPendingClear records a clear event so components registered at n
// after this point still receive the empty cell (spec §4.5, §9).
func (n *treeNode) addPendingClear(id RowID, tp TimePoint) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.pending = append(n.pending, pendingClear{RowID: id, TimePoint: tp})
}

// pendingClears returns a snapshot of n's recorded clears.
func (n *treeNode) pendingClears() []pendingClear {
	n.lock.RLock()
	defer n.lock.RUnlock()
	out := make([]pendingClear, len(n.pending))
	copy(out, n.pending)
	return out
}

// isEmpty reports whether n has no observed components, no children,
// and a zero total histogram count across every timeline — the
// condition under which purge_empty_tables may prune it (spec §4.7).
func (n *treeNode) isEmpty() bool {
	n.lock.RLock()
	defer n.lock.RUnlock()
	if len(n.components) > 0 || len(n.children) > 0 {
		return false
	}
	for _, h := range n.histograms {
		if h.TotalCount() > 0 {
			return false
		}
	}
	return true
}

// entityTree is the store's index of every entity path ever logged
// (spec §4.5). The root node represents the root entity path "/".
type entityTree struct {
	root *treeNode
}

func newEntityTree() *entityTree {
	return &entityTree{root: newTreeNode("")}
}

// Register ensures path's node chain exists (idempotent) and returns
// the leaf node.
func (t *entityTree) Register(path entitypath.Path) *treeNode {
	return t.root.findOrCreate(path.Parts())
}

// Chain returns every node from the root down to path's node
// (creating missing ones), in order. Used to collect pending clears
// recorded on any ancestor of a newly-registered component.
func (t *entityTree) Chain(path entitypath.Path) []*treeNode {
	parts := path.Parts()
	chain := make([]*treeNode, 0, len(parts)+1)
	node := t.root
	chain = append(chain, node)
	for _, part := range parts {
		node = node.findOrCreate([]string{part})
		chain = append(chain, node)
	}
	return chain
}

// Find returns path's node, or nil if the path has never been logged
// (IsLoggedEntity / IsKnownEntity distinction lives one layer up, at
// the Store, which also consults the node's observed components).
func (t *entityTree) Find(path entitypath.Path) *treeNode {
	return t.root.find(path.Parts())
}

// RecordRow bumps the histogram of path's node and every ancestor
// (including root) for each timeline in tp — per-subtree totals are
// rollups, so a leaf event must be visible at every containing subtree
// (spec §8 invariant 5).
func (t *entityTree) RecordRow(path entitypath.Path, tp TimePoint) {
	parts := path.Parts()
	node := t.root
	for timeline, ts := range tp {
		node.recordTime(timeline, ts)
	}
	for _, part := range parts {
		node.lock.RLock()
		child := node.children[part]
		node.lock.RUnlock()
		if child == nil {
			// Register should have run first; defensive no-op.
			return
		}
		node = child
		for timeline, ts := range tp {
			node.recordTime(timeline, ts)
		}
	}
}

// Prune removes path's node, and any now-empty ancestor, from the
// tree, provided each is isEmpty (spec §4.7: purge_empty_tables).
// Stops as soon as it reaches a non-empty ancestor or the root.
func (t *entityTree) Prune(path entitypath.Path) {
	parts := path.Parts()
	chain := make([]*treeNode, 0, len(parts)+1)
	chain = append(chain, t.root)
	node := t.root
	for _, part := range parts {
		node.lock.RLock()
		child := node.children[part]
		node.lock.RUnlock()
		if child == nil {
			return
		}
		chain = append(chain, child)
		node = child
	}

	for i := len(chain) - 1; i > 0; i-- {
		leaf := chain[i]
		if !leaf.isEmpty() {
			return
		}
		parent := chain[i-1]
		parent.lock.Lock()
		delete(parent.children, leaf.part)
		parent.lock.Unlock()
	}
}

// UnrecordRow is RecordRow's inverse, used by GC when a row is
// dropped.
func (t *entityTree) UnrecordRow(path entitypath.Path, tp TimePoint) {
	parts := path.Parts()
	node := t.root
	for timeline, ts := range tp {
		node.unrecordTime(timeline, ts)
	}
	for _, part := range parts {
		node.lock.RLock()
		child := node.children[part]
		node.lock.RUnlock()
		if child == nil {
			return
		}
		node = child
		for timeline, ts := range tp {
			node.unrecordTime(timeline, ts)
		}
	}
}
