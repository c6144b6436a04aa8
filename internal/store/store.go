// Package store implements the core in-memory, time-series,
// entity-component data store: bucketed columnar insertion and
// indexing, an entity tree with per-subtree time histograms, a
// latest-at/range query engine, garbage collection, and a log-message
// ingestion pipeline.
//
// The store is built for a single-writer, many-reader regime (see
// Store's method docs): all mutating calls must be externally
// serialized by the caller, while InsertRow, GC, and the ingestion
// pipeline themselves take the store's single writer lock. Readers
// (LatestAt, Range) share the read side of that lock, so they run
// concurrently with each other and wait while a writer holds it.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/tracehive/datastore/internal/entitypath"
	"github.com/tracehive/datastore/internal/histogram"
	"github.com/tracehive/datastore/internal/storeconfig"
	"github.com/tracehive/datastore/internal/storelog"
)

// Store is the top-level, in-memory entity-component data store
// (spec §1-§6).
type Store struct {
	mu sync.RWMutex

	config   storeconfig.Config
	rowIndex *rowIndex
	tree     *entityTree
	registry *Registry
	rowIDGen *RowIDGenerator

	entityPaths map[entitypath.Hash]entitypath.Path

	// appliedClears dedups pending-clear replay at the (clear event,
	// entity, component) granularity: a single ClearRecursive call
	// shares one pendingClear.RowID across every entity/component it
	// may still need to reach, so a map keyed only by RowID would mark
	// the whole clear "done" after its first replay anywhere in the
	// subtree. See applyPendingClearsLocked.
	appliedClears map[appliedClearKey]struct{}

	info       StoreInfo
	generation uint64 // bumped on every mutating call (spec §9: StoreGeneration-style cheap dirty-check)

	metrics *storeMetrics
}

// appliedClearKey identifies one (pending clear, entity, component)
// application for the dedup check in applyPendingClearsLocked.
type appliedClearKey struct {
	ClearID    RowID
	EntityHash entitypath.Hash
	Component  Key
}

// New constructs an empty Store from cfg (spec §6: "The store is
// constructed empty and discarded on shutdown" — there is no durable
// state to load).
func New(cfg storeconfig.Config) *Store {
	return &Store{
		config:        cfg,
		rowIndex:      newRowIndex(int(cfg.IndexedBucketNumRows)),
		tree:          newEntityTree(),
		registry:      NewRegistry(),
		rowIDGen:      NewRowIDGenerator(),
		entityPaths:   make(map[entitypath.Hash]entitypath.Path),
		appliedClears: make(map[appliedClearKey]struct{}),
		metrics:       newStoreMetrics(),
	}
}

// Generation returns a counter that increases on every mutation,
// cheap for callers (e.g. a UI layer) to poll instead of diffing
// state.
func (s *Store) Generation() uint64 {
	return atomic.LoadUint64(&s.generation)
}

// Info returns the most recent SetStoreInfo metadata (spec §6).
func (s *Store) Info() StoreInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// IsKnownEntity reports whether path (or an ancestor/descendant logging
// event) has ever caused a tree node to be created at path — including
// paths that exist only because a descendant was logged.
func (s *Store) IsKnownEntity(path entitypath.Path) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Find(path) != nil
}

// IsLoggedEntity reports whether a row was ever inserted directly at
// path (as opposed to path merely existing as an ancestor of some
// logged descendant).
func (s *Store) IsLoggedEntity(path entitypath.Path) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node := s.tree.Find(path)
	if node == nil {
		return false
	}
	return len(node.observedComponents()) > 0
}

// registerPath ensures path is known to the tree and recoverable from
// its hash (the tree key space). Caller must hold s.mu for writing.
func (s *Store) registerPath(path entitypath.Path) {
	s.tree.Register(path)
	s.entityPaths[path.Hash()] = path
}

func (s *Store) pathForHash(h entitypath.Hash) (entitypath.Path, bool) {
	p, ok := s.entityPaths[h]
	return p, ok
}

// InsertRow validates and inserts r (spec §3, §4.3, §4.4, §4.5). It is
// a mutating call: the caller must not call it concurrently with
// another InsertRow, GC, or ingestion call on the same Store (spec §5:
// single-writer regime), though it may run concurrently with readers.
func (s *Store) InsertRow(r Row) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rowIndex.reverse[r.RowID]; exists {
		return &StoreError{Kind: ErrRowIDConflict, Msg: "row_id " + r.RowID.String() + " already present"}
	}

	if r.TimePoint.IsStatic() && !s.config.EnableStaticRows {
		return &StoreError{Kind: ErrInvalidRow, Msg: "static rows are disabled by configuration"}
	}

	entityHash := r.EntityPath.Hash()
	timelines := r.TimePoint.Timelines()
	if r.TimePoint.IsStatic() {
		timelines = []string{staticTimeline}
	}
	for _, cell := range r.Cells {
		if cell.Batch == nil {
			continue
		}
		for _, timeline := range timelines {
			if err := s.registry.CheckType(cell.Descriptor, entityHash, timeline, cell.Batch.DataTypeName()); err != nil {
				return err
			}
		}
	}

	s.registerPath(r.EntityPath)
	chain := s.tree.Chain(r.EntityPath)
	node := chain[len(chain)-1]
	for _, cell := range r.Cells {
		if cell.Batch != nil {
			s.registry.EnsureRegistered(cell.Descriptor, cell.Batch)
		}
		if firstSeen := node.noteComponent(cell.Descriptor); firstSeen {
			for _, ancestor := range chain {
				s.applyPendingClearsLocked(r.EntityPath, ancestor, cell.Descriptor)
			}
		}
	}

	s.tree.RecordRow(r.EntityPath, r.TimePoint)
	s.rowIndex.InsertRow(r)

	atomic.AddUint64(&s.generation, 1)
	s.metrics.observeInsert(r)
	storelog.Debugf("inserted row %s at %s (%d cells)", r.RowID, r.EntityPath, len(r.Cells))
	return nil
}

// NextRowID mints a fresh row_id from this store's generator. Exposed
// so callers minting rows for a PathOp (clear) get a fresh, properly
// ordered id (spec's Open Question: "fresh row_ids always; remove the
// +1 reuse").
func (s *Store) NextRowID() RowID {
	return s.rowIDGen.Next()
}

// LatestAt resolves (timeline, t, entityPath, primary, secondaries...)
// (spec §4.6).
func (s *Store) LatestAt(timeline string, t int64, path entitypath.Path, primary ComponentDescriptor, secondaries ...ComponentDescriptor) (LatestAtResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowIndex.latestAtQuery(timeline, t, path, primary, secondaries)
}

// Range returns a lazy iterator over every row in [tmin, tmax] on the
// primary (timeline, entityPath, components[0]) triple (spec §4.6).
// The returned iterator holds a read-lock snapshot guard over the
// store until it is exhausted or Close is called (spec §5: "callers
// snapshot a reader guard before iterating").
func (s *Store) Range(timeline string, tmin, tmax int64, path entitypath.Path, components ...ComponentDescriptor) *RangeIterator {
	s.mu.RLock()
	it := s.rowIndex.rangeQuery(timeline, tmin, tmax, path, components)
	it.release = s.mu.RUnlock
	return it
}

// TimeHistogramRange returns a restartable iterator over the per-
// subtree time histogram rooted at path, for timeline, within r,
// aggregated to no finer than granularity (spec §9: "the histogram's
// range iterator takes a granularity parameter controlling the
// smallest reported range size, exposed to callers"). ok is false if
// path has never been logged or has no rows on timeline.
func (s *Store) TimeHistogramRange(path entitypath.Path, timeline string, r histogram.Range, granularity uint64) (it *histogram.Iterator, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node := s.tree.Find(path)
	if node == nil {
		return nil, false
	}
	h, ok := node.histogramFor(timeline)
	if !ok {
		return nil, false
	}
	return h.Iter(r, granularity), true
}

// GC runs one garbage-collection pass (spec §4.7).
func (s *Store) GC(opts GCOptions) GCResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := gcRun(s.rowIndex, s.tree, s.pathForHash, opts)
	if !opts.DryRun {
		atomic.AddUint64(&s.generation, 1)
		s.metrics.observeGC(result)
	}
	storelog.Infof("gc pass: dropped %d rows, freed %d bytes, cancelled=%v", len(result.DroppedRowIDs), result.BytesFreed, result.Cancelled)
	return result
}

// DefaultGCOptions builds GCOptions from the store's configured GC
// defaults (spec §6: "gc_defaults").
func (s *Store) DefaultGCOptions() GCOptions {
	return GCOptions{
		Target:           GCTarget{DropAtLeastFraction: s.config.GC.DropAtLeastFraction},
		ProtectLatest:    s.config.GC.ProtectLatest,
		PurgeEmptyTables: s.config.GC.PurgeEmptyTables,
		TimeBudget:       s.config.GC.TimeBudgetDuration(),
	}
}

// ClearComponents schedules an empty cell for every component
// currently observed at path, at a freshly minted row_id (spec §4.5).
func (s *Store) ClearComponents(path entitypath.Path, tp TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearComponentsLocked(path, tp)
}

func (s *Store) clearComponentsLocked(path entitypath.Path, tp TimePoint) error {
	node := s.tree.Find(path)
	if node == nil {
		return nil
	}

	id := s.rowIDGen.Next()
	cells := s.emptyCellsFor(node)
	if len(cells) == 0 {
		return nil
	}

	row := Row{RowID: id, EntityPath: path, TimePoint: tp, Cells: cells}
	s.registerPath(path)
	s.tree.RecordRow(path, tp)
	s.rowIndex.InsertRow(row)
	atomic.AddUint64(&s.generation, 1)
	return nil
}

// ClearRecursive records a pending clear on path's subtree node and
// applies ClearComponents to every component already observed under
// path (spec §4.5). Each touched entity gets its own freshly minted
// row_id, since one row_id may not appear at multiple entity paths.
func (s *Store) ClearRecursive(path entitypath.Path, tp TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.tree.Find(path)
	if node == nil {
		return nil
	}

	pendingID := s.rowIDGen.Next()
	node.addPendingClear(pendingID, tp.Clone())

	return s.clearSubtreeLocked(path, node, tp)
}

func (s *Store) clearSubtreeLocked(path entitypath.Path, node *treeNode, tp TimePoint) error {
	if err := s.clearComponentsLocked(path, tp); err != nil {
		return err
	}

	node.lock.RLock()
	children := make([]string, 0, len(node.children))
	for part := range node.children {
		children = append(children, part)
	}
	node.lock.RUnlock()

	for _, part := range children {
		node.lock.RLock()
		child := node.children[part]
		node.lock.RUnlock()
		childPath := path.Child(part)
		if err := s.clearSubtreeLocked(childPath, child, tp); err != nil {
			return err
		}
	}
	return nil
}

// emptyCellsFor builds one zero-instance cell per component observed
// at node, using each component's registered clone capability.
func (s *Store) emptyCellsFor(node *treeNode) []Cell {
	comps := node.observedComponents()
	cells := make([]Cell, 0, len(comps))
	for _, d := range comps {
		caps, ok := s.registry.Lookup(d)
		if !ok || caps.CloneEmptyCell == nil {
			continue
		}
		cells = append(cells, Cell{Descriptor: d, Batch: caps.CloneEmptyCell(nil)})
	}
	return cells
}

// applyPendingClearsLocked re-applies any clear recorded on path's node (or
// any ancestor) to a component the moment it is first observed there
// (spec §4.5, §9 "pending clears"). A single pendingClear's RowID is
// shared across every entity/component a recursive clear may still
// need to reach, so the "already applied" dedup check below is keyed
// by (clear, entity, component) rather than by that shared RowID —
// otherwise the first replay anywhere in the subtree would silently
// suppress every later one (spec §4.5: every newly-registered
// component must still receive its empty cell). Each individual
// replay also mints its own fresh row_id, since one row_id may not
// appear at more than one entity path.
func (s *Store) applyPendingClearsLocked(path entitypath.Path, node *treeNode, d ComponentDescriptor) {
	entityHash := path.Hash()
	for _, pc := range node.pendingClears() {
		key := appliedClearKey{ClearID: pc.RowID, EntityHash: entityHash, Component: d.Key()}
		if _, done := s.appliedClears[key]; done {
			continue
		}

		caps, ok := s.registry.Lookup(d)
		if !ok || caps.CloneEmptyCell == nil {
			continue
		}
		row := Row{
			RowID:      s.rowIDGen.Next(),
			EntityPath: path,
			TimePoint:  pc.TimePoint,
			Cells:      []Cell{{Descriptor: d, Batch: caps.CloneEmptyCell(nil)}},
		}
		s.rowIndex.InsertRow(row)
		s.appliedClears[key] = struct{}{}
	}
}
