package store

import (
	"sync"

	"github.com/tracehive/datastore/internal/entitypath"
)

// LatestAtResult is the resolved answer to a latest-at query (spec
// §4.6, §6): the primary's resolved data time and row_id, plus one
// optional cell per requested component (primary first, then
// secondaries in request order).
type LatestAtResult struct {
	DataTime int64
	RowID    RowID
	Static   bool
	Cells    []ColumnBatch // Cells[i] is nil when that component had no value
}

// latestAtQuery resolves (timeline, t, entityPath, primary, secondaries...)
// (spec §4.6). It returns ok=false if the primary component has no
// value at or before t on this entity/timeline (a static cell always
// counts). Secondaries are resolved independently and may be nil even
// on success.
func (ri *rowIndex) latestAtQuery(timeline string, t int64, path entitypath.Path, primary ComponentDescriptor, secondaries []ComponentDescriptor) (LatestAtResult, bool) {
	hash := path.Hash()

	primaryRes, ok := ri.LatestAt(timeline, hash, primary, t)
	if !ok {
		return LatestAtResult{}, false
	}

	cells := make([]ColumnBatch, 1+len(secondaries))
	cells[0] = primaryRes.Batch
	for i, sec := range secondaries {
		if secRes, ok := ri.LatestAt(timeline, hash, sec, t); ok {
			cells[i+1] = secRes.Batch
		}
	}

	dataTime := primaryRes.DataTime
	if primaryRes.IsStatic {
		dataTime = 0
	}

	return LatestAtResult{
		DataTime: dataTime,
		RowID:    primaryRes.RowID,
		Static:   primaryRes.IsStatic,
		Cells:    cells,
	}, true
}

// RangeResult is one yielded row of a range query (spec §4.6, §6).
type RangeResult struct {
	Time  int64
	RowID RowID
	Cells []ColumnBatch // Cells[i] is nil when that component had no value at this time
}

// RangeIterator is a lazy, non-restartable sequence of RangeResult,
// one per row on the primary timeline within [tmin, tmax] (spec §4.6,
// §5: "Query iterators are lazy and yield control between rows").
type RangeIterator struct {
	ri         *rowIndex
	timeline   string
	path       entitypath.Path
	components []ComponentDescriptor // components[0] is primary
	entries    []rangeEntry
	pos        int

	release     func()
	releaseOnce sync.Once
}

// Close releases the reader guard this iterator was constructed
// under, if it has not already been released by exhaustion (spec §5:
// "Queries are cancelled by dropping their iterator; no resources
// leak"). Safe to call more than once, and safe to omit if the
// iterator was drained to exhaustion via Next/Collect.
func (it *RangeIterator) Close() {
	if it.release == nil {
		return
	}
	it.releaseOnce.Do(it.release)
}

// rangeQuery returns a lazy iterator over every row in [tmin, tmax] on
// the primary (timeline, entityPath, components[0]) triple, resolving
// the remaining components by latest-at at each row's own time (spec
// §4.6: "Resolution rule for secondaries... take the latest-at value
// of that secondary... with time <= t").
func (ri *rowIndex) rangeQuery(timeline string, tmin, tmax int64, path entitypath.Path, components []ComponentDescriptor) *RangeIterator {
	if len(components) == 0 {
		return &RangeIterator{}
	}
	entries := ri.RangeRows(timeline, path.Hash(), components[0], tmin, tmax)
	return &RangeIterator{
		ri:         ri,
		timeline:   timeline,
		path:       path,
		components: components,
		entries:    entries,
	}
}

// Next returns the next row, or ok=false when the range is exhausted.
func (it *RangeIterator) Next() (RangeResult, bool) {
	if it.pos >= len(it.entries) {
		it.Close()
		return RangeResult{}, false
	}
	e := it.entries[it.pos]
	it.pos++

	hash := it.path.Hash()
	cells := make([]ColumnBatch, len(it.components))
	cells[0] = e.Batch
	for i := 1; i < len(it.components); i++ {
		if res, ok := it.ri.LatestAt(it.timeline, hash, it.components[i], e.Time); ok {
			cells[i] = res.Batch
		}
	}

	return RangeResult{Time: e.Time, RowID: e.RowID, Cells: cells}, true
}

// Collect drains it into a slice; mostly useful for tests and small
// result sets.
func (it *RangeIterator) Collect() []RangeResult {
	var out []RangeResult
	for {
		r, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}
