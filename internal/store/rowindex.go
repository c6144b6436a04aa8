package store

import "github.com/tracehive/datastore/internal/entitypath"

// seriesKey identifies one (timeline, entity, component) triple: the
// row index's primary key (spec §4.4). Static rows use the reserved
// staticTimeline key instead of a real timeline name.
type seriesKey struct {
	timeline   string
	entityHash entitypath.Hash
	component  Key
}

// staticTimeline is the sentinel timeline name under which static
// (empty time point) cells are indexed; it can never collide with a
// real timeline name parsed from ingestion, which always corresponds
// to an entry in a row's non-empty TimePoint.
const staticTimeline = ""

// rowIndex answers "which rows have a cell on this entity+component,
// and at what time?" for every timeline (spec §4.4). It also keeps the
// reverse row_id -> TimePoint map GC and tree updates need to unwind a
// dropped row consistently across every timeline it touched.
type rowIndex struct {
	series    map[seriesKey]*series
	reverse   map[RowID]TimePoint
	bucketCap int
}

func newRowIndex(bucketCap int) *rowIndex {
	return &rowIndex{
		series:    make(map[seriesKey]*series),
		reverse:   make(map[RowID]TimePoint),
		bucketCap: bucketCap,
	}
}

func (ri *rowIndex) seriesFor(key seriesKey) *series {
	s, ok := ri.series[key]
	if !ok {
		s = newSeries(ri.bucketCap)
		ri.series[key] = s
	}
	return s
}

// InsertRow indexes every cell of row r once per timeline it mentions
// (or once under the static key if r is static), and records the
// reverse mapping for r.RowID.
func (ri *rowIndex) InsertRow(r Row) {
	entityHash := r.EntityPath.Hash()
	ri.reverse[r.RowID] = r.TimePoint.Clone()

	if r.TimePoint.IsStatic() {
		for _, cell := range r.Cells {
			key := seriesKey{timeline: staticTimeline, entityHash: entityHash, component: cell.Descriptor.Key()}
			ri.seriesFor(key).insertStatic(r.RowID, cell.Batch)
		}
		return
	}

	for timeline, t := range r.TimePoint {
		for _, cell := range r.Cells {
			key := seriesKey{timeline: timeline, entityHash: entityHash, component: cell.Descriptor.Key()}
			ri.seriesFor(key).insertTemporal(t, r.RowID, cell.Batch)
		}
	}
}

// latestAtResult is the resolved value of a single-component lookup.
type latestAtResult struct {
	DataTime int64
	RowID    RowID
	Batch    ColumnBatch
	IsStatic bool
}

// LatestAt finds the cell at the greatest (time, row_id) with
// time <= t for (timeline, entityHash, component), preferring the
// static override if present (spec §4.6).
func (ri *rowIndex) LatestAt(timeline string, entityHash entitypath.Hash, component ComponentDescriptor, t int64) (latestAtResult, bool) {
	staticKey := seriesKey{timeline: staticTimeline, entityHash: entityHash, component: component.Key()}
	if s, ok := ri.series[staticKey]; ok && s.staticBucket != nil && s.staticBucket.len() > 0 {
		b := s.staticBucket
		return latestAtResult{RowID: b.rowIDs[0], Batch: b.columnBatch[0], IsStatic: true}, true
	}

	key := seriesKey{timeline: timeline, entityHash: entityHash, component: component.Key()}
	s, ok := ri.series[key]
	if !ok || len(s.buckets) == 0 {
		return latestAtResult{}, false
	}

	bi := s.bucketIndexForTime(t)
	for bi >= 0 {
		b := s.buckets[bi]
		if idx := b.latestAtOrBefore(t); idx >= 0 {
			return latestAtResult{DataTime: b.timeColumn[idx], RowID: b.rowIDs[idx], Batch: b.columnBatch[idx]}, true
		}
		bi--
	}
	return latestAtResult{}, false
}

// rangeEntry is one row in the primary timeline's range result before
// secondary resolution. Batch is the primary's own cell at this exact
// row, captured directly rather than re-resolved, so two rows sharing
// an identical timestamp never get confused with each other.
type rangeEntry struct {
	Time  int64
	RowID RowID
	Batch ColumnBatch
}

// RangeRows returns every (time, row_id, batch) triple in [tmin, tmax]
// on the primary (timeline, entityHash, component) series, ascending.
func (ri *rowIndex) RangeRows(timeline string, entityHash entitypath.Hash, component ComponentDescriptor, tmin, tmax int64) []rangeEntry {
	key := seriesKey{timeline: timeline, entityHash: entityHash, component: component.Key()}
	s, ok := ri.series[key]
	if !ok {
		return nil
	}

	var out []rangeEntry
	for _, b := range s.buckets {
		b.ensureSorted()
		if b.len() == 0 || b.maxTime() < tmin || b.minTime() > tmax {
			continue
		}
		for i := 0; i < b.len(); i++ {
			if b.timeColumn[i] < tmin || b.timeColumn[i] > tmax {
				continue
			}
			out = append(out, rangeEntry{Time: b.timeColumn[i], RowID: b.rowIDs[i], Batch: b.columnBatch[i]})
		}
	}
	return out
}

// RemoveReverse deletes id's reverse TimePoint mapping (GC, after the
// row's last cell has been dropped from every series).
func (ri *rowIndex) RemoveReverse(id RowID) (TimePoint, bool) {
	tp, ok := ri.reverse[id]
	if ok {
		delete(ri.reverse, id)
	}
	return tp, ok
}
