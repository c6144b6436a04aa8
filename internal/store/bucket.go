package store

import "sort"

// bucket is a capped, contiguous slice of one (timeline, entity,
// component) series (spec §4.3). It exposes three parallel,
// row-aligned arrays. Insertion is append-only in the common case
// (rows mostly arrive in time order, mirroring the append-mostly
// buffer chain a time-series store like this is usually built from);
// out-of-order inserts merely clear the sorted flag so a query can
// trigger an on-demand sort instead of paying for one on every write.
type bucket struct {
	timeColumn  []int64
	rowIDs      []RowID
	columnBatch []ColumnBatch
	sorted      bool
}

func newBucket(capHint int) *bucket {
	return &bucket{
		timeColumn:  make([]int64, 0, capHint),
		rowIDs:      make([]RowID, 0, capHint),
		columnBatch: make([]ColumnBatch, 0, capHint),
	}
}

func (b *bucket) len() int { return len(b.timeColumn) }

// append adds a row to the tail of the bucket. It preserves sortedness
// when the new entry does not violate (time, row_id) ascending order;
// otherwise it drops the sorted flag.
func (b *bucket) append(t int64, id RowID, batch ColumnBatch) {
	n := b.len()
	if b.sorted && n > 0 {
		lastT, lastID := b.timeColumn[n-1], b.rowIDs[n-1]
		if t < lastT || (t == lastT && id.Less(lastID)) {
			b.sorted = false
		}
	} else if n == 0 {
		b.sorted = true
	}
	b.timeColumn = append(b.timeColumn, t)
	b.rowIDs = append(b.rowIDs, id)
	b.columnBatch = append(b.columnBatch, batch)
}

// ensureSorted sorts the bucket's three parallel arrays in-place by
// (time asc, row_id asc) if the sorted flag is not already set.
func (b *bucket) ensureSorted() {
	if b.sorted {
		return
	}
	idx := make([]int, b.len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, c := idx[i], idx[j]
		if b.timeColumn[a] != b.timeColumn[c] {
			return b.timeColumn[a] < b.timeColumn[c]
		}
		return b.rowIDs[a].Less(b.rowIDs[c])
	})

	nt := make([]int64, b.len())
	nr := make([]RowID, b.len())
	nb := make([]ColumnBatch, b.len())
	for i, j := range idx {
		nt[i] = b.timeColumn[j]
		nr[i] = b.rowIDs[j]
		nb[i] = b.columnBatch[j]
	}
	b.timeColumn, b.rowIDs, b.columnBatch = nt, nr, nb
	b.sorted = true
}

// minTime/maxTime assume the bucket is sorted; call ensureSorted first.
func (b *bucket) minTime() int64 { return b.timeColumn[0] }
func (b *bucket) maxTime() int64 { return b.timeColumn[b.len()-1] }

// splitAtMedian splits b in place at its median time, returning the
// tail as a new bucket positioned immediately after b (spec §4.3).
// Row-id uniqueness and the (time, row_id) tie-break ordering are
// preserved across the split since both halves stay internally
// sorted.
func (b *bucket) splitAtMedian() *bucket {
	b.ensureSorted()
	mid := b.len() / 2

	tail := newBucket(len(b.timeColumn) - mid)
	tail.timeColumn = append(tail.timeColumn, b.timeColumn[mid:]...)
	tail.rowIDs = append(tail.rowIDs, b.rowIDs[mid:]...)
	tail.columnBatch = append(tail.columnBatch, b.columnBatch[mid:]...)
	tail.sorted = true

	b.timeColumn = b.timeColumn[:mid:mid]
	b.rowIDs = b.rowIDs[:mid:mid]
	b.columnBatch = b.columnBatch[:mid:mid]

	return tail
}

// dropHead removes the first n rows of the bucket (oldest-first, used
// by GC).
func (b *bucket) dropHead(n int) {
	if n >= b.len() {
		b.timeColumn = b.timeColumn[:0]
		b.rowIDs = b.rowIDs[:0]
		b.columnBatch = b.columnBatch[:0]
		return
	}
	b.timeColumn = append(b.timeColumn[:0], b.timeColumn[n:]...)
	b.rowIDs = append(b.rowIDs[:0], b.rowIDs[n:]...)
	b.columnBatch = append(b.columnBatch[:0], b.columnBatch[n:]...)
}

// sizeBytes approximates the bucket's heap footprint for GC sizing.
func (b *bucket) sizeBytes() int64 {
	var total int64
	total += int64(len(b.timeColumn)) * 8
	total += int64(len(b.rowIDs)) * 16
	for _, c := range b.columnBatch {
		if c != nil {
			total += c.SizeBytes()
		}
	}
	return total
}

// latestAtOrBefore returns the index of the row with the greatest
// (time, row_id) such that time <= t, or -1 if none qualifies. Assumes
// the bucket is sorted.
func (b *bucket) latestAtOrBefore(t int64) int {
	b.ensureSorted()
	// First index with timeColumn[i] > t.
	i := sort.Search(b.len(), func(i int) bool { return b.timeColumn[i] > t })
	if i == 0 {
		return -1
	}
	return i - 1
}

// series is the ordered list of buckets for one (timeline, entity,
// component) triple (spec §4.3, §4.4), plus the single static bucket
// that overrides all temporal rows for that triple.
type series struct {
	buckets      []*bucket // ordered by time range, ascending
	staticBucket *bucket   // rows with an empty TimePoint; at most bucketCap entries, practically always 0 or 1
	bucketCap    int
}

func newSeries(bucketCap int) *series {
	return &series{bucketCap: bucketCap}
}

// insertTemporal appends (t, id, batch) to the correct bucket,
// splitting on overflow (spec §4.3). It assumes rows are inserted in
// a single-writer regime so "the correct bucket" is simply the tail
// bucket unless this is the very first insert.
func (s *series) insertTemporal(t int64, id RowID, batch ColumnBatch) {
	if len(s.buckets) == 0 {
		s.buckets = append(s.buckets, newBucket(s.bucketCap))
	}
	tail := s.buckets[len(s.buckets)-1]
	tail.append(t, id, batch)
	if tail.len() > s.bucketCap {
		newTail := tail.splitAtMedian()
		s.buckets = append(s.buckets, newTail)
	}
}

// insertStatic sets/overwrites the static cell for this triple.
func (s *series) insertStatic(id RowID, batch ColumnBatch) {
	if s.staticBucket == nil {
		s.staticBucket = newBucket(1)
	}
	s.staticBucket.timeColumn = s.staticBucket.timeColumn[:0]
	s.staticBucket.rowIDs = s.staticBucket.rowIDs[:0]
	s.staticBucket.columnBatch = s.staticBucket.columnBatch[:0]
	s.staticBucket.append(0, id, batch)
}

// bucketIndexForTime returns the index into s.buckets whose time range
// may contain t (the last bucket whose minTime <= t, or 0).
func (s *series) bucketIndexForTime(t int64) int {
	idx := sort.Search(len(s.buckets), func(i int) bool {
		s.buckets[i].ensureSorted()
		return s.buckets[i].minTime() > t
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}
