package store

import (
	"time"

	"github.com/tracehive/datastore/internal/entitypath"
)

// GCTarget selects how much to drop (spec §4.7).
type GCTarget struct {
	// DropAtLeastFraction, if > 0, asks GC to free at least this
	// fraction of the store's current size in bytes.
	DropAtLeastFraction float64
	// Everything asks GC to drop every droppable row, ignoring
	// DropAtLeastFraction.
	Everything bool
}

// GCOptions configures one GC pass (spec §4.7).
type GCOptions struct {
	Target GCTarget
	// ProtectLatest keeps the N most recent rows of every
	// (entity, component) series from being dropped.
	ProtectLatest uint32
	// PurgeEmptyTables prunes now-empty entity-tree subtrees after
	// dropping their last row.
	PurgeEmptyTables bool
	// TimeBudget bounds wall-clock time spent in one GC call; zero
	// means unbounded. GC checks the budget after each bucket (spec
	// §5: "cooperatively chunked").
	TimeBudget time.Duration
	// DryRun computes what would be dropped without mutating the
	// store — the bucket-walk algorithm runs unchanged with the final
	// drop step skipped, useful for operators sizing retention policy
	// before committing to it.
	DryRun bool
}

// GCResult reports what one GC call did.
type GCResult struct {
	DroppedRowIDs []RowID
	BytesFreed    int64
	Cancelled     bool // true if TimeBudget elapsed before the target was met
}

// candidateSeries is a (key, *series) pair used to build a stable,
// round-robin walk order across every indexed triple (spec §4.7 step
// 2: "round-robining to avoid starving any one series").
type candidateSeries struct {
	key seriesKey
	s   *series
}

// rowTimeline identifies one row's histogram contribution on one
// timeline.
type rowTimeline struct {
	id       RowID
	timeline string
}

// gcRun runs one collection pass over ri using tree to keep per-subtree
// histograms and path registration consistent (spec §4.7). Static
// buckets are never collected: a static row overrides every temporal
// row for its triple for the lifetime of the store, matching spec §3
// ("destroyed only by the garbage collector or explicit clear" — GC
// here targets the bulk temporal case; clearing statics is an explicit
// clear, not a size-driven GC concern).
func gcRun(ri *rowIndex, tree *entityTree, pathOf func(entitypath.Hash) (entitypath.Path, bool), opts GCOptions) GCResult {
	deadline := time.Time{}
	if opts.TimeBudget > 0 {
		deadline = time.Now().Add(opts.TimeBudget)
	}

	targetBytes := int64(0)
	currentBytes := sizeInBytes(ri)
	if opts.Target.Everything {
		targetBytes = currentBytes
	} else if opts.Target.DropAtLeastFraction > 0 {
		targetBytes = int64(float64(currentBytes) * opts.Target.DropAtLeastFraction)
	}

	candidates := make([]candidateSeries, 0, len(ri.series))
	for k, s := range ri.series {
		if k.timeline == staticTimeline {
			continue
		}
		candidates = append(candidates, candidateSeries{key: k, s: s})
	}

	var result GCResult
	var freed int64
	// decremented tracks which (row, timeline) pairs have already had
	// their tree histogram contribution removed this pass: a row can own
	// cells in several (timeline, component) series simultaneously, but
	// its subtree-histogram contribution for a given timeline must only
	// be unwound once.
	decremented := make(map[rowTimeline]bool)

	for freed < targetBytes {
		if len(candidates) == 0 {
			break
		}
		progressedThisRound := false

		for i := 0; i < len(candidates) && freed < targetBytes; i++ {
			if !deadline.IsZero() && time.Now().After(deadline) {
				result.Cancelled = true
				return finalizeGC(result, freed)
			}

			c := candidates[i]
			droppedHere, bytesHere := dropOldestFrom(ri, tree, pathOf, c, opts, decremented)
			if len(droppedHere) > 0 {
				progressedThisRound = true
				freed += bytesHere
				result.DroppedRowIDs = append(result.DroppedRowIDs, droppedHere...)
			}
		}

		if !progressedThisRound {
			break
		}
	}

	return finalizeGC(result, freed)
}

func finalizeGC(result GCResult, freed int64) GCResult {
	result.BytesFreed = freed
	return result
}

// dropOldestFrom drops the oldest droppable bucket (or, failing that,
// the oldest droppable rows from the head of the oldest bucket) of one
// series, honoring ProtectLatest (spec §4.7 steps 3-4).
func dropOldestFrom(ri *rowIndex, tree *entityTree, pathOf func(entitypath.Hash) (entitypath.Path, bool), c candidateSeries, opts GCOptions, decremented map[rowTimeline]bool) ([]RowID, int64) {
	s := c.s
	if len(s.buckets) == 0 {
		return nil, 0
	}

	totalRows := 0
	for _, b := range s.buckets {
		totalRows += b.len()
	}
	protect := int(opts.ProtectLatest)
	droppable := totalRows - protect
	if droppable <= 0 {
		return nil, 0
	}

	first := s.buckets[0]
	n := first.len()
	wholeBucket := n <= droppable

	var dropCount int
	if wholeBucket {
		dropCount = n
	} else {
		dropCount = droppable
	}
	if dropCount <= 0 {
		return nil, 0
	}

	var dropped []RowID
	var bytesFreed int64
	path, hasPath := pathOf(c.key.entityHash)

	for i := 0; i < dropCount; i++ {
		id := first.rowIDs[i]
		batch := first.columnBatch[i]
		t := first.timeColumn[i]
		dropped = append(dropped, id)
		if batch != nil {
			bytesFreed += batch.SizeBytes()
		}
		bytesFreed += 8 + 16

		if opts.DryRun {
			continue
		}

		ri.RemoveReverse(id)
		dk := rowTimeline{id: id, timeline: c.key.timeline}
		if hasPath && !decremented[dk] {
			tree.UnrecordRow(path, TimePoint{c.key.timeline: t})
			decremented[dk] = true
		}
	}

	if opts.DryRun {
		return dropped, bytesFreed
	}

	first.dropHead(dropCount)
	if wholeBucket && len(s.buckets) > 1 {
		s.buckets = s.buckets[1:]
	} else if wholeBucket {
		s.buckets = s.buckets[:0]
	}

	if opts.PurgeEmptyTables && hasPath && len(s.buckets) == 0 {
		tree.Prune(path)
	}

	return dropped, bytesFreed
}

func sizeInBytes(ri *rowIndex) int64 {
	var total int64
	for _, s := range ri.series {
		for _, b := range s.buckets {
			total += b.sizeBytes()
		}
		if s.staticBucket != nil {
			total += s.staticBucket.sizeBytes()
		}
	}
	return total
}
