package store

import (
	"errors"
	"testing"

	"github.com/tracehive/datastore/internal/entitypath"
	"github.com/tracehive/datastore/internal/storeconfig"
)

// floatsBatch is a minimal ColumnBatch used across these tests,
// standing in for the typed component values an external codec would
// normally supply (spec §1).
type floatsBatch struct{ values []float64 }

func (b floatsBatch) NumInstances() int      { return len(b.values) }
func (b floatsBatch) SizeBytes() int64       { return int64(len(b.values)) * 8 }
func (floatsBatch) DataTypeName() string     { return "float64" }

func newStore(t *testing.T) *Store {
	t.Helper()
	cfg := storeconfig.Default()
	cfg.IndexedBucketNumRows = 8
	return New(cfg)
}

func descr(name string) ComponentDescriptor { return ComponentDescriptor{Component: name} }

// S1 — basic insert/latest-at.
func TestScenarioS1BasicInsertLatestAt(t *testing.T) {
	st := newStore(t)
	a := entitypath.Parse("/a")
	pos := descr("pos")

	must(t, st.InsertRow(Row{
		RowID: FromParts(1, 0), EntityPath: a, TimePoint: TimePoint{"frame": 10},
		Cells: []Cell{{Descriptor: pos, Batch: floatsBatch{[]float64{1, 2}}}},
	}))
	must(t, st.InsertRow(Row{
		RowID: FromParts(2, 0), EntityPath: a, TimePoint: TimePoint{"frame": 20},
		Cells: []Cell{{Descriptor: pos, Batch: floatsBatch{[]float64{3, 4}}}},
	}))

	res, ok := st.LatestAt("frame", 15, a, pos)
	if !ok || res.DataTime != 10 || !res.RowID.Equal(FromParts(1, 0)) {
		t.Fatalf("latest_at(15) = %+v, ok=%v", res, ok)
	}
	if got := res.Cells[0].(floatsBatch).values; got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected cell %v", got)
	}

	res, ok = st.LatestAt("frame", 25, a, pos)
	if !ok || res.DataTime != 20 || !res.RowID.Equal(FromParts(2, 0)) {
		t.Fatalf("latest_at(25) = %+v, ok=%v", res, ok)
	}
}

// S2 — static override.
func TestScenarioS2StaticOverride(t *testing.T) {
	st := newStore(t)
	a := entitypath.Parse("/a")
	color := descr("color")

	must(t, st.InsertRow(Row{
		RowID: FromParts(3, 0), EntityPath: a, TimePoint: TimePoint{},
		Cells: []Cell{{Descriptor: color, Batch: floatsBatch{[]float64{255, 0, 0}}}},
	}))
	must(t, st.InsertRow(Row{
		RowID: FromParts(4, 0), EntityPath: a, TimePoint: TimePoint{"frame": 5},
		Cells: []Cell{{Descriptor: color, Batch: floatsBatch{[]float64{0, 255, 0}}}},
	}))

	res, ok := st.LatestAt("frame", 100, a, color)
	if !ok || !res.Static || !res.RowID.Equal(FromParts(3, 0)) {
		t.Fatalf("expected static row 3 to win, got %+v ok=%v", res, ok)
	}
	if got := res.Cells[0].(floatsBatch).values; got[0] != 255 {
		t.Fatalf("unexpected static cell %v", got)
	}
}

// S3 — range spans a clear.
func TestScenarioS3RangeSpansClear(t *testing.T) {
	st := newStore(t)
	x := entitypath.Parse("/x")
	v := descr("v")

	must(t, st.InsertRow(Row{
		RowID: st.NextRowID(), EntityPath: x, TimePoint: TimePoint{"frame": 1},
		Cells: []Cell{{Descriptor: v, Batch: floatsBatch{[]float64{10}}}},
	}))
	must(t, st.InsertRow(Row{
		RowID: st.NextRowID(), EntityPath: x, TimePoint: TimePoint{"frame": 3},
		Cells: []Cell{{Descriptor: v, Batch: floatsBatch{[]float64{20}}}},
	}))
	must(t, st.ClearComponents(x, TimePoint{"frame": 2}))

	it := st.Range("frame", 0, 10, x, v)
	got := it.Collect()
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(got), got)
	}
	if got[0].Time != 1 || got[1].Time != 2 || got[2].Time != 3 {
		t.Fatalf("unexpected time order: %+v", got)
	}
	if got[1].Cells[0] == nil || got[1].Cells[0].NumInstances() != 0 {
		t.Fatalf("expected empty cell at the clear, got %+v", got[1].Cells[0])
	}
	if got[0].Cells[0].(floatsBatch).values[0] != 10 || got[2].Cells[0].(floatsBatch).values[0] != 20 {
		t.Fatalf("unexpected surrounding cell values: %+v", got)
	}
}

// S6 — GC protects latest.
func TestScenarioS6GCProtectsLatest(t *testing.T) {
	st := newStore(t)
	e := entitypath.Parse("/e")
	v := descr("v")

	var ids []RowID
	for i := int64(0); i < 1000; i++ {
		id := st.NextRowID()
		ids = append(ids, id)
		must(t, st.InsertRow(Row{
			RowID: id, EntityPath: e, TimePoint: TimePoint{"frame": i},
			Cells: []Cell{{Descriptor: v, Batch: floatsBatch{[]float64{float64(i)}}}},
		}))
	}

	result := st.GC(GCOptions{Target: GCTarget{Everything: true}, ProtectLatest: 5})
	if len(result.DroppedRowIDs) != 995 {
		t.Fatalf("expected 995 rows dropped, got %d", len(result.DroppedRowIDs))
	}

	it := st.Range("frame", 0, 10000, e, v)
	survivors := it.Collect()
	if len(survivors) != 5 {
		t.Fatalf("expected 5 survivors, got %d", len(survivors))
	}
	for i, want := range ids[995:] {
		if !survivors[i].RowID.Equal(want) {
			t.Fatalf("survivor %d = %s, want %s", i, survivors[i].RowID, want)
		}
	}
}

// Invariant 1: uniqueness — a repeated row_id is rejected.
func TestInvariantRowIDUniqueness(t *testing.T) {
	st := newStore(t)
	a := entitypath.Parse("/a")
	p := descr("p")
	id := st.NextRowID()

	must(t, st.InsertRow(Row{RowID: id, EntityPath: a, TimePoint: TimePoint{"frame": 1},
		Cells: []Cell{{Descriptor: p, Batch: floatsBatch{[]float64{1}}}}}))

	err := st.InsertRow(Row{RowID: id, EntityPath: a, TimePoint: TimePoint{"frame": 2},
		Cells: []Cell{{Descriptor: p, Batch: floatsBatch{[]float64{2}}}}})
	if err == nil {
		t.Fatal("expected duplicate row_id to be rejected")
	}
	se, ok := err.(*StoreError)
	if !ok || se.Kind != ErrRowIDConflict {
		t.Fatalf("expected ErrRowIDConflict, got %v", err)
	}
}

// Invariant 4: clear propagation.
func TestInvariantClearPropagation(t *testing.T) {
	st := newStore(t)
	p := entitypath.Parse("/p")
	q := p.Child("q")
	comp := descr("c")

	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: q, TimePoint: TimePoint{"t": 1},
		Cells: []Cell{{Descriptor: comp, Batch: floatsBatch{[]float64{9}}}}}))

	must(t, st.ClearRecursive(p, TimePoint{"t": 2}))

	res, ok := st.LatestAt("t", 2, q, comp)
	if !ok || res.Cells[0] == nil || res.Cells[0].NumInstances() != 0 {
		t.Fatalf("expected empty cell after recursive clear, got %+v ok=%v", res, ok)
	}
}

// A recursive clear must still reach every component observed under
// its subtree after the clear, not just the first one (spec §4.5).
func TestInvariantClearPropagationMultipleComponents(t *testing.T) {
	st := newStore(t)
	p := entitypath.Parse("/p")
	q := p.Child("q")
	r := p.Child("r")
	compA := descr("a")
	compB := descr("b")

	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: q, TimePoint: TimePoint{"t": 1},
		Cells: []Cell{{Descriptor: compA, Batch: floatsBatch{[]float64{9}}}}}))

	must(t, st.ClearRecursive(p, TimePoint{"t": 2}))

	// compB never seen before the clear, on q (already known to the
	// clear) and r (a brand new entity under p's subtree).
	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: q, TimePoint: TimePoint{"t": 3},
		Cells: []Cell{{Descriptor: compB, Batch: floatsBatch{[]float64{1}}}}}))
	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: r, TimePoint: TimePoint{"t": 3},
		Cells: []Cell{{Descriptor: compA, Batch: floatsBatch{[]float64{1}}}}}))

	if res, ok := st.LatestAt("t", 2, q, compB); !ok || res.Cells[0] == nil || res.Cells[0].NumInstances() != 0 {
		t.Fatalf("expected q's newly-seen compB to receive the empty cell, got %+v ok=%v", res, ok)
	}
	if res, ok := st.LatestAt("t", 2, r, compA); !ok || res.Cells[0] == nil || res.Cells[0].NumInstances() != 0 {
		t.Fatalf("expected r's newly-seen compA to receive the empty cell, got %+v ok=%v", res, ok)
	}
}

// Invariant 5: histogram consistency.
func TestInvariantHistogramConsistency(t *testing.T) {
	st := newStore(t)
	root := entitypath.Parse("/r")
	child := root.Child("c")
	v := descr("v")

	for i := int64(0); i < 5; i++ {
		must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: child, TimePoint: TimePoint{"t": i},
			Cells: []Cell{{Descriptor: v, Batch: floatsBatch{[]float64{float64(i)}}}}}))
	}

	rootNode := st.tree.Find(root)
	if rootNode == nil || rootNode.histograms["t"].TotalCount() != 5 {
		t.Fatalf("expected root subtree histogram count 5, got node=%v", rootNode)
	}
}

// intsBatch is a second ColumnBatch type, distinct from floatsBatch,
// used to exercise the TypeMismatch check.
type intsBatch struct{ values []int64 }

func (b intsBatch) NumInstances() int  { return len(b.values) }
func (b intsBatch) SizeBytes() int64   { return int64(len(b.values)) * 8 }
func (intsBatch) DataTypeName() string { return "int64" }

// A cell's datatype must agree with the first-observed datatype for
// that (component, entity, timeline) triple (spec §7).
func TestTypeMismatchRejected(t *testing.T) {
	st := newStore(t)
	a := entitypath.Parse("/a")
	pos := descr("pos")

	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: a, TimePoint: TimePoint{"t": 1},
		Cells: []Cell{{Descriptor: pos, Batch: floatsBatch{[]float64{1}}}}}))

	err := st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: a, TimePoint: TimePoint{"t": 2},
		Cells: []Cell{{Descriptor: pos, Batch: intsBatch{[]int64{1}}}}})
	if err == nil {
		t.Fatal("expected TypeMismatch error, got nil")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Kind != ErrTypeMismatch {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}

	// A different entity is a different (component, entity, timeline)
	// triple and is free to use its own first-observed type.
	b := entitypath.Parse("/b")
	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: b, TimePoint: TimePoint{"t": 1},
		Cells: []Cell{{Descriptor: pos, Batch: intsBatch{[]int64{7}}}}}))
}

// Disabling static rows by configuration must actually reject them.
func TestEnableStaticRowsDisabled(t *testing.T) {
	cfg := storeconfig.Default()
	cfg.IndexedBucketNumRows = 8
	cfg.EnableStaticRows = false
	st := New(cfg)

	a := entitypath.Parse("/a")
	color := descr("color")

	err := st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: a, TimePoint: TimePoint{},
		Cells: []Cell{{Descriptor: color, Batch: floatsBatch{[]float64{1, 2, 3}}}}})
	if err == nil {
		t.Fatal("expected static row to be rejected, got nil error")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Kind != ErrInvalidRow {
		t.Fatalf("expected ErrInvalidRow, got %v", err)
	}

	// Temporal rows are unaffected.
	must(t, st.InsertRow(Row{RowID: st.NextRowID(), EntityPath: a, TimePoint: TimePoint{"t": 1},
		Cells: []Cell{{Descriptor: color, Batch: floatsBatch{[]float64{1, 2, 3}}}}}))
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
