package histogram

import (
	"reflect"
	"testing"
)

func TestDenseRun(t *testing.T) {
	h := New()
	var want []KeyCount
	for i := int64(0); i < 100; i++ {
		if h.TotalCount() != uint64(i) {
			t.Fatalf("TotalCount() = %d, want %d", h.TotalCount(), i)
		}
		if got := h.RangeCount(Range{Min: -10000, Max: 10000}); got != uint64(i) {
			t.Fatalf("RangeCount = %d, want %d", got, i)
		}
		h.Increment(i, 1)
		want = append(want, KeyCount{Range: Single(i), Count: 1})
	}

	got := h.Iter(Range{Min: minKey, Max: maxKey}, 1).Collect()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Iter mismatch:\ngot:  %v\nwant: %v", got, want)
	}

	n := 0
	it := h.Iter(Range{Min: minKey, Max: 9}, 1)
	for {
		if _, _, ok := it.Next(); !ok {
			break
		}
		n++
	}
	if n != 10 {
		t.Fatalf("bounded iter count = %d, want 10", n)
	}
}

func TestSparseRun(t *testing.T) {
	const inc, spacing = 2, 1_000_000
	h := New()
	var want []KeyCount
	for i := int64(0); i < 100; i++ {
		if h.TotalCount() != uint64(inc*i) {
			t.Fatalf("TotalCount() = %d, want %d", h.TotalCount(), inc*i)
		}
		key := i * spacing
		h.Increment(key, inc)
		want = append(want, KeyCount{Range: Single(key), Count: uint64(inc)})
	}

	got := h.Iter(Range{Min: minKey, Max: maxKey}, 1).Collect()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Iter mismatch:\ngot:  %v\nwant: %v", got, want)
	}
}

// S5 from spec §8: increment {10,20,30,40} with count 1; range_count(15..35) == 2.
func TestRangeCountScenarioS5(t *testing.T) {
	h := New()
	for _, k := range []int64{10, 20, 30, 40} {
		h.Increment(k, 1)
	}
	if got := h.RangeCount(Range{Min: 15, Max: 35}); got != 2 {
		t.Fatalf("RangeCount(15..35) = %d, want 2", got)
	}

	want := []KeyCount{
		{Range: Single(10), Count: 1},
		{Range: Single(20), Count: 1},
		{Range: Single(30), Count: 1},
		{Range: Single(40), Count: 1},
	}
	got := h.Iter(Range{Min: minKey, Max: maxKey}, 1).Collect()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Iter mismatch:\ngot:  %v\nwant: %v", got, want)
	}
}

func TestIteratorIsRestartable(t *testing.T) {
	h := New()
	for _, k := range []int64{1, 5, 9} {
		h.Increment(k, 1)
	}
	it := h.Iter(Range{Min: minKey, Max: maxKey}, 1)
	first := it.Collect()

	it2 := h.Iter(Range{Min: minKey, Max: maxKey}, 1)
	second := it2.Collect()

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected independent iterators to agree: %v vs %v", first, second)
	}
}

// TestIterGranularityAggregates checks that a coarse granularity folds
// nearby keys into one (range, count) pair instead of one per key,
// while the total count across all pairs is unaffected.
func TestIterGranularityAggregates(t *testing.T) {
	h := New()
	keys := []int64{100, 101, 102, 103, 5000}
	for _, k := range keys {
		h.Increment(k, 1)
	}

	fine := h.Iter(Range{Min: minKey, Max: maxKey}, 1).Collect()
	if len(fine) != len(keys) {
		t.Fatalf("fine-grained Iter produced %d entries, want %d", len(fine), len(keys))
	}

	coarse := h.Iter(Range{Min: minKey, Max: maxKey}, 8).Collect()
	if len(coarse) >= len(fine) {
		t.Fatalf("coarse Iter (granularity 8) produced %d entries, want fewer than fine-grained's %d", len(coarse), len(fine))
	}

	var total uint64
	for _, kc := range coarse {
		if kc.Range.Min > kc.Range.Max {
			t.Fatalf("coarse entry has inverted range: %+v", kc.Range)
		}
		total += kc.Count
	}
	if want := uint64(len(keys)); total != want {
		t.Fatalf("coarse Iter total count = %d, want %d", total, want)
	}
}

const (
	minKey = int64(-1 << 62)
	maxKey = int64(1<<62 - 1)
)
