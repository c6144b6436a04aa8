package store

import "github.com/tracehive/datastore/internal/entitypath"

// Cell is one (component, value) pair attached to a Row.
type Cell struct {
	Descriptor ComponentDescriptor
	Batch      ColumnBatch
}

// Row is the atomic unit of insertion (spec §3): one RowID, one
// entity, a TimePoint on zero-or-more timelines, and an ordered,
// deduplicated set of cells.
type Row struct {
	RowID      RowID
	EntityPath entitypath.Path
	TimePoint  TimePoint
	Cells      []Cell
}

// Validate checks the structural invariants ingestion must enforce
// before a row is ever inserted (spec §3, §7): no component descriptor
// may repeat within one row.
func (r Row) Validate() error {
	seen := make(map[Key]struct{}, len(r.Cells))
	for _, c := range r.Cells {
		k := c.Descriptor.Key()
		if _, dup := seen[k]; dup {
			return &StoreError{Kind: ErrInvalidRow, Msg: "duplicate component descriptor " + c.Descriptor.String() + " in one row"}
		}
		seen[k] = struct{}{}
	}
	return nil
}

// CellFor returns the cell for descriptor d, if the row carries one.
func (r Row) CellFor(d ComponentDescriptor) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Descriptor.Key() == d.Key() {
			return c, true
		}
	}
	return Cell{}, false
}
