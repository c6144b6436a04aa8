package store

import (
	"sync/atomic"

	"github.com/tracehive/datastore/internal/storelog"
)

// clearIsRecursiveComponent is the reserved component name ingestion
// looks for to decide whether a row also carries a clear instruction
// (spec §4.8, §6). Its cell is not stored as a regular component; it
// is consumed and stripped before the row is inserted.
const clearIsRecursiveComponent = "ClearIsRecursive"

// Ingest processes one LogMsg end to end (spec §4.8): store-info
// messages update metadata with no row effect; columnar messages are
// split into rows, each validated, registered, inserted, and checked
// for a trailing clear instruction. Malformed rows are skipped with a
// logged warning rather than aborting the whole table (spec §7).
func (s *Store) Ingest(msg LogMsg) {
	if msg.SetStoreInfo != nil {
		s.mu.Lock()
		s.info = msg.SetStoreInfo.Info
		atomic.AddUint64(&s.generation, 1)
		s.mu.Unlock()
		return
	}

	if msg.ColumnarMsg == nil {
		return
	}

	for _, ir := range msg.ColumnarMsg.Table.Rows {
		s.ingestRow(ir)
	}
}

// ingestRow inserts one wire row, then applies any clear instruction
// it carries (spec §4.8 step 4).
func (s *Store) ingestRow(ir IngestRow) {
	storeCells, clearFlag := splitClearCell(ir.Cells)

	row := Row{
		RowID:      ir.RowID,
		EntityPath: ir.EntityPath,
		TimePoint:  ir.TimePoint,
		Cells:      storeCells,
	}

	if err := s.InsertRow(row); err != nil {
		storelog.Warnf("skipping row %s at %s: %s", ir.RowID, ir.EntityPath, err.Error())
		return
	}

	recursive := ir.ClearIsRecursive
	if recursive == nil {
		recursive = clearFlag
	}
	if recursive == nil {
		return
	}

	// ClearComponents/ClearRecursive each mint their own fresh row_id
	// (spec §9 Open Questions: never reuse row_id+1).
	if *recursive {
		if err := s.ClearRecursive(ir.EntityPath, ir.TimePoint); err != nil {
			storelog.Warnf("clear-recursive at %s failed: %s", ir.EntityPath, err.Error())
		}
		return
	}
	if err := s.ClearComponents(ir.EntityPath, ir.TimePoint); err != nil {
		storelog.Warnf("clear-components at %s failed: %s", ir.EntityPath, err.Error())
	}
}

// splitClearCell pulls the reserved ClearIsRecursive cell, if present,
// out of cells and interprets its payload as a bool. A cell whose
// payload is missing or unreadable is treated as "not recursive"; a
// row without the cell returns a nil flag and carries no clear.
func splitClearCell(cells []Cell) ([]Cell, *bool) {
	out := make([]Cell, 0, len(cells))
	var flag *bool
	for _, c := range cells {
		if c.Descriptor.Component == clearIsRecursiveComponent {
			v := false
			if b, ok := c.Batch.(boolBatch); ok {
				v = b.value
			}
			flag = &v
			continue
		}
		out = append(out, c)
	}
	return out, flag
}

// boolBatch is the ColumnBatch implementation ClearIsRecursive cells
// are expected to carry.
type boolBatch struct{ value bool }

func (boolBatch) NumInstances() int      { return 1 }
func (boolBatch) SizeBytes() int64       { return 1 }
func (boolBatch) DataTypeName() string   { return "bool" }

// NewBoolBatch wraps v as a ColumnBatch suitable for a
// ClearIsRecursive cell.
func NewBoolBatch(v bool) ColumnBatch { return boolBatch{value: v} }
