package store

import "github.com/tracehive/datastore/internal/entitypath"

// StoreInfo is the metadata carried by a SetStoreInfo message (spec
// §6). It has no row effect; the store simply remembers the most
// recent one.
type StoreInfo struct {
	StoreID       string
	StoreSource   string
	StartedAt     int64
	ApplicationID string
}

// LogMsg is one message from the ingestion stream (spec §6, §8): a
// store-metadata announcement, or a table of rows to insert.
type LogMsg struct {
	SetStoreInfo *SetStoreInfoMsg
	ColumnarMsg  *ColumnarMsg
}

// SetStoreInfoMsg carries store-level metadata; it has no row effect.
type SetStoreInfoMsg struct {
	RowID RowID
	Info  StoreInfo
}

// ColumnarMsg carries a table of rows to insert.
type ColumnarMsg struct {
	StoreID string
	Table   Table
}

// Table is a named batch of rows, as decoded by an external column
// codec (spec §1: typed component definitions and codecs are out of
// scope here — we only consume already-decoded rows).
type Table struct {
	TableID string
	Rows    []IngestRow
}

// IngestRow is a row as it arrives from the wire, before it is
// validated and turned into a store Row. ClearIsRecursive, if non-nil,
// selects between ClearRecursive (true) and ClearComponents (false);
// when it is nil, a reserved ClearIsRecursive cell among Cells is
// consulted instead (spec §4.8).
type IngestRow struct {
	RowID            RowID
	EntityPath       entitypath.Path
	TimePoint        TimePoint
	Cells            []Cell
	ClearIsRecursive *bool
}

// PathOpKind distinguishes the two clear operations (spec §4.5).
type PathOpKind int

const (
	PathOpNone PathOpKind = iota
	PathOpClearComponents
	PathOpClearRecursive
)

// PathOp is the clear operation derived from a row's ClearIsRecursive
// cell (spec §4.8).
type PathOp struct {
	Kind       PathOpKind
	Path       entitypath.Path
	RowID      RowID
	TimePoint  TimePoint
}

// ingestWarning is a non-fatal problem logged and skipped during
// ingestion (spec §4.8, §7: "malformed rows are skipped with a logged
// warning").
type ingestWarning struct {
	RowID RowID
	Msg   string
}

func (w ingestWarning) String() string { return w.Msg }
