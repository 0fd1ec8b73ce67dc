package core

import (
	"encoding/json"
	"strings"
)

// Cell is a single spreadsheet value. Valid is false when the cell is absent
// (null or undefined in the source workbook).
type Cell struct {
	String string
	Valid  bool
}

// Text returns a present cell holding s.
func Text(s string) Cell {
	return Cell{String: s, Valid: true}
}

// Null is the absent cell.
var Null = Cell{}

// MarshalJSON encodes absent cells as null and present cells as strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.String)
}

// UnmarshalJSON accepts null, strings, and scalar JSON values (numbers and
// booleans are kept in their literal text form).
func (c *Cell) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*c = Null
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Text(s)
		return nil
	}
	*c = Text(raw)
	return nil
}

// Grid is the decoded first sheet of a workbook: rows of positional cells.
// Rows may be ragged.
type Grid [][]Cell

// Column is a resolved header entry. Index is the column's position in the
// original, unfiltered first row of the grid.
type Column struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// Header is the ordered list of resolved columns. It is fixed at load time.
type Header []Column

// Names returns the column names in header order.
func (h Header) Names() []string {
	names := make([]string, len(h))
	for i, col := range h {
		names[i] = col.Name
	}
	return names
}

// Has reports whether name is one of the header's columns.
func (h Header) Has(name string) bool {
	for _, col := range h {
		if col.Name == name {
			return true
		}
	}
	return false
}

// Record is one logical row. ID is 0-based in original row order and never
// changes. Fields holds exactly one entry per header column.
type Record struct {
	ID     int             `json:"id"`
	Fields map[string]Cell `json:"fields"`
}

// Get returns the value for a column. Unknown columns read as absent.
func (r *Record) Get(name string) Cell {
	return r.Fields[name]
}

// Dataset is the state of one session: the resolved header and the record
// store. Every core operation takes it explicitly.
type Dataset struct {
	Name    string
	Header  Header
	Records []*Record
}

// Record returns the record with the given id, or nil.
func (ds *Dataset) Record(id int) *Record {
	if id >= 0 && id < len(ds.Records) && ds.Records[id].ID == id {
		return ds.Records[id]
	}
	for _, rec := range ds.Records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// ColumnStats holds the missing-cell count for one column.
type ColumnStats struct {
	Column  string `json:"column"`
	Missing int    `json:"missing"`
}

// Stats is a completeness snapshot of a dataset. It is derived data and is
// recomputed in full after every mutation.
type Stats struct {
	TotalRows        int           `json:"totalRows"`
	MissingRows      int           `json:"missingRows"`
	MissingPercent   int           `json:"missingPercent"`
	CompletePercent  int           `json:"completePercent"`
	Columns          []ColumnStats `json:"columns"`
	MaxColumnMissing int           `json:"maxColumnMissing"`
}

// FieldChange describes one field filled by Reconcile.
type FieldChange struct {
	Column   string `json:"column"`
	OldValue Cell   `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// ReconcileResult reports what Reconcile did to a record.
type ReconcileResult struct {
	RecordID int           `json:"recordId"`
	Applied  []FieldChange `json:"applied"`
	Skipped  []string      `json:"skipped,omitempty"`
}

// Changed reports whether any field was written.
func (r ReconcileResult) Changed() bool {
	return len(r.Applied) > 0
}
