package core

import (
	"fmt"
	"sort"
	"strings"
)

// Reconcile merges user-supplied values into the missing fields of one record.
//
// For each (column, value) pair the value is trimmed; a non-empty value fills
// the column if it is currently missing. Blank values, unknown columns, and
// columns that already hold data are left untouched and listed in Skipped.
// Callers need not supply a value for every missing field.
//
// Reconcile never recomputes statistics; call ComputeStats afterwards.
// Applying the same values twice changes nothing the second time.
func Reconcile(ds *Dataset, recordID int, values map[string]string) (ReconcileResult, error) {
	rec := ds.Record(recordID)
	if rec == nil {
		return ReconcileResult{}, fmt.Errorf("%w: id %d", ErrRecordNotFound, recordID)
	}

	result := ReconcileResult{RecordID: recordID}

	// Walk in header order so results are deterministic.
	for _, col := range ds.Header {
		raw, ok := values[col.Name]
		if !ok {
			continue
		}
		value := strings.TrimSpace(raw)
		current := rec.Get(col.Name)
		if value == "" || !IsMissing(current) {
			result.Skipped = append(result.Skipped, col.Name)
			continue
		}
		rec.Fields[col.Name] = Text(value)
		result.Applied = append(result.Applied, FieldChange{
			Column:   col.Name,
			OldValue: current,
			NewValue: value,
		})
	}

	var unknown []string
	for name := range values {
		if !ds.Header.Has(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	result.Skipped = append(result.Skipped, unknown...)

	return result, nil
}
