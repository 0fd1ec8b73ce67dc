package core

import "strings"

// IsMissing reports whether a cell counts as missing: absent, or blank once
// trimmed. Every completeness decision in the package goes through here.
func IsMissing(c Cell) bool {
	return !c.Valid || strings.TrimSpace(c.String) == ""
}

// MissingCount returns how many header columns of rec are missing.
func MissingCount(rec *Record, header Header) int {
	n := 0
	for _, col := range header {
		if IsMissing(rec.Get(col.Name)) {
			n++
		}
	}
	return n
}

// HasMissing reports whether rec has at least one missing column.
func HasMissing(rec *Record, header Header) bool {
	for _, col := range header {
		if IsMissing(rec.Get(col.Name)) {
			return true
		}
	}
	return false
}

// MissingFields lists rec's missing columns in header order. These are the
// fields a user may fill through Reconcile.
func MissingFields(rec *Record, header Header) []string {
	var fields []string
	for _, col := range header {
		if IsMissing(rec.Get(col.Name)) {
			fields = append(fields, col.Name)
		}
	}
	return fields
}
