package core

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExportMode selects which records an export contains.
type ExportMode string

const (
	// ExportAll exports every record.
	ExportAll ExportMode = "all"
	// ExportIncomplete exports records with at least one missing field.
	ExportIncomplete ExportMode = "incomplete-only"
)

// FileToken is the mode's suffix in export file names.
func (m ExportMode) FileToken() string {
	if m == ExportIncomplete {
		return "missing"
	}
	return "all"
}

// ParseExportMode accepts "all", "missing", "incomplete" and "incomplete-only".
// An empty string means ExportAll.
func ParseExportMode(s string) (ExportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ExportAll, nil
	case "missing", "incomplete", "incomplete-only":
		return ExportIncomplete, nil
	default:
		return "", fmt.Errorf("%w: %q (use all or missing)", ErrInvalidExportMode, s)
	}
}

// ExportSet is what the codec serializes: the column order and one
// column-keyed value map per row. Record ids are not part of exported data.
type ExportSet struct {
	Columns []string
	Rows    []map[string]Cell
}

// FilterExport selects and copies records for export. The copies share no
// maps with the record store. It fails with ErrEmptyResult when nothing is
// selected so that no empty file gets written.
func FilterExport(ds *Dataset, mode ExportMode) (*ExportSet, error) {
	set := &ExportSet{Columns: ds.Header.Names()}

	for _, rec := range ds.Records {
		if mode == ExportIncomplete && !HasMissing(rec, ds.Header) {
			continue
		}
		row := make(map[string]Cell, len(ds.Header))
		for _, col := range ds.Header {
			row[col.Name] = rec.Get(col.Name)
		}
		set.Rows = append(set.Rows, row)
	}

	if len(set.Rows) == 0 {
		return nil, fmt.Errorf("%w (mode %s)", ErrEmptyResult, mode)
	}
	return set, nil
}

// DatasetBaseName strips directories and the final extension from an input
// file name: "reports/q1.data.xlsx" becomes "q1.data".
func DatasetBaseName(fileName string) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if base == "." || base == "/" {
		return "data_export"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" {
		return "data_export"
	}
	return base
}

// ExportFileName builds "<base>_<all|missing>.<ext>".
func ExportFileName(base string, mode ExportMode, ext string) string {
	return fmt.Sprintf("%s_%s.%s", base, mode.FileToken(), strings.TrimPrefix(ext, "."))
}
