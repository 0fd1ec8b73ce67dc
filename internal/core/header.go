package core

// header.go turns a raw grid into a Dataset.
//
// The first grid row is the header. Blank header cells are dropped, but every
// surviving column keeps its original position so data rows stay aligned with
// the named columns even when blank columns sit between them.

import (
	"fmt"
	"strings"
)

// ResolveHeader derives the header from the raw first row of the grid.
// Absent and blank cells are dropped; survivors keep their relative order and
// their original index. Names are trimmed. Two cells that resolve to the same
// name fail with ErrDuplicateHeader.
func ResolveHeader(firstRow []Cell) (Header, error) {
	header := make(Header, 0, len(firstRow))
	seen := make(map[string]int, len(firstRow))
	var dups []string

	for i, cell := range firstRow {
		if IsMissing(cell) {
			continue
		}
		name := strings.TrimSpace(cell.String)
		if prev, ok := seen[name]; ok {
			dups = append(dups, fmt.Sprintf("%q (columns %d and %d)", name, prev+1, i+1))
			continue
		}
		seen[name] = i
		header = append(header, Column{Name: name, Index: i})
	}

	if len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateHeader, strings.Join(dups, ", "))
	}
	return header, nil
}

// MaterializeRows converts data rows into records. Row i of rows becomes the
// record with ID i. Each column reads the cell at its original index; cells
// past the end of a short row are absent.
func MaterializeRows(header Header, rows [][]Cell) []*Record {
	records := make([]*Record, len(rows))
	for i, row := range rows {
		fields := make(map[string]Cell, len(header))
		for _, col := range header {
			if col.Index < len(row) {
				fields[col.Name] = row[col.Index]
			} else {
				fields[col.Name] = Null
			}
		}
		records[i] = &Record{ID: i, Fields: fields}
	}
	return records
}

// Load builds a Dataset from a decoded grid. name is the dataset base name
// used for export file naming.
func Load(name string, grid Grid) (*Dataset, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyDataset
	}

	header, err := ResolveHeader(grid[0])
	if err != nil {
		return nil, err
	}

	return &Dataset{
		Name:    name,
		Header:  header,
		Records: MaterializeRows(header, grid[1:]),
	}, nil
}
