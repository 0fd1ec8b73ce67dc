package core

import "math"

// ComputeStats derives a completeness snapshot from the record store.
// It has no side effects.
func ComputeStats(ds *Dataset) Stats {
	stats := Stats{
		TotalRows: len(ds.Records),
		Columns:   make([]ColumnStats, len(ds.Header)),
	}

	for i, col := range ds.Header {
		stats.Columns[i].Column = col.Name
	}

	for _, rec := range ds.Records {
		rowMissing := false
		for i, col := range ds.Header {
			if IsMissing(rec.Get(col.Name)) {
				stats.Columns[i].Missing++
				rowMissing = true
			}
		}
		if rowMissing {
			stats.MissingRows++
		}
	}

	for _, cs := range stats.Columns {
		if cs.Missing > stats.MaxColumnMissing {
			stats.MaxColumnMissing = cs.Missing
		}
	}

	stats.MissingPercent = missingPercent(stats.MissingRows, stats.TotalRows)
	stats.CompletePercent = 100 - stats.MissingPercent
	return stats
}

// missingPercent rounds half away from zero; 0 when there are no rows.
func missingPercent(missing, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(missing) / float64(total) * 100))
}

// ColumnScale returns a column's missing count relative to the worst column,
// as a percentage in [0, 100]. Used by chart consumers.
func (s Stats) ColumnScale(column string) float64 {
	if s.MaxColumnMissing == 0 {
		return 0
	}
	for _, cs := range s.Columns {
		if cs.Column == column {
			return float64(cs.Missing) / float64(s.MaxColumnMissing) * 100
		}
	}
	return 0
}
