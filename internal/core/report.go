package core

import (
	"fmt"
	"time"
)

// NotAvailable replaces missing values in printed reports.
const NotAvailable = "N/A"

// DefaultHeatmapRows is how many records the heatmap shows by default.
const DefaultHeatmapRows = 50

// ReportCell is one printed value.
type ReportCell struct {
	Text    string `json:"text"`
	Missing bool   `json:"missing"`
}

// ReportRow is one printed record. Serial is 1-based.
type ReportRow struct {
	Serial int          `json:"serial"`
	Cells  []ReportCell `json:"cells"`
}

// Report is the printable view of a whole dataset.
type Report struct {
	Title       string      `json:"title"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Columns     []string    `json:"columns"`
	Stats       Stats       `json:"stats"`
	Rows        []ReportRow `json:"rows"`
}

// BuildReport lays out every record for printing, substituting N/A for
// missing values.
func BuildReport(ds *Dataset, generatedAt time.Time) Report {
	report := Report{
		Title:       ds.Name,
		GeneratedAt: generatedAt,
		Columns:     ds.Header.Names(),
		Stats:       ComputeStats(ds),
		Rows:        make([]ReportRow, len(ds.Records)),
	}

	for i, rec := range ds.Records {
		cells := make([]ReportCell, len(ds.Header))
		for j, col := range ds.Header {
			v := rec.Get(col.Name)
			if IsMissing(v) {
				cells[j] = ReportCell{Text: NotAvailable, Missing: true}
			} else {
				cells[j] = ReportCell{Text: v.String}
			}
		}
		report.Rows[i] = ReportRow{Serial: i + 1, Cells: cells}
	}
	return report
}

// HeatmapRow flags which columns of one record are missing.
type HeatmapRow struct {
	RecordID int    `json:"recordId"`
	Label    string `json:"label"`
	Missing  []bool `json:"missing"`
}

// Heatmap is a row-by-column missingness grid over the first records.
type Heatmap struct {
	Columns []string     `json:"columns"`
	Rows    []HeatmapRow `json:"rows"`
}

// BuildHeatmap covers the first limit records (DefaultHeatmapRows when
// limit <= 0). Rows are labelled "<n>. <name>", or "Row <n>" without a name.
func BuildHeatmap(ds *Dataset, limit int) Heatmap {
	if limit <= 0 {
		limit = DefaultHeatmapRows
	}
	if limit > len(ds.Records) {
		limit = len(ds.Records)
	}

	nameCol, _ := NameColumn(ds.Header)
	hm := Heatmap{
		Columns: ds.Header.Names(),
		Rows:    make([]HeatmapRow, limit),
	}

	for i, rec := range ds.Records[:limit] {
		label := fmt.Sprintf("Row %d", i+1)
		if v := rec.Get(nameCol); !IsMissing(v) {
			label = v.String
		}
		flags := make([]bool, len(ds.Header))
		for j, col := range ds.Header {
			flags[j] = IsMissing(rec.Get(col.Name))
		}
		hm.Rows[i] = HeatmapRow{
			RecordID: rec.ID,
			Label:    fmt.Sprintf("%d. %s", i+1, label),
			Missing:  flags,
		}
	}
	return hm
}
