package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/JonMunkholm/sheetfill/internal/core"
)

const barWidth = 30

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func printStats(w io.Writer, name string, st core.Stats) {
	fmt.Fprintln(w, titleStyle.Render(name))
	fmt.Fprintf(w, "Rows: %d  Incomplete: %d  Missing: %d%%  Complete: %d%%\n\n",
		st.TotalRows, st.MissingRows, st.MissingPercent, st.CompletePercent)

	t := newTable("Column", "Missing", "")
	for _, cs := range st.Columns {
		filled := int(st.ColumnScale(cs.Column) / 100 * barWidth)
		bar := missingStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", barWidth-filled))
		t.Row(cs.Column, strconv.Itoa(cs.Missing), bar)
	}
	fmt.Fprintln(w, t.String())
}

func printRecords(w io.Writer, records []core.RecordSummary) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No matching records")
		return
	}

	t := newTable("ID", "Record", "Status", "Missing fields")
	for _, rec := range records {
		status := okStyle.Render(rec.Status)
		if !rec.Complete() {
			status = missingStyle.Render(rec.Status)
		}
		t.Row(strconv.Itoa(rec.ID), rec.Title, status, strings.Join(rec.MissingFields, ", "))
	}
	fmt.Fprintln(w, t.String())
}
