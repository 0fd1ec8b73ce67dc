package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// maxPreviewFields caps how many populated fields a record summary shows.
const maxPreviewFields = 6

// NameColumn picks the column used to title records: the first one whose name
// contains "name" (case-insensitive), otherwise the first column. It returns
// false only for an empty header.
func NameColumn(header Header) (string, bool) {
	if len(header) == 0 {
		return "", false
	}
	for _, col := range header {
		if strings.Contains(strings.ToLower(col.Name), "name") {
			return col.Name, true
		}
	}
	return header[0].Name, true
}

// RecordTitle formats "NN - <name>" with the 1-based id padded to two digits.
// A missing name reads "Unknown".
func RecordTitle(rec *Record, nameCol string) string {
	name := "Unknown"
	if v := rec.Get(nameCol); !IsMissing(v) {
		name = v.String
	}
	return fmt.Sprintf("%02d - %s", rec.ID+1, name)
}

// MatchesSearch reports whether rec matches a free-text term. A blank term
// matches everything; otherwise the term is compared case-insensitively
// against the record title and the record's JSON form.
func MatchesSearch(rec *Record, header Header, nameCol, term string) bool {
	if strings.TrimSpace(term) == "" {
		return true
	}
	fold := cases.Fold()
	needle := fold.String(term)
	if strings.Contains(fold.String(RecordTitle(rec, nameCol)), needle) {
		return true
	}
	return strings.Contains(fold.String(recordJSON(rec, header)), needle)
}

// recordJSON renders {"_id":N,"<col>":<value>,...} in header order. HTML
// characters are left unescaped so terms like "R&D" match.
func recordJSON(rec *Record, header Header) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	str := func(v any) {
		_ = enc.Encode(v)
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
	}

	buf.WriteString(`{"_id":`)
	buf.WriteString(strconv.Itoa(rec.ID))
	for _, col := range header {
		buf.WriteByte(',')
		str(col.Name)
		buf.WriteByte(':')
		if v := rec.Get(col.Name); v.Valid {
			str(v.String)
		} else {
			buf.WriteString("null")
		}
	}
	buf.WriteByte('}')
	return buf.String()
}

// PreviewField is a populated field shown on a record summary.
type PreviewField struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// RecordSummary is the list view of a record.
type RecordSummary struct {
	ID            int            `json:"id"`
	Title         string         `json:"title"`
	MissingCount  int            `json:"missingCount"`
	Status        string         `json:"status"`
	Preview       []PreviewField `json:"preview"`
	MissingFields []string       `json:"missingFields"`
}

// Complete reports whether the summarized record has no missing fields.
func (s RecordSummary) Complete() bool {
	return s.MissingCount == 0
}

// Summarize builds the list view of rec.
func Summarize(rec *Record, header Header, nameCol string) RecordSummary {
	missing := MissingFields(rec, header)
	summary := RecordSummary{
		ID:            rec.ID,
		Title:         RecordTitle(rec, nameCol),
		MissingCount:  len(missing),
		MissingFields: missing,
		Status:        "Complete",
	}
	if len(missing) > 0 {
		summary.Status = fmt.Sprintf("%d Missing", len(missing))
	}

	for _, col := range header {
		if len(summary.Preview) >= maxPreviewFields {
			break
		}
		if col.Name == nameCol {
			continue
		}
		if v := rec.Get(col.Name); !IsMissing(v) {
			summary.Preview = append(summary.Preview, PreviewField{Column: col.Name, Value: v.String})
		}
	}
	return summary
}

// SearchRecords returns summaries of the records matching term, in store order.
func SearchRecords(ds *Dataset, term string) []RecordSummary {
	nameCol, _ := NameColumn(ds.Header)
	summaries := make([]RecordSummary, 0, len(ds.Records))
	for _, rec := range ds.Records {
		if !MatchesSearch(rec, ds.Header, nameCol, term) {
			continue
		}
		summaries = append(summaries, Summarize(rec, ds.Header, nameCol))
	}
	return summaries
}
