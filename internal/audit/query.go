package audit

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder assembles a parameterized WHERE clause. Conditions are joined
// with AND; empty values are skipped.
type whereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
	numbered   bool // $1, $2 (postgres) instead of ? (sqlite)
}

func newWhereBuilder(numbered bool) *whereBuilder {
	return &whereBuilder{argIndex: 1, numbered: numbered}
}

func (wb *whereBuilder) placeholder() string {
	if !wb.numbered {
		wb.argIndex++
		return "?"
	}
	p := fmt.Sprintf("$%d", wb.argIndex)
	wb.argIndex++
	return p
}

// Add appends "col = value" unless value is empty.
func (wb *whereBuilder) Add(col, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = %s", col, wb.placeholder()))
	wb.args = append(wb.args, value)
}

// AddSince appends "col >= since" unless since is zero.
func (wb *whereBuilder) AddSince(col string, since time.Time) {
	if since.IsZero() {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s >= %s", col, wb.placeholder()))
	wb.args = append(wb.args, since.UTC())
}

// Build returns the clause (with a leading space, or "") and its args.
func (wb *whereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// Page appends LIMIT/OFFSET placeholders and args.
func (wb *whereBuilder) Page(limit, offset int) (string, []any) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	clause := fmt.Sprintf(" LIMIT %s OFFSET %s", wb.placeholder(), wb.placeholder())
	return clause, []any{limit, offset}
}

// filterQuery builds the SELECT used by the SQL backends.
func filterQuery(f Filter, numbered bool) (string, []any) {
	wb := newWhereBuilder(numbered)
	wb.Add("session_id", f.SessionID)
	wb.Add("action", string(f.Action))
	wb.AddSince("created_at", f.Since)

	where, args := wb.Build()
	page, pageArgs := wb.Page(f.Limit, f.Offset)

	query := "SELECT " + selectColumns + " FROM audit_log" + where + " ORDER BY created_at DESC" + page
	return query, append(args, pageArgs...)
}

const selectColumns = "id, session_id, action, severity, dataset, record_id, column_name, old_value, new_value, rows_affected, ip_address, user_agent, reason, created_at"
