// Package audit records what happened to each gap-fill session: datasets
// loaded, missing cells filled, exports produced, sessions discarded.
//
// Entries go to a Store. Three backends exist and are chosen by
// AUDIT_BACKEND:
//
//   - memory: process-local, lost on restart (default)
//   - postgres: pgx connection pool, table audit_log
//   - sqlite: single-file database via the pure Go modernc driver
//
// Old entries are purged by the session sweeper according to
// AUDIT_RETENTION_DAYS.
package audit

import (
	"context"
	"time"
)

// Action is the type of audited operation.
type Action string

const (
	ActionDatasetLoad    Action = "dataset_load"
	ActionCellFill       Action = "cell_fill"
	ActionExport         Action = "export"
	ActionSessionDiscard Action = "session_discard"
	ActionSessionExpire  Action = "session_expire"
)

// Severity ranks audit entries.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// Entry is a single audit log entry.
type Entry struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Action       Action    `json:"action"`
	Severity     Severity  `json:"severity"`
	Dataset      string    `json:"dataset,omitempty"`
	RecordID     *int      `json:"recordId,omitempty"`
	Column       string    `json:"column,omitempty"`
	OldValue     string    `json:"oldValue,omitempty"`
	NewValue     string    `json:"newValue,omitempty"`
	RowsAffected int       `json:"rowsAffected,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Filter narrows List. Zero values mean "any".
type Filter struct {
	SessionID string
	Action    Action
	Since     time.Time
	Limit     int
	Offset    int
}

// Store persists audit entries.
type Store interface {
	// Log stores e, filling ID, Severity and CreatedAt when unset, and
	// returns the stored entry.
	Log(ctx context.Context, e Entry) (Entry, error)
	// List returns entries newest first.
	List(ctx context.Context, f Filter) ([]Entry, error)
	// Purge deletes entries created before cutoff and returns how many.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// SeverityFor returns the severity recorded for an action.
func SeverityFor(action Action) Severity {
	switch action {
	case ActionExport, ActionSessionDiscard:
		return SeverityHigh
	case ActionSessionExpire:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// IntPtr is a convenience for Entry.RecordID.
func IntPtr(i int) *int {
	return &i
}
