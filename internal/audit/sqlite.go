package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	action        TEXT NOT NULL,
	severity      TEXT NOT NULL,
	dataset       TEXT,
	record_id     INTEGER,
	column_name   TEXT,
	old_value     TEXT,
	new_value     TEXT,
	rows_affected INTEGER,
	ip_address    TEXT,
	user_agent    TEXT,
	reason        TEXT,
	created_at    TIMESTAMP NOT NULL
)`

const sqliteIndex = `CREATE INDEX IF NOT EXISTS audit_log_session_idx ON audit_log (session_id, created_at)`

// SQLiteStore writes audit entries to a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "sheetfill-audit.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	for _, ddl := range []string{sqliteSchema, sqliteIndex} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create audit_log: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Log(ctx context.Context, e Entry) (Entry, error) {
	e = prepare(e, s.now)

	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log
		(id, session_id, action, severity, dataset, record_id, column_name, old_value, new_value, rows_affected, ip_address, user_agent, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, string(e.Action), string(e.Severity),
		nullString(e.Dataset), nullInt(e.RecordID), nullString(e.Column),
		nullString(e.OldValue), nullString(e.NewValue), e.RowsAffected,
		nullString(e.IPAddress), nullString(e.UserAgent), nullString(e.Reason),
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := filterQuery(f, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                                          Entry
			action, severity                           string
			dataset, column, oldVal, newVal, ip, ua, r sql.NullString
			recordID, affected                         sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &action, &severity, &dataset, &recordID,
			&column, &oldVal, &newVal, &affected, &ip, &ua, &r, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Severity = Severity(severity)
		e.Dataset = dataset.String
		if recordID.Valid {
			e.RecordID = IntPtr(int(recordID.Int64))
		}
		e.Column = column.String
		e.OldValue = oldVal.String
		e.NewValue = newVal.String
		e.RowsAffected = int(affected.Int64)
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.Reason = r.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
