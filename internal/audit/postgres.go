package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS audit_log (
	id            UUID PRIMARY KEY,
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
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const postgresIndex = `CREATE INDEX IF NOT EXISTS audit_log_session_idx ON audit_log (session_id, created_at DESC)`

// PostgresConfig holds pool settings for the postgres backend.
type PostgresConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PostgresStore writes audit entries to PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore connects, pings, and ensures the audit_log table exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, ddl := range []string{postgresSchema, postgresIndex} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create audit_log: %w", err)
		}
	}

	return &PostgresStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresStore) Log(ctx context.Context, e Entry) (Entry, error) {
	e = prepare(e, s.now)

	uid, err := uuid.Parse(e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid audit entry id: %w", err)
	}

	_, err = s.pool.Exec(ctx, `INSERT INTO audit_log
		(id, session_id, action, severity, dataset, record_id, column_name, old_value, new_value, rows_affected, ip_address, user_agent, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		pgtype.UUID{Bytes: uid, Valid: true}, e.SessionID, string(e.Action), string(e.Severity),
		toPgText(e.Dataset), toPgInt4Ptr(e.RecordID), toPgText(e.Column),
		toPgText(e.OldValue), toPgText(e.NewValue), toPgInt4(e.RowsAffected),
		toPgText(e.IPAddress), toPgText(e.UserAgent), toPgText(e.Reason),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := filterQuery(f, true)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`,
		pgtype.Timestamptz{Time: cutoff.UTC(), Valid: true})
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgEntry(rows pgx.Rows) (Entry, error) {
	var (
		e                                          Entry
		id                                         pgtype.UUID
		action, severity                           string
		dataset, column, oldVal, newVal, ip, ua, r pgtype.Text
		recordID, affected                         pgtype.Int4
		created                                    pgtype.Timestamptz
	)
	if err := rows.Scan(&id, &e.SessionID, &action, &severity, &dataset, &recordID,
		&column, &oldVal, &newVal, &affected, &ip, &ua, &r, &created); err != nil {
		return Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}

	if id.Valid {
		e.ID = uuid.UUID(id.Bytes).String()
	}
	e.Action = Action(action)
	e.Severity = Severity(severity)
	e.Dataset = dataset.String
	if recordID.Valid {
		e.RecordID = IntPtr(int(recordID.Int32))
	}
	e.Column = column.String
	e.OldValue = oldVal.String
	e.NewValue = newVal.String
	e.RowsAffected = int(affected.Int32)
	e.IPAddress = ip.String
	e.UserAgent = ua.String
	e.Reason = r.String
	e.CreatedAt = created.Time
	return e, nil
}

func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func toPgInt4(i int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(i), Valid: i != 0}
}

func toPgInt4Ptr(i *int) pgtype.Int4 {
	if i == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*i), Valid: true}
}
