package audit

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string // memory, postgres, sqlite
	SQLitePath string
	Postgres   PostgresConfig
}

// Open returns the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		if opts.Postgres.URL == "" {
			return nil, fmt.Errorf("audit backend postgres requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, opts.Postgres)
	case "sqlite":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", opts.Backend)
	}
}
