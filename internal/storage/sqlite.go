package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	applog "expenses/internal/log"
)

// SQLiteGateway stores state as rows of the kv table.
type SQLiteGateway struct {
	db      *sql.DB
	queries *Queries
	logger  *applog.Logger
}

// NewSQLiteGateway opens the database at dbPath and migrates it over the
// same connection pool. A nil logger discards output.
func NewSQLiteGateway(dbPath string, logger *applog.Logger) (*SQLiteGateway, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateUp(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Debug("SQLite schema ready", "path", dbPath, "schema_version", version)

	return &SQLiteGateway{
		db:      db,
		queries: NewQueries(db),
		logger:  logger,
	}, nil
}

// Close implements Gateway.
func (r *SQLiteGateway) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements Gateway.
func (r *SQLiteGateway) Load(ctx context.Context) (State, error) {
	values := make(map[string][]byte, 3)
	for _, key := range []string{KeyExpenses, KeyReportName, KeyBaseCurrency} {
		v, err := r.queries.GetValue(ctx, key)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return State{}, fmt.Errorf("get %s: %w", key, err)
		}
		values[key] = []byte(v)
	}
	return stateFrom(func(key string) ([]byte, bool) {
		v, ok := values[key]
		return v, ok
	}), nil
}

// Save implements Gateway. All keys are written in one transaction.
func (r *SQLiteGateway) Save(ctx context.Context, st State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := r.queries.WithTx(tx)
	for _, e := range st.entries() {
		if e.value == nil {
			if err := q.DeleteValue(ctx, e.key); err != nil {
				return fmt.Errorf("delete %s: %w", e.key, err)
			}
			continue
		}
		if err := q.UpsertValue(ctx, UpsertValueParams{Key: e.key, Value: string(e.value)}); err != nil {
			return fmt.Errorf("upsert %s: %w", e.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.DebugContext(ctx, "Session saved to SQLite", "expenses_bytes", len(st.Expenses))
	return nil
}
