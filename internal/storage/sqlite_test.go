package storage

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	applog "expenses/internal/log"
)

func TestSQLiteGatewayMigratesOnItsOwnPool(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Writer: &buf, Format: applog.FormatJSON, Level: slog.LevelDebug})

	g, err := NewSQLiteGateway(filepath.Join(t.TempDir(), "expenses.db"), logger)
	if err != nil {
		t.Fatalf("NewSQLiteGateway: %v", err)
	}
	defer g.Close()

	if err := g.Save(context.Background(), State{ReportName: "Trip"}); err != nil {
		t.Fatalf("Save after migration: %v", err)
	}

	var version int
	var dirty bool
	if err := g.db.QueryRow("SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("schema version = %d dirty = %v, want 1 clean", version, dirty)
	}

	out := buf.String()
	for _, want := range []string{`"component":"storage"`, `"schema_version":1`, `"msg":"Session saved to SQLite"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestSQLiteGatewayReopenIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")
	for i := 0; i < 2; i++ {
		g, err := NewSQLiteGateway(path, nil)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := g.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
}
