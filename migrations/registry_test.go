package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	captainhook "github.com/bowerbird-app/captain-hook-sub005"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestCoreSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := captainhook.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/20260301000000_captainhook_core_schema.up.sql",
		"data/sql/migrations/20260301000000_captainhook_core_schema.down.sql",
		"data/sql/migrations/sqlite/20260301000000_captainhook_core_schema.up.sql",
		"data/sql/migrations/sqlite/20260301000000_captainhook_core_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreSchema_EnforcesAdmissionUniqueness(t *testing.T) {
	db := openMigratedSQLite(t, "file:migrations-admission-uniqueness?mode=memory&cache=shared&_foreign_keys=on")
	defer func() { _ = db.Close() }()

	insertStatement := `
		INSERT INTO captainhook_incoming_events (
			id, provider, external_id, event_type, status, dedup_state
		) VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertStatement,
		"evt-row-1", "stripe", "evt_1", "charge.succeeded", "received", "unique",
	); err != nil {
		t.Fatalf("insert first event: %v", err)
	}
	_, err := db.ExecContext(
		context.Background(),
		insertStatement,
		"evt-row-2", "stripe", "evt_1", "charge.succeeded", "received", "unique",
	)
	if err == nil {
		t.Fatalf("expected duplicate (provider, external_id) insert to fail")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unique") {
		t.Fatalf("expected unique constraint error, got %v", err)
	}

	if _, err := db.ExecContext(
		context.Background(),
		insertStatement,
		"evt-row-3", "square", "evt_1", "payment.updated", "received", "unique",
	); err != nil {
		t.Fatalf("expected same external id under another provider to insert: %v", err)
	}
}

func TestSQLiteCoreSchema_EnforcesActionConfigBindingUniqueness(t *testing.T) {
	db := openMigratedSQLite(t, "file:migrations-binding-uniqueness?mode=memory&cache=shared&_foreign_keys=on")
	defer func() { _ = db.Close() }()

	insertStatement := `
		INSERT INTO captainhook_action_configs (
			id, provider, event_type, action_class
		) VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(
		context.Background(),
		insertStatement,
		"cfg-1", "stripe", "charge.succeeded", "billing.Settle",
	); err != nil {
		t.Fatalf("insert first binding: %v", err)
	}
	if _, err := db.ExecContext(
		context.Background(),
		insertStatement,
		"cfg-2", "stripe", "charge.succeeded", "billing.Settle",
	); err == nil {
		t.Fatalf("expected duplicate binding insert to fail")
	}
}

func TestSQLiteCoreSchema_RateCounterUpsertIncrements(t *testing.T) {
	db := openMigratedSQLite(t, "file:migrations-rate-counter?mode=memory&cache=shared&_foreign_keys=on")
	defer func() { _ = db.Close() }()

	upsert := `
		INSERT INTO captainhook_rate_counters (id, provider, window_start, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (provider, window_start)
		DO UPDATE SET count = captainhook_rate_counters.count + 1
		RETURNING count
	`
	var count int
	if err := db.QueryRowContext(context.Background(), upsert, "rc-1", "stripe", "2026-06-01T12:00:00Z").Scan(&count); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected first count=1, got %d", count)
	}
	if err := db.QueryRowContext(context.Background(), upsert, "rc-2", "stripe", "2026-06-01T12:00:00Z").Scan(&count); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected second count=2, got %d", count)
	}
}

func openMigratedSQLite(t *testing.T, dsn string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	db.SetMaxOpenConns(1)

	root := captainhook.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		_ = db.Close()
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "20260301000000_captainhook_core_schema.up.sql"); err != nil {
		_ = db.Close()
		t.Fatalf("apply core schema: %v", err)
	}
	return db
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
