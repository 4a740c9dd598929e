package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("SCREENPLAY_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("SCREENPLAY_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, os.DirFS(testMigrationsDir)); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsRoundTripPostgres(t *testing.T) {
	pg := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	migrations := os.DirFS(testMigrationsDir)

	if err := RollbackMigrations(ctx, pg.DB(), migrations); err != nil {
		t.Fatalf("rollback migrations: %v", err)
	}
	applied, err := ApplyMigrations(ctx, pg.DB(), migrations)
	if err != nil {
		t.Fatalf("apply migrations (pass 2): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected migrations to be re-applied after rollback")
	}

	again, err := ApplyMigrations(ctx, pg.DB(), migrations)
	if err != nil {
		t.Fatalf("apply migrations (pass 3): %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no pending migrations, got %v", again)
	}
}
