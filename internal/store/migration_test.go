package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrationIdempotency(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "raidfinder.db")

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Failed to migrate (pass %d): %v", i+1, err)
		}
	}

	version, err := db.Version(ctx)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}

	run := &Run{
		ID:            "migration-test",
		Kind:          KindSearch,
		Species:       530,
		Seed:          "bb810e6006a2a035",
		EngineVersion: "test",
	}
	if err := db.SaveRun(ctx, run, nil); err != nil {
		t.Fatalf("Failed to save run after multiple migrations: %v", err)
	}

	retrieved, err := db.GetRun(ctx, "migration-test")
	if err != nil {
		t.Fatalf("Failed to get run after multiple migrations: %v", err)
	}
	if retrieved.Seed != run.Seed {
		t.Errorf("Data integrity issue after migrations: expected %s, got %s", run.Seed, retrieved.Seed)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "raidfinder.db")

	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if _, err := db.PutSetting(ctx, "last_seed", []byte(`"c816c270fd1cd8fd"`)); err != nil {
		t.Fatalf("Failed to save setting: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	db, err = NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate reopened database: %v", err)
	}

	got, err := db.GetSetting(ctx, "last_seed")
	if err != nil {
		t.Fatalf("Failed to read setting after reopen: %v", err)
	}
	if string(got.Value) != `"c816c270fd1cd8fd"` {
		t.Errorf("Unexpected setting value %s", got.Value)
	}
}
