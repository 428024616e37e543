// Package testutil provides shared helpers for tests that need a real
// storage layer or canned rule catalogs.
package testutil

import (
	"context"
	"testing"

	"github.com/ledgersmith/rulekit/internal/service"
	"github.com/ledgersmith/rulekit/internal/storage"
)

// TestDB wraps an in-memory migrated storage instance.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates an in-memory SQLite database, runs migrations,
// seeds the given categories, and registers cleanup.
func SetupTestDB(t *testing.T, categoryNames ...string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, name := range categoryNames {
		if _, err := store.CreateCategory(ctx, name, ""); err != nil {
			t.Fatalf("failed to seed category %q: %v", name, err)
		}
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}
