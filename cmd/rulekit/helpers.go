package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ledgersmith/rulekit/internal/service"
	"github.com/ledgersmith/rulekit/internal/storage"
)

// transactionFilterWithLimit builds a ledger filter capped at limit rows.
func transactionFilterWithLimit(limit int) service.TransactionFilter {
	if limit <= 0 {
		limit = 50
	}
	return service.TransactionFilter{Limit: limit}
}

// openStorage opens the configured SQLite database.
func openStorage() (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "rulekit", "rulekit.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}
