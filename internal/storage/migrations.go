package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application
// expects. Failing to reach it is a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Rule catalog schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rule_groups (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT DEFAULT '',
					execution_order INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rule_groups_order ON rule_groups(execution_order)`,

				`CREATE TABLE IF NOT EXISTS rules (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					name TEXT NOT NULL,
					description TEXT DEFAULT '',
					trigger_logic TEXT NOT NULL DEFAULT 'all',
					is_active INTEGER NOT NULL DEFAULT 1,
					stop_processing INTEGER NOT NULL DEFAULT 0,
					match_count INTEGER NOT NULL DEFAULT 0,
					last_matched_at DATETIME,
					rank INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (group_id) REFERENCES rule_groups(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_rules_group ON rules(group_id, rank)`,

				`CREATE TABLE IF NOT EXISTS rule_triggers (
					id TEXT PRIMARY KEY,
					rule_id TEXT NOT NULL,
					field TEXT NOT NULL,
					operator TEXT NOT NULL,
					value TEXT NOT NULL DEFAULT '',
					is_inverted INTEGER NOT NULL DEFAULT 0,
					sort_order INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (rule_id) REFERENCES rules(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_rule_triggers_rule ON rule_triggers(rule_id, sort_order)`,

				`CREATE TABLE IF NOT EXISTS rule_actions (
					id TEXT PRIMARY KEY,
					rule_id TEXT NOT NULL,
					type TEXT NOT NULL,
					value TEXT NOT NULL DEFAULT '',
					stop_processing_after INTEGER NOT NULL DEFAULT 0,
					sort_order INTEGER NOT NULL DEFAULT 0,
					FOREIGN KEY (rule_id) REFERENCES rules(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_rule_actions_rule ON rule_actions(rule_id, sort_order)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     2,
		Description: "Transaction ledger and categories",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					counter_name TEXT DEFAULT '',
					counter_iban TEXT DEFAULT '',
					own_iban TEXT DEFAULT '',
					currency TEXT DEFAULT '',
					amount TEXT NOT NULL,
					type TEXT NOT NULL DEFAULT 'withdrawal',
					category TEXT DEFAULT '',
					category_override TEXT DEFAULT '',
					tags TEXT DEFAULT '',
					notes TEXT DEFAULT '',
					external_id TEXT DEFAULT '',
					internal_reference TEXT DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_category ON transactions(category)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					name TEXT UNIQUE NOT NULL,
					description TEXT DEFAULT '',
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}
			return execAll(tx, queries)
		},
	},
	{
		Version:     3,
		Description: "Rule statistics",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rule_statistics (
					rule_id TEXT PRIMARY KEY,
					match_count INTEGER NOT NULL DEFAULT 0,
					total_evaluations INTEGER NOT NULL DEFAULT 0,
					error_count INTEGER NOT NULL DEFAULT 0,
					average_evaluation_time_ms REAL NOT NULL DEFAULT 0,
					last_matched_at DATETIME,
					last_bulk_processed_at DATETIME
				)`,
			}
			return execAll(tx, queries)
		},
	},
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if current.Valid && migration.Version <= int(current.Int64) {
			continue
		}

		err := s.execInTx(ctx, func(tx *sql.Tx) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Description, err)
			}
			if _, err := tx.Exec(
				`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
				migration.Version, migration.Description); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	return nil
}
