package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
)

// SaveRuleStatistics upserts a statistics snapshot, keyed by rule id.
func (s *SQLiteStorage) SaveRuleStatistics(ctx context.Context, stats []model.RuleStatistics) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(stats) == 0 {
		return nil
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO rule_statistics
				(rule_id, match_count, total_evaluations, error_count,
				 average_evaluation_time_ms, last_matched_at, last_bulk_processed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(rule_id) DO UPDATE SET
				match_count = excluded.match_count,
				total_evaluations = excluded.total_evaluations,
				error_count = excluded.error_count,
				average_evaluation_time_ms = excluded.average_evaluation_time_ms,
				last_matched_at = excluded.last_matched_at,
				last_bulk_processed_at = excluded.last_bulk_processed_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare statistics upsert: %w", err)
		}
		defer stmt.Close()

		for i := range stats {
			entry := &stats[i]
			if entry.RuleID == "" {
				return fmt.Errorf("%w: statistics rule id", ErrEmptyString)
			}
			if _, err := stmt.Exec(entry.RuleID, entry.MatchCount, entry.TotalEvaluations,
				entry.ErrorCount, entry.AverageEvaluationTimeMs,
				nullableTime(entry.LastMatchedAt), nullableTime(entry.LastBulkProcessedAt)); err != nil {
				return fmt.Errorf("failed to save statistics for rule %s: %w", entry.RuleID, err)
			}
		}

		slog.Debug("saved rule statistics", "count", len(stats))
		return nil
	})
}

// GetRuleStatistics returns one rule's persisted statistics, or
// common.ErrNotFound.
func (s *SQLiteStorage) GetRuleStatistics(ctx context.Context, ruleID string) (*model.RuleStatistics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ruleID, "ruleID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT rule_id, match_count, total_evaluations, error_count,
		       average_evaluation_time_ms, last_matched_at, last_bulk_processed_at
		FROM rule_statistics WHERE rule_id = ?`, ruleID)

	entry, err := scanStatistics(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("statistics for rule %s: %w", ruleID, common.ErrNotFound)
	}
	return entry, err
}

// GetAllRuleStatistics returns every persisted statistics row.
func (s *SQLiteStorage) GetAllRuleStatistics(ctx context.Context) ([]model.RuleStatistics, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, match_count, total_evaluations, error_count,
		       average_evaluation_time_ms, last_matched_at, last_bulk_processed_at
		FROM rule_statistics ORDER BY rule_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule statistics: %w", err)
	}
	defer rows.Close()

	var all []model.RuleStatistics
	for rows.Next() {
		entry, err := scanStatistics(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, *entry)
	}
	return all, rows.Err()
}

// ResetRuleStatistics zeroes the persisted counters for one rule.
func (s *SQLiteStorage) ResetRuleStatistics(ctx context.Context, ruleID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ruleID, "ruleID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE rule_statistics
		SET match_count = 0, total_evaluations = 0, error_count = 0,
		    average_evaluation_time_ms = 0, last_matched_at = NULL,
		    last_bulk_processed_at = NULL
		WHERE rule_id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to reset statistics for rule %s: %w", ruleID, err)
	}
	return nil
}

func scanStatistics(row rowScanner) (*model.RuleStatistics, error) {
	var entry model.RuleStatistics
	var lastMatched, lastBulk sql.NullTime
	if err := row.Scan(&entry.RuleID, &entry.MatchCount, &entry.TotalEvaluations,
		&entry.ErrorCount, &entry.AverageEvaluationTimeMs, &lastMatched, &lastBulk); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan rule statistics: %w", err)
	}
	if lastMatched.Valid {
		entry.LastMatchedAt = lastMatched.Time
	}
	if lastBulk.Valid {
		entry.LastBulkProcessedAt = lastBulk.Time
	}
	return &entry, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
