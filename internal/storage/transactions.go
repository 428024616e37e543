package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
	"github.com/ledgersmith/rulekit/internal/service"
)

// tagSeparator joins the tag list into a single column. Tags containing
// the separator are rejected at save time.
const tagSeparator = "\x1f"

const transactionColumns = `id, date, description, counter_name, counter_iban, own_iban,
	currency, amount, type, category, category_override, tags, notes,
	external_id, internal_reference`

// SaveTransactions inserts or replaces a batch of transactions.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(transactions) == 0 {
		return nil
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO transactions (` + transactionColumns + `, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range transactions {
			txn := &transactions[i]
			if err := validateTransaction(txn); err != nil {
				return err
			}
			tags, err := joinTags(txn.Tags)
			if err != nil {
				return err
			}
			if _, err := stmt.Exec(
				txn.ID, txn.Date.UTC(), txn.Description, txn.CounterName, txn.CounterIBAN,
				txn.OwnIBAN, txn.Currency, txn.Amount.String(), string(txn.Type),
				txn.Category, txn.CategoryOverride, tags, txn.Notes,
				txn.ExternalID, txn.InternalReference, now); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
			}
		}

		slog.Debug("saved transactions", "count", len(transactions))
		return nil
	})
}

// UpdateTransactions persists engine-mutated records. Records marked
// for deletion are removed instead of updated.
func (s *SQLiteStorage) UpdateTransactions(ctx context.Context, transactions []*model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	kept := make([]model.Transaction, 0, len(transactions))
	var deleted []string
	for _, txn := range transactions {
		if txn.Deleted {
			deleted = append(deleted, txn.ID)
			continue
		}
		kept = append(kept, *txn)
	}

	if len(kept) > 0 {
		if err := s.SaveTransactions(ctx, kept); err != nil {
			return err
		}
	}
	return s.DeleteTransactions(ctx, deleted)
}

// GetTransactions returns transactions matching the filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	var conditions []string
	var args []any

	if filter.StartDate != nil {
		conditions = append(conditions, `date >= ?`)
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		conditions = append(conditions, `date <= ?`)
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Category != "" {
		conditions = append(conditions, `category = ?`)
		args = append(args, filter.Category)
	}
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, ` AND `)
	}
	query += ` ORDER BY date DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactionByID returns one transaction, or common.ErrNotFound.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	return txn, err
}

// DeleteTransactions removes the given ids; missing ids are ignored.
func (s *SQLiteStorage) DeleteTransactions(ctx context.Context, ids []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM transactions WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare delete: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.Exec(id); err != nil {
				return fmt.Errorf("failed to delete transaction %s: %w", id, err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var amount, kind, tags string
	if err := row.Scan(&txn.ID, &txn.Date, &txn.Description, &txn.CounterName,
		&txn.CounterIBAN, &txn.OwnIBAN, &txn.Currency, &amount, &kind,
		&txn.Category, &txn.CategoryOverride, &tags, &txn.Notes,
		&txn.ExternalID, &txn.InternalReference); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q for transaction %s: %w", amount, txn.ID, err)
	}
	txn.Amount = parsed
	txn.Type = model.TransactionType(kind)
	if tags != "" {
		txn.Tags = strings.Split(tags, tagSeparator)
	}
	return &txn, nil
}

func joinTags(tags []string) (string, error) {
	for _, tag := range tags {
		if strings.Contains(tag, tagSeparator) {
			return "", fmt.Errorf("tag %q contains reserved separator", tag)
		}
	}
	return strings.Join(tags, tagSeparator), nil
}
