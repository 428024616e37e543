// Package model defines the core data structures for the rulekit engine.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies the direction/kind of a transaction.
type TransactionType string

const (
	// TypeWithdrawal represents money leaving an owned account.
	TypeWithdrawal TransactionType = "withdrawal"
	// TypeDeposit represents money entering an owned account.
	TypeDeposit TransactionType = "deposit"
	// TypeTransfer represents money moving between owned accounts.
	TypeTransfer TransactionType = "transfer"
)

// ValidTransactionType reports whether s names a known transaction type.
func ValidTransactionType(s string) bool {
	switch TransactionType(s) {
	case TypeWithdrawal, TypeDeposit, TypeTransfer:
		return true
	}
	return false
}

// Transaction is the engine's read/write view of a single bank transaction.
// The ledger collaborator owns persistence; the engine mutates the
// categorization and metadata fields in place.
type Transaction struct {
	Date              time.Time
	ID                string
	Description       string
	CounterName       string
	CounterIBAN       string
	OwnIBAN           string
	Currency          string
	Category          string
	CategoryOverride  string
	Notes             string
	ExternalID        string
	InternalReference string
	Tags              []string
	Amount            decimal.Decimal
	Type              TransactionType
	Deleted           bool
}

// EffectiveCategory returns the override when set, the base category otherwise.
func (t *Transaction) EffectiveCategory() string {
	if t.CategoryOverride != "" {
		return t.CategoryOverride
	}
	return t.Category
}

// HasTag reports whether the transaction carries the given tag (case-insensitive).
func (t *Transaction) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if strings.EqualFold(existing, tag) {
			return true
		}
	}
	return false
}

// AddTag appends a tag unless an equal tag (case-insensitive) is already present.
// Returns true when the tag set changed.
func (t *Transaction) AddTag(tag string) bool {
	if tag == "" || t.HasTag(tag) {
		return false
	}
	t.Tags = append(t.Tags, tag)
	return true
}

// RemoveTag removes every occurrence of tag (case-insensitive).
// Returns true when the tag set changed.
func (t *Transaction) RemoveTag(tag string) bool {
	kept := t.Tags[:0]
	changed := false
	for _, existing := range t.Tags {
		if strings.EqualFold(existing, tag) {
			changed = true
			continue
		}
		kept = append(kept, existing)
	}
	t.Tags = kept
	return changed
}

// Clone returns a deep copy. Dry runs evaluate clones so the caller's
// records are never touched.
func (t *Transaction) Clone() *Transaction {
	clone := *t
	clone.Tags = append([]string(nil), t.Tags...)
	return &clone
}
