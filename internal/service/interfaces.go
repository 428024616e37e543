// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/ledgersmith/rulekit/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Category  string
	Limit     int
	Offset    int
}

// GroupSource is the minimal catalog contract the rule engine needs:
// active groups sorted by execution order, rules in stable creation rank.
type GroupSource interface {
	GetActiveRuleGroups(ctx context.Context) ([]model.RuleGroup, error)
}

// CategorySource resolves target categories for set_category actions.
type CategorySource interface {
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	GroupSource
	CategorySource

	// Rule group operations
	GetRuleGroups(ctx context.Context) ([]model.RuleGroup, error)
	GetRuleGroup(ctx context.Context, id string) (*model.RuleGroup, error)
	SaveRuleGroup(ctx context.Context, group *model.RuleGroup) error
	DeleteRuleGroup(ctx context.Context, id string) error

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	UpdateTransactions(ctx context.Context, transactions []*model.Transaction) error
	DeleteTransactions(ctx context.Context, ids []string) error

	// Category operations
	GetCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, name, description string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	// Rule statistics operations
	SaveRuleStatistics(ctx context.Context, stats []model.RuleStatistics) error
	GetRuleStatistics(ctx context.Context, ruleID string) (*model.RuleStatistics, error)
	GetAllRuleStatistics(ctx context.Context) ([]model.RuleStatistics, error)
	ResetRuleStatistics(ctx context.Context, ruleID string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
