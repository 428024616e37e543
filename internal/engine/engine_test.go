package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
)

// fakeGroups serves a fixed catalog and optionally fails.
type fakeGroups struct {
	groups []model.RuleGroup
	err    error
}

func (f *fakeGroups) GetActiveRuleGroups(context.Context) ([]model.RuleGroup, error) {
	return f.groups, f.err
}

// countingStats records telemetry calls for assertions. Safe for
// concurrent use so bulk tests can share it.
type countingStats struct {
	mu          sync.Mutex
	evaluations map[string]int
	matches     map[string]int
	errors      map[string]int
}

func newCountingStats() *countingStats {
	return &countingStats{
		evaluations: make(map[string]int),
		matches:     make(map[string]int),
		errors:      make(map[string]int),
	}
}

func (c *countingStats) RecordEvaluation(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluations[ruleID]++
}

func (c *countingStats) RecordMatch(ruleID string, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches[ruleID]++
}

func (c *countingStats) RecordError(ruleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[ruleID]++
}

func categoryRule(id, name, needle, category string) model.Rule {
	return model.Rule{
		ID:           id,
		Name:         name,
		IsActive:     true,
		TriggerLogic: model.LogicAll,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldDescription, Operator: model.OpContains, Value: needle},
		},
		Actions: []model.RuleAction{
			{Type: model.ActionSetCategory, Value: category},
		},
	}
}

func singleGroupCatalog(rules ...model.Rule) []model.RuleGroup {
	return []model.RuleGroup{
		{ID: "group-1", Name: "default", IsActive: true, ExecutionOrder: 0, Rules: rules},
	}
}

func TestEngine_ProcessTransaction(t *testing.T) {
	groups := &fakeGroups{groups: singleGroupCatalog(
		categoryRule("r1", "groceries", "albert heijn", "Groceries"),
	)}
	eng := New(groups, nil, nil)

	txn := sampleTransaction()
	result, err := eng.ProcessTransaction(context.Background(), txn)
	require.NoError(t, err)

	assert.Equal(t, "Groceries", txn.Category)
	assert.Equal(t, []string{"groceries"}, result.MatchedRules)
	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Equal(t, 1, result.RulesExecuted)
	assert.Equal(t, 1, result.ActionsPerformed)
	assert.False(t, result.Halted)
	assert.Empty(t, result.Errors)
}

func TestEngine_ProcessTransaction_CatalogFailures(t *testing.T) {
	t.Run("fetch error is fatal", func(t *testing.T) {
		eng := New(&fakeGroups{err: errors.New("db gone")}, nil, nil)
		_, err := eng.ProcessTransaction(context.Background(), sampleTransaction())
		require.Error(t, err)

		var engErr *common.EngineError
		require.ErrorAs(t, err, &engErr)
	})

	t.Run("no active groups is fatal", func(t *testing.T) {
		eng := New(&fakeGroups{}, nil, nil)
		_, err := eng.ProcessTransaction(context.Background(), sampleTransaction())
		require.ErrorIs(t, err, common.ErrNoActiveGroups)
	})
}

func TestEngine_GroupExecutionOrder(t *testing.T) {
	// Both rules match; the catalog arrives unsorted and the group with
	// the lower execution order must win the last write.
	groups := []model.RuleGroup{
		{ID: "g2", Name: "late", IsActive: true, ExecutionOrder: 5, Rules: []model.Rule{
			categoryRule("r2", "late-rule", "albert", "Late"),
		}},
		{ID: "g1", Name: "early", IsActive: true, ExecutionOrder: 1, Rules: []model.Rule{
			categoryRule("r1", "early-rule", "albert", "Early"),
		}},
	}
	eng := New(&fakeGroups{groups: groups}, nil, nil)

	txn := sampleTransaction()
	result := eng.ProcessWithGroups(context.Background(), txn, groups)

	assert.Equal(t, []string{"early-rule", "late-rule"}, result.MatchedRules)
	assert.Equal(t, "Late", txn.Category)
}

func TestEngine_InactiveGroupsAndRulesSkipped(t *testing.T) {
	inactiveRule := categoryRule("r2", "dormant", "albert", "Dormant")
	inactiveRule.IsActive = false

	groups := []model.RuleGroup{
		{ID: "g1", Name: "off", IsActive: false, ExecutionOrder: 0, Rules: []model.Rule{
			categoryRule("r0", "off-rule", "albert", "Off"),
		}},
		{ID: "g2", Name: "on", IsActive: true, ExecutionOrder: 1, Rules: []model.Rule{
			inactiveRule,
			categoryRule("r1", "live", "albert", "Live"),
		}},
	}

	stats := newCountingStats()
	eng := New(&fakeGroups{groups: groups}, nil, stats)

	txn := sampleTransaction()
	result := eng.ProcessWithGroups(context.Background(), txn, groups)

	assert.Equal(t, []string{"live"}, result.MatchedRules)
	assert.Equal(t, "Live", txn.Category)
	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Zero(t, stats.evaluations["r0"])
	assert.Zero(t, stats.evaluations["r2"])
	assert.Equal(t, 1, stats.evaluations["r1"])
}

func TestEngine_StopProcessingHaltsPipeline(t *testing.T) {
	first := categoryRule("r1", "first", "albert", "First")
	first.StopProcessing = true
	second := categoryRule("r2", "second", "albert", "Second")

	catalog := singleGroupCatalog(first, second)
	stats := newCountingStats()
	eng := New(&fakeGroups{groups: catalog}, nil, stats)

	txn := sampleTransaction()
	result := eng.ProcessWithGroups(context.Background(), txn, catalog)

	assert.True(t, result.Halted)
	assert.Equal(t, []string{"first"}, result.MatchedRules)
	assert.Equal(t, "First", txn.Category)
	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Zero(t, stats.evaluations["r2"])
}

func TestEngine_LaterRulesSeeEarlierMutations(t *testing.T) {
	standardize := model.Rule{
		ID: "r1", Name: "standardize", IsActive: true,
		TriggerLogic: model.LogicAll,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldCounterName, Operator: model.OpContains, Value: "albert"},
		},
		Actions: []model.RuleAction{
			{Type: model.ActionSetCounterName, Value: "Albert Heijn B.V."},
		},
	}
	categorize := model.Rule{
		ID: "r2", Name: "categorize", IsActive: true,
		TriggerLogic: model.LogicAll,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldCounterName, Operator: model.OpEquals, Value: "Albert Heijn B.V."},
		},
		Actions: []model.RuleAction{
			{Type: model.ActionSetCategory, Value: "Groceries"},
		},
	}

	catalog := singleGroupCatalog(standardize, categorize)
	eng := New(&fakeGroups{groups: catalog}, nil, nil)

	txn := sampleTransaction()
	result := eng.ProcessWithGroups(context.Background(), txn, catalog)

	assert.Equal(t, []string{"standardize", "categorize"}, result.MatchedRules)
	assert.Equal(t, "Groceries", txn.Category)
}

func TestEngine_EvaluationErrorsAreNotFatal(t *testing.T) {
	broken := model.Rule{
		ID: "r1", Name: "broken", IsActive: true,
		TriggerLogic: model.LogicAll,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldAmount, Operator: model.OpGreaterThan, Value: "garbage"},
		},
		Actions: []model.RuleAction{{Type: model.ActionSetCategory, Value: "Never"}},
	}
	catalog := singleGroupCatalog(broken, categoryRule("r2", "fine", "albert", "Fine"))

	stats := newCountingStats()
	eng := New(&fakeGroups{groups: catalog}, nil, stats)

	txn := sampleTransaction()
	result := eng.ProcessWithGroups(context.Background(), txn, catalog)

	assert.Equal(t, []string{"fine"}, result.MatchedRules)
	assert.Equal(t, "Fine", txn.Category)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, stats.errors["r1"])
	assert.Equal(t, 1, stats.evaluations["r1"])
	assert.Zero(t, stats.matches["r1"])
}

func TestEngine_WithRegexBudget(t *testing.T) {
	slow := model.Rule{
		ID: "r1", Name: "slow-pattern", IsActive: true,
		TriggerLogic: model.LogicAll,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldDescription, Operator: model.OpMatchesRegex, Value: "heijn \\d+$"},
		},
		Actions: []model.RuleAction{{Type: model.ActionSetCategory, Value: "Never"}},
	}
	catalog := singleGroupCatalog(slow)

	stats := newCountingStats()
	eng := New(&fakeGroups{groups: catalog}, nil, stats,
		WithRegexBudget(1*time.Nanosecond))

	txn := sampleTransaction()
	txn.Description = strings.Repeat("albert heijn ", 100000)

	result := eng.ProcessWithGroups(context.Background(), txn, catalog)

	assert.Empty(t, result.MatchedRules)
	assert.Empty(t, txn.Category)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "budget")
	assert.Equal(t, 1, stats.errors["r1"])
}

func TestEngine_Idempotence(t *testing.T) {
	catalog := singleGroupCatalog(categoryRule("r1", "groceries", "albert heijn", "Groceries"))
	eng := New(&fakeGroups{groups: catalog}, nil, nil)

	txn := sampleTransaction()
	first := eng.ProcessWithGroups(context.Background(), txn, catalog)
	second := eng.ProcessWithGroups(context.Background(), txn, catalog)

	assert.Equal(t, first.MatchedRules, second.MatchedRules)
	assert.Equal(t, "Groceries", txn.Category)
	assert.Equal(t, []string{"groceries", "daily"}, txn.Tags)
}

func TestEngine_MatchCountLocalCache(t *testing.T) {
	catalog := singleGroupCatalog(categoryRule("r1", "groceries", "albert", "Groceries"))
	eng := New(&fakeGroups{groups: catalog}, nil, nil)

	eng.ProcessWithGroups(context.Background(), sampleTransaction(), catalog)
	eng.ProcessWithGroups(context.Background(), sampleTransaction(), catalog)

	assert.EqualValues(t, 2, catalog[0].Rules[0].MatchCount)
	assert.False(t, catalog[0].Rules[0].LastMatchedAt.IsZero())
}

func TestEngine_MarkedForDelete(t *testing.T) {
	cleanup := model.Rule{
		ID: "r1", Name: "drop-internal", IsActive: true,
		TriggerLogic: model.LogicAll,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldDescription, Operator: model.OpContains, Value: "albert"},
		},
		Actions: []model.RuleAction{{Type: model.ActionDeleteTransaction}},
	}
	catalog := singleGroupCatalog(cleanup)
	eng := New(&fakeGroups{groups: catalog}, nil, nil)

	txn := sampleTransaction()
	result := eng.ProcessWithGroups(context.Background(), txn, catalog)

	assert.True(t, result.MarkedForDelete)
	assert.True(t, txn.Deleted)
}

func TestValidateCatalog(t *testing.T) {
	good := singleGroupCatalog(categoryRule("r1", "ok", "albert", "Groceries"))
	require.NoError(t, ValidateCatalog(good))

	bad := singleGroupCatalog(model.Rule{
		ID: "r1", Name: "bad", IsActive: true, TriggerLogic: "sometimes",
	})
	err := ValidateCatalog(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trigger logic")
}
