package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
	"github.com/ledgersmith/rulekit/internal/service"
)

// Engine orchestrates the rule pipeline for single transactions: active
// groups in execution order, active rules in stable creation rank,
// evaluate, execute, halt on stop-processing.
type Engine struct {
	groups  service.GroupSource
	rules   *RuleEvaluator
	actions *ActionExecutor
	stats   StatsRecorder
	clock   func() time.Time
	// localMu serializes the rule-local match cache; bulk workers share
	// the loaded catalog.
	localMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the evaluation clock. Tests use it to pin
// relative-date triggers.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithRegexBudget overrides the per-trigger regex match budget.
func WithRegexBudget(d time.Duration) Option {
	return func(e *Engine) {
		e.rules.triggers.SetRegexBudget(d)
	}
}

// New creates an engine. groups supplies the active rule catalog,
// categories validates set_category targets (nil accepts any), and stats
// receives per-rule telemetry (nil discards it).
func New(groups service.GroupSource, categories service.CategorySource, stats StatsRecorder, opts ...Option) *Engine {
	if stats == nil {
		stats = DiscardStats
	}
	e := &Engine{
		groups:  groups,
		rules:   NewRuleEvaluator(NewTriggerEvaluator()),
		actions: NewActionExecutor(categories),
		stats:   stats,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessTransaction runs the full pipeline over one transaction,
// mutating it in place. Only catalog fetch failures are fatal; trigger
// and action errors are folded into the result and statistics.
func (e *Engine) ProcessTransaction(ctx context.Context, txn *model.Transaction) (*model.RuleExecutionResult, error) {
	groups, err := e.groups.GetActiveRuleGroups(ctx)
	if err != nil {
		return nil, &common.EngineError{Op: "fetch groups", Err: err}
	}
	if len(groups) == 0 {
		return nil, &common.EngineError{Op: "fetch groups", Err: common.ErrNoActiveGroups}
	}
	return e.ProcessWithGroups(ctx, txn, groups), nil
}

// ProcessWithGroups runs the pipeline against an already-loaded group
// set. Bulk runs load the catalog once and call this per record.
//
// The pipeline mutates the record directly, so a rule reached later in
// the same pass observes fields already rewritten by earlier rules: a
// counterparty-standardization rule followed by a category rule on
// counter_name matches the standardized name, not the original.
func (e *Engine) ProcessWithGroups(ctx context.Context, txn *model.Transaction, groups []model.RuleGroup) *model.RuleExecutionResult {
	started := e.clock()
	result := &model.RuleExecutionResult{TransactionID: txn.ID}

	ordered := orderedGroups(groups)

pipeline:
	for gi := range ordered {
		group := &ordered[gi]
		if !group.IsActive {
			continue
		}
		for ri := range group.Rules {
			rule := &group.Rules[ri]
			if !rule.IsActive {
				continue
			}

			halted := e.processRule(ctx, rule, txn, result)
			if halted {
				result.Halted = true
				break pipeline
			}
		}
	}

	result.Elapsed = e.clock().Sub(started)
	result.MarkedForDelete = txn.Deleted
	return result
}

// processRule evaluates one rule and, on match, executes its actions.
// Returns true when the rule matched and carries the pipeline-level
// stop-processing flag.
func (e *Engine) processRule(ctx context.Context, rule *model.Rule, txn *model.Transaction, result *model.RuleExecutionResult) bool {
	evalStart := e.clock()
	result.RulesEvaluated++
	// Every rule actually reached counts as an evaluation, matched or
	// not, so match-rate analytics stay meaningful.
	e.stats.RecordEvaluation(rule.ID)

	matched, evalErrs := e.rules.Match(rule, txn, e.clock())
	for _, evalErr := range evalErrs {
		e.stats.RecordError(rule.ID)
		result.Errors = append(result.Errors, evalErr.Error())
	}

	if !matched {
		return false
	}

	elapsedMs := float64(e.clock().Sub(evalStart).Microseconds()) / 1000.0

	result.RulesExecuted++
	result.MatchedRules = append(result.MatchedRules, rule.Name)

	actionResults, actionErrs := e.actions.Execute(ctx, rule, txn)
	for _, ar := range actionResults {
		if ar.Success {
			result.ActionsPerformed++
		}
	}
	for _, actionErr := range actionErrs {
		e.stats.RecordError(rule.ID)
		result.Errors = append(result.Errors, actionErr.Error())
	}

	e.stats.RecordMatch(rule.ID, elapsedMs)

	// Best-effort local cache for immediate feedback; the statistics
	// collector remains authoritative.
	matchedAt := e.clock()
	e.localMu.Lock()
	rule.MatchCount++
	rule.LastMatchedAt = matchedAt
	e.localMu.Unlock()

	slog.Debug("rule matched",
		"rule", rule.Name,
		"transaction", txn.ID,
		"actions", len(actionResults),
		"stop_processing", rule.StopProcessing)

	return rule.StopProcessing
}

// orderedGroups returns groups sorted by execution order, ascending,
// keeping the stored order of rules inside each group.
func orderedGroups(groups []model.RuleGroup) []model.RuleGroup {
	if sort.SliceIsSorted(groups, func(i, j int) bool {
		return groups[i].ExecutionOrder < groups[j].ExecutionOrder
	}) {
		return groups
	}
	ordered := append([]model.RuleGroup(nil), groups...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutionOrder < ordered[j].ExecutionOrder
	})
	return ordered
}

// ValidateCatalog checks authoring-time constraints over a group set.
// Manual runs call it before evaluating caller-supplied catalogs;
// storage applies the same per-rule checks before persisting. Evaluation
// itself stays free of compatibility checks.
func ValidateCatalog(groups []model.RuleGroup) error {
	for gi := range groups {
		for ri := range groups[gi].Rules {
			if err := groups[gi].Rules[ri].Validate(); err != nil {
				return fmt.Errorf("group %q: %w", groups[gi].Name, err)
			}
		}
	}
	return nil
}
