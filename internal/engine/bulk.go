package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
)

// BulkOptions configures a bulk run.
type BulkOptions struct {
	// Progress, when set, is called after each processed chunk. It runs
	// on the collector goroutine, never on a worker.
	Progress func(model.BulkProgress)
	// Workers bounds the worker pool; 0 means runtime.NumCPU().
	Workers int
	// ChunkSize controls progress granularity; 0 means 100.
	ChunkSize int
}

// DefaultBulkOptions returns sensible defaults.
func DefaultBulkOptions() BulkOptions {
	return BulkOptions{
		Workers:   runtime.NumCPU(),
		ChunkSize: 100,
	}
}

// BulkMarker is implemented by stats sinks that track when a rule last
// took part in a bulk run.
type BulkMarker interface {
	MarkBulkProcessed(ruleID string)
}

type bulkOutcome struct {
	result *model.RuleExecutionResult
	err    error
	index  int
}

// ProcessBulk fans the records through the rule pipeline with bounded
// concurrency. One record's failure is counted and never aborts the
// batch; cancellation is cooperative and checked between records.
// Records marked for deletion are reported in the result's post-pass
// list, never removed mid-iteration.
func (e *Engine) ProcessBulk(ctx context.Context, txns []*model.Transaction, opts BulkOptions) (*model.BulkExecutionResult, error) {
	groups, err := e.groups.GetActiveRuleGroups(ctx)
	if err != nil {
		return nil, &common.EngineError{Op: "fetch groups", Err: err}
	}
	if len(groups) == 0 {
		return nil, &common.EngineError{Op: "fetch groups", Err: common.ErrNoActiveGroups}
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}

	started := time.Now()
	result := &model.BulkExecutionResult{
		StartedAt:    started,
		ErrorSummary: make(map[string]int),
	}

	slog.Info("Starting bulk rule run",
		"transactions", len(txns),
		"groups", len(groups),
		"workers", opts.Workers)

	workChan := make(chan int, len(txns))
	for i := range txns {
		workChan <- i
	}
	close(workChan)

	outcomes := make(chan bulkOutcome, len(txns))

	var wg sync.WaitGroup
	wg.Add(opts.Workers)
	for w := 0; w < opts.Workers; w++ {
		go func() {
			defer wg.Done()
			e.bulkWorker(ctx, groups, txns, workChan, outcomes)
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Collect results; aggregate-only ordering guarantees across records.
	sinceProgress := 0
	for outcome := range outcomes {
		result.TotalProcessed++
		if outcome.err != nil {
			result.Failed++
			result.ErrorSummary[outcome.err.Error()]++
		} else {
			result.SuccessfullyProcessed++
			result.TotalMatches += outcome.result.RulesExecuted
			result.TotalActions += outcome.result.ActionsPerformed
			for _, msg := range outcome.result.Errors {
				result.ErrorSummary[msg]++
			}
		}

		sinceProgress++
		if opts.Progress != nil && (sinceProgress >= opts.ChunkSize || result.TotalProcessed == len(txns)) {
			opts.Progress(model.BulkProgress{
				Processed: result.TotalProcessed,
				Total:     len(txns),
				Failed:    result.Failed,
			})
			sinceProgress = 0
		}
	}

	// Deletion post-pass: deletes are only collected here, after every
	// worker has stopped iterating.
	for _, txn := range txns {
		if txn != nil && txn.Deleted {
			result.DeletedTransactionIDs = append(result.DeletedTransactionIDs, txn.ID)
		}
	}

	if marker, ok := e.stats.(BulkMarker); ok {
		for gi := range groups {
			for ri := range groups[gi].Rules {
				marker.MarkBulkProcessed(groups[gi].Rules[ri].ID)
			}
		}
	}

	result.FinishedAt = time.Now()
	if elapsed := result.Elapsed().Seconds(); elapsed > 0 {
		result.ThroughputPerSecond = float64(result.TotalProcessed) / elapsed
	}

	slog.Info("Bulk rule run finished",
		"processed", result.TotalProcessed,
		"failed", result.Failed,
		"matches", result.TotalMatches,
		"throughput_per_sec", fmt.Sprintf("%.0f", result.ThroughputPerSecond))

	if ctx.Err() != nil {
		// Mutations already applied to processed records are retained.
		return result, ctx.Err()
	}
	return result, nil
}

func (e *Engine) bulkWorker(ctx context.Context, groups []model.RuleGroup, txns []*model.Transaction, workChan <-chan int, outcomes chan<- bulkOutcome) {
	for index := range workChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := e.processIsolated(ctx, txns[index], groups)
		outcomes <- bulkOutcome{index: index, result: result, err: err}
	}
}

// processIsolated converts a per-record panic into a failed outcome so
// one bad record cannot take down the batch.
func (e *Engine) processIsolated(ctx context.Context, txn *model.Transaction, groups []model.RuleGroup) (result *model.RuleExecutionResult, err error) {
	id := "unknown"
	if txn != nil {
		id = txn.ID
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction %s: panic during rule processing: %v", id, r)
			slog.Error("Recovered panic in bulk worker", "transaction", id, "panic", r)
		}
	}()

	return e.ProcessWithGroups(ctx, txn, groups), nil
}

// ExecuteRulesManually evaluates a caller-chosen subset of groups
// against the records, sequentially and against a discard statistics
// sink, so "test this rule" workflows never skew global statistics.
func (e *Engine) ExecuteRulesManually(ctx context.Context, txns []*model.Transaction, groups []model.RuleGroup) ([]*model.RuleExecutionResult, error) {
	if len(groups) == 0 {
		return nil, &common.EngineError{Op: "manual run", Err: common.ErrNoActiveGroups}
	}
	// The caller hands us an arbitrary catalog here, unlike the bulk
	// path which loads persisted (already validated) groups.
	if err := ValidateCatalog(groups); err != nil {
		return nil, &common.EngineError{Op: "manual run", Err: err}
	}

	manual := &Engine{
		groups:  e.groups,
		rules:   e.rules,
		actions: e.actions,
		stats:   DiscardStats,
		clock:   e.clock,
	}

	results := make([]*model.RuleExecutionResult, 0, len(txns))
	for _, txn := range txns {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, manual.ProcessWithGroups(ctx, txn, groups))
	}
	return results, nil
}
