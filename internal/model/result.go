package model

import "time"

// ActionResult reports the outcome of one executed action.
type ActionResult struct {
	Type    ActionType
	Message string
	Success bool
}

// RuleExecutionResult summarizes one transaction's pass through the
// rule pipeline. Value object, never persisted.
type RuleExecutionResult struct {
	TransactionID    string
	MatchedRules     []string
	Errors           []string
	RulesEvaluated   int
	RulesExecuted    int
	ActionsPerformed int
	Elapsed          time.Duration
	Halted           bool
	MarkedForDelete  bool
}

// BulkExecutionResult summarizes one bulk run. Value object, never
// persisted.
type BulkExecutionResult struct {
	StartedAt             time.Time
	FinishedAt            time.Time
	ErrorSummary          map[string]int
	DeletedTransactionIDs []string
	TotalProcessed        int
	SuccessfullyProcessed int
	Failed                int
	TotalActions          int
	TotalMatches          int
	ThroughputPerSecond   float64
}

// Elapsed returns the wall-clock duration of the bulk run.
func (r *BulkExecutionResult) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// BulkProgress is emitted after each processed chunk so a caller can
// render status without blocking the workers.
type BulkProgress struct {
	Processed int
	Total     int
	Failed    int
}

// Category represents a known target category for set_category actions.
type Category struct {
	CreatedAt   time.Time
	ID          string
	Name        string
	Description string
	IsActive    bool
}
