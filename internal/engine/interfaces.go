package engine

// StatsRecorder receives per-rule evaluation telemetry. Implementations
// must not block the caller: the engine emits these on the hot path.
type StatsRecorder interface {
	RecordEvaluation(ruleID string)
	RecordMatch(ruleID string, elapsedMs float64)
	RecordError(ruleID string)
}

// discardRecorder drops all telemetry. Manual rule testing runs with it
// so experiments never skew the global statistics.
type discardRecorder struct{}

func (discardRecorder) RecordEvaluation(string)      {}
func (discardRecorder) RecordMatch(string, float64)  {}
func (discardRecorder) RecordError(string)           {}

// DiscardStats is a StatsRecorder that drops everything.
var DiscardStats StatsRecorder = discardRecorder{}
