package model

import "time"

// emaWeight is the smoothing factor for the rolling evaluation-time average.
const emaWeight = 0.1

// PerformanceCategory buckets a rule's health for reporting.
type PerformanceCategory string

// Performance categories.
const (
	PerformanceUnused            PerformanceCategory = "unused"
	PerformanceNeedsOptimization PerformanceCategory = "needsOptimization"
	PerformanceExcellent         PerformanceCategory = "excellent"
	PerformanceGood              PerformanceCategory = "good"
)

// RuleStatistics holds the authoritative counters for one rule, keyed by
// the rule's stable identifier rather than object identity.
type RuleStatistics struct {
	LastMatchedAt           time.Time
	LastBulkProcessedAt     time.Time
	RuleID                  string
	MatchCount              int64
	TotalEvaluations        int64
	ErrorCount              int64
	AverageEvaluationTimeMs float64
}

// RecordEvaluation counts one evaluation of the rule, matched or not.
func (s *RuleStatistics) RecordEvaluation() {
	s.TotalEvaluations++
}

// RecordMatch counts a match and folds the observed evaluation time into
// the exponential moving average (weight 0.1, seeded from 0).
func (s *RuleStatistics) RecordMatch(elapsedMs float64, at time.Time) {
	s.MatchCount++
	s.LastMatchedAt = at
	s.AverageEvaluationTimeMs = s.AverageEvaluationTimeMs*(1-emaWeight) + elapsedMs*emaWeight
}

// RecordError counts one evaluation or action error for the rule.
func (s *RuleStatistics) RecordError() {
	s.ErrorCount++
}

// MatchRatePercentage returns matches/evaluations as a percentage,
// 0 when the rule was never evaluated.
func (s *RuleStatistics) MatchRatePercentage() float64 {
	if s.TotalEvaluations == 0 {
		return 0
	}
	return float64(s.MatchCount) / float64(s.TotalEvaluations) * 100
}

// ErrorRatePercentage returns errors/matches as a percentage,
// 0 when the rule never matched.
func (s *RuleStatistics) ErrorRatePercentage() float64 {
	if s.MatchCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.MatchCount) * 100
}

// PerformanceCategory classifies the rule's health as of now.
func (s *RuleStatistics) PerformanceCategory(now time.Time) PerformanceCategory {
	staleCutoff := now.AddDate(0, 0, -7)
	if s.LastMatchedAt.Before(staleCutoff) && s.MatchRatePercentage() < 1 {
		return PerformanceUnused
	}
	if s.AverageEvaluationTimeMs > 20 || s.ErrorRatePercentage() > 10 {
		return PerformanceNeedsOptimization
	}
	if s.AverageEvaluationTimeMs < 5 && s.ErrorRatePercentage() < 1 && s.MatchRatePercentage() > 5 {
		return PerformanceExcellent
	}
	return PerformanceGood
}

// Reset clears all counters, keeping the rule identifier.
func (s *RuleStatistics) Reset() {
	s.MatchCount = 0
	s.TotalEvaluations = 0
	s.ErrorCount = 0
	s.AverageEvaluationTimeMs = 0
	s.LastMatchedAt = time.Time{}
	s.LastBulkProcessedAt = time.Time{}
}
