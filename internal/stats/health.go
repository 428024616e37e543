package stats

import (
	"time"

	"github.com/ledgersmith/rulekit/internal/model"
)

// HealthBucket labels an aggregate health score.
type HealthBucket string

// Health buckets.
const (
	BucketExcellent      HealthBucket = "Excellent"
	BucketGood           HealthBucket = "Good"
	BucketFair           HealthBucket = "Fair"
	BucketNeedsAttention HealthBucket = "NeedsAttention"
)

// RuleHealth pairs one rule's statistics with its performance category.
type RuleHealth struct {
	Statistics model.RuleStatistics
	Category   model.PerformanceCategory
}

// HealthReport summarizes catalog-wide rule health. The aggregate score
// is the mean of three components, each clipped to [0,100]: evaluation
// latency, error rate, and the fraction of unused rules.
type HealthReport struct {
	Rules            []RuleHealth
	Score            float64
	LatencyComponent float64
	ErrorComponent   float64
	UsageComponent   float64
	TotalRules       int
	UnusedRules      int
	Bucket           HealthBucket
}

// BuildHealthReport derives a health report from a statistics snapshot.
func BuildHealthReport(snapshot []model.RuleStatistics, now time.Time) HealthReport {
	report := HealthReport{TotalRules: len(snapshot)}

	if len(snapshot) == 0 {
		report.Score = 100
		report.LatencyComponent = 100
		report.ErrorComponent = 100
		report.UsageComponent = 100
		report.Bucket = bucketFor(report.Score)
		return report
	}

	var (
		totalAvgMs  float64
		totalErrors int64
		totalMatch  int64
	)

	for i := range snapshot {
		entry := snapshot[i]
		category := entry.PerformanceCategory(now)
		if category == model.PerformanceUnused {
			report.UnusedRules++
		}
		report.Rules = append(report.Rules, RuleHealth{
			Statistics: entry,
			Category:   category,
		})
		totalAvgMs += entry.AverageEvaluationTimeMs
		totalErrors += entry.ErrorCount
		totalMatch += entry.MatchCount
	}

	// Latency: 0ms mean scores 100, a 20ms mean (the needsOptimization
	// threshold) scores 0.
	meanAvgMs := totalAvgMs / float64(len(snapshot))
	report.LatencyComponent = clip(100 - meanAvgMs*5)

	errorRate := 0.0
	if totalMatch > 0 {
		errorRate = float64(totalErrors) / float64(totalMatch) * 100
	}
	report.ErrorComponent = clip(100 - errorRate)

	unusedFraction := float64(report.UnusedRules) / float64(len(snapshot))
	report.UsageComponent = clip(100 - unusedFraction*100)

	report.Score = (report.LatencyComponent + report.ErrorComponent + report.UsageComponent) / 3
	report.Bucket = bucketFor(report.Score)
	return report
}

func bucketFor(score float64) HealthBucket {
	switch {
	case score >= 90:
		return BucketExcellent
	case score >= 70:
		return BucketGood
	case score >= 50:
		return BucketFair
	default:
		return BucketNeedsAttention
	}
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
