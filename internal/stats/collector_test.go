package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/rulekit/internal/model"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestCollector_MatchRate(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	const evaluations = 40
	const matches = 7

	for i := 0; i < evaluations; i++ {
		c.RecordEvaluation("r1")
	}
	for i := 0; i < matches; i++ {
		c.RecordMatch("r1", 1.0)
	}
	c.Flush()

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.EqualValues(t, evaluations, entry.TotalEvaluations)
	assert.EqualValues(t, matches, entry.MatchCount)
	assert.InDelta(t, float64(matches)/float64(evaluations)*100, entry.MatchRatePercentage(), 0.01)
	assert.Equal(t, fixedNow, entry.LastMatchedAt)
}

func TestCollector_AverageIsExponentialMovingAverage(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	samples := []float64{10, 20, 5, 40}
	for _, ms := range samples {
		c.RecordMatch("r1", ms)
	}
	c.Flush()

	want := 0.0
	for _, ms := range samples {
		want = want*0.9 + ms*0.1
	}

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.InDelta(t, want, entry.AverageEvaluationTimeMs, 1e-9)
}

func TestCollector_ErrorRate(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.RecordMatch("r1", 1.0)
	}
	c.RecordError("r1")
	c.RecordError("r1")
	c.Flush()

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.EqualValues(t, 2, entry.ErrorCount)
	assert.InDelta(t, 20.0, entry.ErrorRatePercentage(), 0.01)
}

func TestCollector_GetUnknownRule(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	assert.Nil(t, c.Get("never-seen"))
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	c.RecordEvaluation("r1")
	c.RecordMatch("r1", 3.0)
	c.RecordError("r1")
	c.Reset("r1")

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.Zero(t, entry.TotalEvaluations)
	assert.Zero(t, entry.MatchCount)
	assert.Zero(t, entry.ErrorCount)
	assert.Zero(t, entry.AverageEvaluationTimeMs)
	assert.True(t, entry.LastMatchedAt.IsZero())
	assert.Equal(t, "r1", entry.RuleID)
}

func TestCollector_Seed(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	c.Seed([]model.RuleStatistics{
		{RuleID: "r1", MatchCount: 12, TotalEvaluations: 100},
	})
	c.RecordEvaluation("r1")
	c.RecordMatch("r1", 2.0)
	c.Flush()

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.EqualValues(t, 101, entry.TotalEvaluations)
	assert.EqualValues(t, 13, entry.MatchCount)
}

func TestCollector_SnapshotSortedCopies(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	c.RecordEvaluation("charlie")
	c.RecordEvaluation("alpha")
	c.RecordEvaluation("bravo")

	snapshot := c.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "alpha", snapshot[0].RuleID)
	assert.Equal(t, "bravo", snapshot[1].RuleID)
	assert.Equal(t, "charlie", snapshot[2].RuleID)

	// Mutating the snapshot never leaks back into the collector.
	snapshot[0].MatchCount = 999
	assert.Zero(t, c.Get("alpha").MatchCount)
}

func TestCollector_MarkBulkProcessed(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	c.MarkBulkProcessed("r1")
	c.Flush()

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.Equal(t, fixedNow, entry.LastBulkProcessedAt)
}

func TestCollector_FlushAfterClose(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	c.RecordEvaluation("r1")
	c.Close()

	// Must not deadlock.
	c.Flush()
	assert.EqualValues(t, 1, c.Get("r1").TotalEvaluations)
}

func TestCollector_RecordAfterCloseIsDropped(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	c.RecordEvaluation("r1")
	c.Close()

	// Late recorders must be silently dropped, never panic.
	c.RecordEvaluation("r1")
	c.RecordMatch("r1", 1.0)
	c.RecordError("r1")
	c.MarkBulkProcessed("r1")
	c.Reset("r1")

	entry := c.Get("r1")
	require.NotNil(t, entry)
	assert.EqualValues(t, 1, entry.TotalEvaluations)
	assert.Zero(t, entry.MatchCount)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollectorWithClock(fixedClock)
	defer c.Close()

	const goroutines = 8
	const perGoroutine = 100

	done := make(chan struct{})
	for g := 0; g < goroutines; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perGoroutine; i++ {
				c.RecordEvaluation("shared")
			}
		}()
	}
	for g := 0; g < goroutines; g++ {
		<-done
	}
	c.Flush()

	assert.EqualValues(t, goroutines*perGoroutine, c.Get("shared").TotalEvaluations)
}
