// Package stats aggregates per-rule evaluation telemetry off the
// engine's hot path and derives rule health reports.
package stats

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ledgersmith/rulekit/internal/model"
	"github.com/ledgersmith/rulekit/internal/service"
)

// defaultBufferSize bounds the event channel. The writer only touches
// in-memory counters, so the buffer absorbs bursts without the matching
// path ever waiting on statistics persistence.
const defaultBufferSize = 4096

type eventKind int

const (
	evalEvent eventKind = iota
	matchEvent
	errorEvent
	bulkEvent
	resetEvent
	flushEvent
)

type event struct {
	at        time.Time
	ack       chan struct{}
	ruleID    string
	elapsedMs float64
	kind      eventKind
}

// Collector buffers rule telemetry on a bounded channel drained by a
// single writer goroutine. Entries are created lazily on a rule's first
// evaluation and are keyed by the rule's stable identifier.
type Collector struct {
	clock     func() time.Time
	events    chan event
	done      chan struct{}
	stats     map[string]*model.RuleStatistics
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewCollector starts a collector with the default buffer size.
func NewCollector() *Collector {
	return NewCollectorWithClock(time.Now)
}

// NewCollectorWithClock starts a collector using the given clock.
func NewCollectorWithClock(clock func() time.Time) *Collector {
	c := &Collector{
		clock:  clock,
		events: make(chan event, defaultBufferSize),
		done:   make(chan struct{}),
		stats:  make(map[string]*model.RuleStatistics),
	}
	go c.drain()
	return c
}

// Seed loads previously persisted statistics, replacing any current entry
// for the same rule.
func (c *Collector) Seed(persisted []model.RuleStatistics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range persisted {
		entry := persisted[i]
		c.stats[entry.RuleID] = &entry
	}
}

// RecordEvaluation counts one evaluation of the rule, matched or not.
func (c *Collector) RecordEvaluation(ruleID string) {
	c.send(event{kind: evalEvent, ruleID: ruleID})
}

// RecordMatch counts a match with its evaluation time in milliseconds.
func (c *Collector) RecordMatch(ruleID string, elapsedMs float64) {
	c.send(event{kind: matchEvent, ruleID: ruleID, elapsedMs: elapsedMs, at: c.clock()})
}

// RecordError counts an evaluation or action error for the rule.
func (c *Collector) RecordError(ruleID string) {
	c.send(event{kind: errorEvent, ruleID: ruleID})
}

// MarkBulkProcessed stamps the rule as part of the latest bulk run.
func (c *Collector) MarkBulkProcessed(ruleID string) {
	c.send(event{kind: bulkEvent, ruleID: ruleID, at: c.clock()})
}

// Reset clears the counters for one rule.
func (c *Collector) Reset(ruleID string) {
	c.send(event{kind: resetEvent, ruleID: ruleID})
	c.Flush()
}

// send enqueues an event, dropping it when the collector is closed so a
// late recorder never panics on the closed channel.
func (c *Collector) send(ev event) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Flush blocks until every event queued before the call has been applied.
// Tests and persistence use it as a synchronization barrier.
func (c *Collector) Flush() {
	select {
	case <-c.done:
		// Close already drained the queue.
		return
	default:
	}

	ack := make(chan struct{})
	select {
	case c.events <- event{kind: flushEvent, ack: ack}:
		<-ack
	case <-c.done:
	}
}

// Get returns a copy of one rule's statistics, or nil when the rule was
// never evaluated. Callers wanting queued events applied first call
// Flush.
func (c *Collector) Get(ruleID string) *model.RuleStatistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.stats[ruleID]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

// Snapshot flushes the queue and returns a copy of all statistics,
// sorted by rule identifier.
func (c *Collector) Snapshot() []model.RuleStatistics {
	c.Flush()

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.RuleStatistics, 0, len(c.stats))
	for _, entry := range c.stats {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// Persist flushes and writes all statistics through the storage hook.
func (c *Collector) Persist(ctx context.Context, store service.Storage) error {
	snapshot := c.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	return store.SaveRuleStatistics(ctx, snapshot)
}

// Close stops the writer goroutine after draining queued events.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		close(c.events)
		<-c.done
	})
}

// drain is the single writer: all map mutation happens here, so the
// matching path never contends with readers on anything but a buffered
// channel send.
func (c *Collector) drain() {
	defer close(c.done)

	for ev := range c.events {
		if ev.kind == flushEvent {
			close(ev.ack)
			continue
		}

		c.mu.Lock()
		entry, ok := c.stats[ev.ruleID]
		if !ok {
			entry = &model.RuleStatistics{RuleID: ev.ruleID}
			c.stats[ev.ruleID] = entry
		}

		switch ev.kind {
		case evalEvent:
			entry.RecordEvaluation()
		case matchEvent:
			entry.RecordMatch(ev.elapsedMs, ev.at)
		case errorEvent:
			entry.RecordError()
		case bulkEvent:
			entry.LastBulkProcessedAt = ev.at
		case resetEvent:
			entry.Reset()
		}
		c.mu.Unlock()
	}

	slog.Debug("Statistics collector stopped", "rules", len(c.stats))
}
