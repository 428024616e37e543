// Package engine implements the categorization rule engine: trigger
// evaluation, action execution, the rule pipeline, and bulk processing.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
)

// DefaultRegexBudget bounds a single regex match so a pathological
// pattern cannot stall the pipeline.
const DefaultRegexBudget = 100 * time.Millisecond

// TriggerEvaluator evaluates a single trigger against a transaction.
// It never panics; malformed values degrade to a non-match plus an error.
type TriggerEvaluator struct {
	regexCache  map[string]*regexp.Regexp
	regexBudget time.Duration
	mu          sync.RWMutex
}

// NewTriggerEvaluator creates an evaluator with the default regex budget.
func NewTriggerEvaluator() *TriggerEvaluator {
	return &TriggerEvaluator{
		regexCache:  make(map[string]*regexp.Regexp),
		regexBudget: DefaultRegexBudget,
	}
}

// SetRegexBudget overrides the per-match regex time budget.
func (e *TriggerEvaluator) SetRegexBudget(d time.Duration) {
	if d > 0 {
		e.regexBudget = d
	}
}

// Evaluate applies the trigger to the transaction at the given evaluation
// time. The raw operator result is XORed with IsInverted; an evaluation
// error is never a match, inverted or not.
func (e *TriggerEvaluator) Evaluate(trigger model.RuleTrigger, txn *model.Transaction, now time.Time) (bool, error) {
	raw, err := e.evaluateRaw(trigger, txn, now)
	if err != nil {
		return false, &common.TriggerEvaluationError{
			Err:      err,
			RuleID:   trigger.RuleID,
			Field:    string(trigger.Field),
			Operator: string(trigger.Operator),
		}
	}
	return raw != trigger.IsInverted, nil
}

func (e *TriggerEvaluator) evaluateRaw(trigger model.RuleTrigger, txn *model.Transaction, now time.Time) (bool, error) {
	if !trigger.Field.Valid() {
		return false, fmt.Errorf("unknown field %q", trigger.Field)
	}

	switch trigger.Field.Kind() {
	case model.KindText:
		return e.evaluateText(trigger.Operator, textValue(txn, trigger.Field), trigger.Value)
	case model.KindDecimal:
		return evaluateDecimal(trigger.Operator, txn.Amount, trigger.Value)
	case model.KindDate:
		return evaluateDate(trigger.Operator, txn.Date, trigger.Value, now)
	case model.KindTag:
		return e.evaluateTags(trigger.Operator, txn.Tags, trigger.Value)
	default:
		return false, fmt.Errorf("unknown field kind for %q", trigger.Field)
	}
}

// textValue extracts the canonical string for a text-kind field.
func textValue(txn *model.Transaction, field model.TriggerField) string {
	switch field {
	case model.FieldDescription:
		return txn.Description
	case model.FieldCounterName:
		return txn.CounterName
	case model.FieldCounterIBAN:
		return txn.CounterIBAN
	case model.FieldOwnIBAN:
		return txn.OwnIBAN
	case model.FieldTransactionType:
		return string(txn.Type)
	case model.FieldCategory:
		return txn.EffectiveCategory()
	case model.FieldNotes:
		return txn.Notes
	case model.FieldExternalID:
		return txn.ExternalID
	case model.FieldInternalReference:
		return txn.InternalReference
	case model.FieldCurrency:
		return txn.Currency
	default:
		return ""
	}
}

// evaluateText applies a text operator case-insensitively.
func (e *TriggerEvaluator) evaluateText(op model.TriggerOperator, actual, expected string) (bool, error) {
	haystack := strings.ToLower(actual)
	needle := strings.ToLower(expected)

	switch op {
	case model.OpContains:
		return strings.Contains(haystack, needle), nil
	case model.OpNotContains:
		return !strings.Contains(haystack, needle), nil
	case model.OpStartsWith:
		return strings.HasPrefix(haystack, needle), nil
	case model.OpEndsWith:
		return strings.HasSuffix(haystack, needle), nil
	case model.OpEquals:
		return haystack == needle, nil
	case model.OpNotEquals:
		return haystack != needle, nil
	case model.OpMatchesRegex:
		return e.matchRegex(expected, actual)
	default:
		return false, fmt.Errorf("operator %q not valid for text field", op)
	}
}

// matchRegex matches case-insensitively with a compile cache and a
// bounded time budget.
func (e *TriggerEvaluator) matchRegex(pattern, text string) (bool, error) {
	re, err := e.compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(text)
	}()

	timer := time.NewTimer(e.regexBudget)
	defer timer.Stop()

	select {
	case matched := <-done:
		return matched, nil
	case <-timer.C:
		return false, fmt.Errorf("regex %q exceeded %s match budget", pattern, e.regexBudget)
	}
}

func (e *TriggerEvaluator) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.regexCache[pattern]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	// (?i) in front keeps matching case-insensitive even when the
	// authored pattern carries no flags of its own.
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.regexCache[pattern] = re
	e.mu.Unlock()
	return re, nil
}

// evaluateDecimal applies a numeric operator using exact decimal
// arithmetic, never binary floating point.
func evaluateDecimal(op model.TriggerOperator, actual decimal.Decimal, value string) (bool, error) {
	if op == model.OpBetween {
		low, high, err := parseDecimalRange(value)
		if err != nil {
			return false, err
		}
		return actual.Cmp(low) >= 0 && actual.Cmp(high) <= 0, nil
	}

	expected, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("unparsable amount %q: %w", value, err)
	}

	cmp := actual.Cmp(expected)
	switch op {
	case model.OpEquals:
		return cmp == 0, nil
	case model.OpNotEquals:
		return cmp != 0, nil
	case model.OpGreaterThan:
		return cmp > 0, nil
	case model.OpLessThan:
		return cmp < 0, nil
	case model.OpAtLeast:
		return cmp >= 0, nil
	case model.OpAtMost:
		return cmp <= 0, nil
	default:
		return false, fmt.Errorf("operator %q not valid for amount field", op)
	}
}

func parseDecimalRange(value string) (low, high decimal.Decimal, err error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return low, high, fmt.Errorf("between needs %q, got %q", "min,max", value)
	}
	low, err = decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return low, high, fmt.Errorf("unparsable range minimum %q: %w", parts[0], err)
	}
	high, err = decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return low, high, fmt.Errorf("unparsable range maximum %q: %w", parts[1], err)
	}
	if low.Cmp(high) > 0 {
		low, high = high, low
	}
	return low, high, nil
}

// evaluateDate applies a date operator at day granularity.
func evaluateDate(op model.TriggerOperator, actual time.Time, value string, now time.Time) (bool, error) {
	day := truncateToDay(actual)

	if op == model.OpBetween {
		parts := strings.SplitN(value, ",", 2)
		if len(parts) != 2 {
			return false, fmt.Errorf("between needs %q, got %q", "start,end", value)
		}
		start, err := resolveDateValue(parts[0], now)
		if err != nil {
			return false, err
		}
		end, err := resolveDateValue(parts[1], now)
		if err != nil {
			return false, err
		}
		if start.After(end) {
			start, end = end, start
		}
		return !day.Before(start) && !day.After(end), nil
	}

	target, err := resolveDateValue(value, now)
	if err != nil {
		return false, err
	}

	switch op {
	case model.OpBefore:
		return day.Before(target), nil
	case model.OpAfter:
		return day.After(target), nil
	case model.OpOn, model.OpEquals:
		return day.Equal(target), nil
	default:
		return false, fmt.Errorf("operator %q not valid for date field", op)
	}
}

var relativeDatePattern = regexp.MustCompile(`^([+-])(\d+)([dwmy])$`)

// resolveDateValue turns a trigger date value into an absolute day.
// Supported forms: 2006-01-02 dates, the keywords today/yesterday/tomorrow,
// and relative offsets +Nd, -Nw, +Nm, -Ny resolved against now.
func resolveDateValue(value string, now time.Time) (time.Time, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	today := truncateToDay(now)

	switch v {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}

	if m := relativeDatePattern.FindStringSubmatch(v); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("unparsable offset %q: %w", value, err)
		}
		if m[1] == "-" {
			n = -n
		}
		switch m[3] {
		case "d":
			return today.AddDate(0, 0, n), nil
		case "w":
			return today.AddDate(0, 0, 7*n), nil
		case "m":
			return today.AddDate(0, n, 0), nil
		case "y":
			return today.AddDate(n, 0, 0), nil
		}
	}

	parsed, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable date %q: %w", value, err)
	}
	return parsed, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// evaluateTags applies a text-style operator across the tag set.
// The positive operators succeed when any tag passes; an empty tag set
// fails them all.
func (e *TriggerEvaluator) evaluateTags(op model.TriggerOperator, tags []string, value string) (bool, error) {
	needle := strings.ToLower(value)

	switch op {
	case model.OpContains:
		return anyTag(tags, func(tag string) bool { return strings.Contains(tag, needle) }), nil
	case model.OpNotContains:
		return !anyTag(tags, func(tag string) bool { return strings.Contains(tag, needle) }), nil
	case model.OpEquals:
		return anyTag(tags, func(tag string) bool { return tag == needle }), nil
	case model.OpNotEquals:
		return !anyTag(tags, func(tag string) bool { return tag == needle }), nil
	case model.OpMatchesRegex:
		re, err := e.compile(value)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", value, err)
		}
		for _, tag := range tags {
			if re.MatchString(tag) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("operator %q not valid for tag field", op)
	}
}

func anyTag(tags []string, match func(string) bool) bool {
	for _, tag := range tags {
		if match(strings.ToLower(tag)) {
			return true
		}
	}
	return false
}
