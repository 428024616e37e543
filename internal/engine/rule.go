package engine

import (
	"sort"
	"time"

	"github.com/ledgersmith/rulekit/internal/model"
)

// RuleEvaluator combines a rule's trigger results under ALL/ANY logic.
type RuleEvaluator struct {
	triggers *TriggerEvaluator
}

// NewRuleEvaluator creates a rule evaluator on top of a trigger evaluator.
func NewRuleEvaluator(triggers *TriggerEvaluator) *RuleEvaluator {
	return &RuleEvaluator{triggers: triggers}
}

// Match evaluates the rule's triggers in sort order with short-circuit:
// ALL stops at the first failure, ANY at the first success. A rule with
// zero triggers never matches. Evaluation errors degrade the offending
// trigger to false and are returned for statistics.
func (e *RuleEvaluator) Match(rule *model.Rule, txn *model.Transaction, now time.Time) (bool, []error) {
	if len(rule.Triggers) == 0 {
		return false, nil
	}

	triggers := orderedTriggers(rule.Triggers)

	var errs []error
	switch rule.TriggerLogic {
	case model.LogicAny:
		for _, trigger := range triggers {
			ok, err := e.triggers.Evaluate(trigger, txn, now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				return true, errs
			}
		}
		return false, errs

	default: // model.LogicAll
		for _, trigger := range triggers {
			ok, err := e.triggers.Evaluate(trigger, txn, now)
			if err != nil {
				errs = append(errs, err)
				return false, errs
			}
			if !ok {
				return false, errs
			}
		}
		return true, errs
	}
}

func orderedTriggers(triggers []model.RuleTrigger) []model.RuleTrigger {
	if sort.SliceIsSorted(triggers, func(i, j int) bool {
		return triggers[i].SortOrder < triggers[j].SortOrder
	}) {
		return triggers
	}
	ordered := append([]model.RuleTrigger(nil), triggers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})
	return ordered
}
