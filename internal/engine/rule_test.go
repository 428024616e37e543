package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/rulekit/internal/model"
)

func textTrigger(field model.TriggerField, op model.TriggerOperator, value string) model.RuleTrigger {
	return model.RuleTrigger{Field: field, Operator: op, Value: value}
}

func TestRuleEvaluator_EmptyTriggersNeverMatch(t *testing.T) {
	evaluator := NewRuleEvaluator(NewTriggerEvaluator())

	for _, logic := range []model.TriggerLogic{model.LogicAll, model.LogicAny} {
		rule := &model.Rule{Name: "empty", TriggerLogic: logic, IsActive: true}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		assert.False(t, matched, "logic %s", logic)
		assert.Empty(t, errs)
	}
}

func TestRuleEvaluator_AllLogic(t *testing.T) {
	evaluator := NewRuleEvaluator(NewTriggerEvaluator())

	t.Run("every trigger must hold", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAll,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldDescription, model.OpContains, "albert heijn"),
				textTrigger(model.FieldCurrency, model.OpEquals, "EUR"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		require.Empty(t, errs)
		assert.True(t, matched)
	})

	t.Run("one failing trigger fails the rule", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAll,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldDescription, model.OpContains, "albert heijn"),
				textTrigger(model.FieldCurrency, model.OpEquals, "USD"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		require.Empty(t, errs)
		assert.False(t, matched)
	})

	t.Run("inverted failing trigger passes", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAll,
			Triggers: []model.RuleTrigger{
				{Field: model.FieldCurrency, Operator: model.OpEquals, Value: "USD", IsInverted: true},
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		require.Empty(t, errs)
		assert.True(t, matched)
	})

	t.Run("error fails the rule immediately", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAll,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldAmount, model.OpGreaterThan, "not-a-number"),
				textTrigger(model.FieldDescription, model.OpContains, "albert heijn"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		assert.False(t, matched)
		require.Len(t, errs, 1)
	})
}

func TestRuleEvaluator_AnyLogic(t *testing.T) {
	evaluator := NewRuleEvaluator(NewTriggerEvaluator())

	t.Run("first success short-circuits", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAny,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldDescription, model.OpContains, "jumbo"),
				textTrigger(model.FieldDescription, model.OpContains, "albert heijn"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		require.Empty(t, errs)
		assert.True(t, matched)
	})

	t.Run("all failing triggers fail the rule", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAny,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldDescription, model.OpContains, "jumbo"),
				textTrigger(model.FieldCurrency, model.OpEquals, "USD"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		require.Empty(t, errs)
		assert.False(t, matched)
	})

	t.Run("error skips to the next trigger", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAny,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldAmount, model.OpGreaterThan, "broken"),
				textTrigger(model.FieldDescription, model.OpContains, "albert heijn"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		assert.True(t, matched)
		require.Len(t, errs, 1)
	})

	t.Run("only errors means no match", func(t *testing.T) {
		rule := &model.Rule{
			TriggerLogic: model.LogicAny,
			Triggers: []model.RuleTrigger{
				textTrigger(model.FieldAmount, model.OpGreaterThan, "broken"),
				textTrigger(model.FieldDate, model.OpBefore, "also-broken"),
			},
		}
		matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
		assert.False(t, matched)
		require.Len(t, errs, 2)
	})
}

func TestRuleEvaluator_TriggerSortOrder(t *testing.T) {
	evaluator := NewRuleEvaluator(NewTriggerEvaluator())

	// The erroring trigger sorts last; under ANY logic the earlier
	// success short-circuits before it is reached.
	rule := &model.Rule{
		TriggerLogic: model.LogicAny,
		Triggers: []model.RuleTrigger{
			{Field: model.FieldAmount, Operator: model.OpGreaterThan, Value: "broken", SortOrder: 1},
			{Field: model.FieldDescription, Operator: model.OpContains, Value: "albert heijn", SortOrder: 0},
		},
	}
	matched, errs := evaluator.Match(rule, sampleTransaction(), evalTime)
	assert.True(t, matched)
	assert.Empty(t, errs)
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    model.Rule
		wantErr string
	}{
		{
			name: "valid rule",
			rule: model.Rule{
				Name:         "ok",
				TriggerLogic: model.LogicAll,
				Triggers:     []model.RuleTrigger{textTrigger(model.FieldAmount, model.OpLessThan, "0")},
				Actions:      []model.RuleAction{{Type: model.ActionSetCategory, Value: "Groceries"}},
			},
		},
		{
			name:    "unknown logic",
			rule:    model.Rule{Name: "bad", TriggerLogic: "most"},
			wantErr: "unknown trigger logic",
		},
		{
			name: "operator incompatible with field",
			rule: model.Rule{
				Name:         "bad",
				TriggerLogic: model.LogicAll,
				Triggers:     []model.RuleTrigger{textTrigger(model.FieldAmount, model.OpStartsWith, "12")},
			},
			wantErr: "not valid for field",
		},
		{
			name: "unknown action type",
			rule: model.Rule{
				Name:         "bad",
				TriggerLogic: model.LogicAll,
				Actions:      []model.RuleAction{{Type: "explode"}},
			},
			wantErr: "unknown action type",
		},
		{
			name: "missing required action value",
			rule: model.Rule{
				Name:         "bad",
				TriggerLogic: model.LogicAll,
				Actions:      []model.RuleAction{{Type: model.ActionSetCategory}},
			},
			wantErr: "requires a value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
