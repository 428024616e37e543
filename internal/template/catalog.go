// Package template ships a static catalog of prebuilt rules that
// callers can instantiate into their own rule groups.
package template

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgersmith/rulekit/internal/model"
)

// RuleTemplate is a named, ready-to-instantiate rule definition.
type RuleTemplate struct {
	Name        string
	Description string
	Rule        model.Rule
}

// Catalog returns the built-in templates. The returned definitions are
// copies; instantiating one never mutates the catalog.
func Catalog() []RuleTemplate {
	return []RuleTemplate{
		{
			Name:        "groceries",
			Description: "Categorize common Dutch supermarket transactions",
			Rule: model.Rule{
				Name:         "Groceries",
				IsActive:     true,
				TriggerLogic: model.LogicAny,
				Triggers: []model.RuleTrigger{
					{Field: model.FieldCounterName, Operator: model.OpMatchesRegex, Value: "(albert heijn|jumbo|lidl|aldi|plus|dirk)"},
					{Field: model.FieldDescription, Operator: model.OpContains, Value: "supermarkt"},
				},
				Actions: []model.RuleAction{
					{Type: model.ActionSetCategory, Value: "Groceries"},
					{Type: model.ActionAddTag, Value: "daily-spending"},
				},
			},
		},
		{
			Name:        "salary",
			Description: "Tag and categorize incoming salary payments",
			Rule: model.Rule{
				Name:           "Salary",
				IsActive:       true,
				StopProcessing: true,
				TriggerLogic:   model.LogicAll,
				Triggers: []model.RuleTrigger{
					{Field: model.FieldTransactionType, Operator: model.OpEquals, Value: "deposit"},
					{Field: model.FieldDescription, Operator: model.OpContains, Value: "salaris"},
					{Field: model.FieldAmount, Operator: model.OpGreaterThan, Value: "1000"},
				},
				Actions: []model.RuleAction{
					{Type: model.ActionSetCategory, Value: "Income"},
					{Type: model.ActionAddTag, Value: "salary"},
				},
			},
		},
		{
			Name:        "subscriptions",
			Description: "Flag recurring subscription charges",
			Rule: model.Rule{
				Name:         "Subscriptions",
				IsActive:     true,
				TriggerLogic: model.LogicAny,
				Triggers: []model.RuleTrigger{
					{Field: model.FieldCounterName, Operator: model.OpMatchesRegex, Value: "(netflix|spotify|disney|videoland)"},
					{Field: model.FieldDescription, Operator: model.OpContains, Value: "abonnement"},
				},
				Actions: []model.RuleAction{
					{Type: model.ActionSetCategory, Value: "Subscriptions"},
					{Type: model.ActionAddTag, Value: "recurring"},
				},
			},
		},
		{
			Name:        "internal-transfer",
			Description: "Convert moves between own accounts into transfers",
			Rule: model.Rule{
				Name:           "Internal transfer",
				IsActive:       true,
				StopProcessing: true,
				TriggerLogic:   model.LogicAll,
				Triggers: []model.RuleTrigger{
					{Field: model.FieldDescription, Operator: model.OpContains, Value: "eigen rekening"},
				},
				Actions: []model.RuleAction{
					{Type: model.ActionSetTransactionType, Value: "transfer"},
					{Type: model.ActionClearCategory},
					{Type: model.ActionAddTag, Value: "internal", StopProcessingAfter: true},
				},
			},
		},
	}
}

// Find returns the template with the given name, or common.ErrNotFound
// semantics via a plain error.
func Find(name string) (*RuleTemplate, error) {
	for _, tmpl := range Catalog() {
		if tmpl.Name == name {
			return &tmpl, nil
		}
	}
	return nil, fmt.Errorf("unknown rule template %q", name)
}

// Instantiate deep-copies the template's rule with fresh identifiers and
// sequential sort orders (0..n-1) for both triggers and actions, ready
// to be appended to a group.
func (t *RuleTemplate) Instantiate(groupID string) model.Rule {
	now := time.Now().UTC()

	rule := t.Rule
	rule.ID = uuid.NewString()
	rule.GroupID = groupID
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.MatchCount = 0
	rule.LastMatchedAt = time.Time{}

	rule.Triggers = append([]model.RuleTrigger(nil), t.Rule.Triggers...)
	for i := range rule.Triggers {
		rule.Triggers[i].ID = uuid.NewString()
		rule.Triggers[i].RuleID = rule.ID
		rule.Triggers[i].SortOrder = i
	}

	rule.Actions = append([]model.RuleAction(nil), t.Rule.Actions...)
	for i := range rule.Actions {
		rule.Actions[i].ID = uuid.NewString()
		rule.Actions[i].RuleID = rule.ID
		rule.Actions[i].SortOrder = i
	}

	return rule
}
