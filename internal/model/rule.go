package model

import (
	"fmt"
	"time"
)

// TriggerLogic determines how a rule combines its trigger results.
type TriggerLogic string

const (
	// LogicAll requires every trigger to pass (after inversion).
	LogicAll TriggerLogic = "all"
	// LogicAny requires at least one trigger to pass (after inversion).
	LogicAny TriggerLogic = "any"
)

// RuleGroup is an ordered collection of rules sharing an execution
// priority band. Rules are exclusively owned by their group and are
// deleted with it.
type RuleGroup struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ID             string
	Name           string
	Description    string
	Rules          []Rule
	ExecutionOrder int
	IsActive       bool
}

// ActiveRules returns the group's active rules in stable creation order.
func (g *RuleGroup) ActiveRules() []Rule {
	active := make([]Rule, 0, len(g.Rules))
	for _, r := range g.Rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active
}

// Rule is a named container of triggers and ordered actions.
type Rule struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	// LastMatchedAt and MatchCount form a best-effort local cache for
	// immediate feedback; the statistics collector holds the
	// authoritative counters.
	LastMatchedAt  time.Time
	ID             string
	GroupID        string
	Name           string
	Description    string
	TriggerLogic   TriggerLogic
	Triggers       []RuleTrigger
	Actions        []RuleAction
	MatchCount     int64
	IsActive       bool
	StopProcessing bool
}

// Validate checks authoring-time constraints: known fields, operators
// compatible with their field, known action types, and a known trigger
// logic. Evaluation assumes these hold.
func (r *Rule) Validate() error {
	if r.TriggerLogic != LogicAll && r.TriggerLogic != LogicAny {
		return fmt.Errorf("rule %q: unknown trigger logic %q", r.Name, r.TriggerLogic)
	}
	for _, t := range r.Triggers {
		if !t.Field.Valid() {
			return fmt.Errorf("rule %q: unknown trigger field %q", r.Name, t.Field)
		}
		if !CompatibleOperator(t.Field, t.Operator) {
			return fmt.Errorf("rule %q: operator %q not valid for field %q", r.Name, t.Operator, t.Field)
		}
	}
	for _, a := range r.Actions {
		if !a.Type.Valid() {
			return fmt.Errorf("rule %q: unknown action type %q", r.Name, a.Type)
		}
		if a.Type.RequiresValue() && a.Value == "" {
			return fmt.Errorf("rule %q: action %q requires a value", r.Name, a.Type)
		}
	}
	return nil
}

// RuleTrigger is a single field/operator/value condition.
type RuleTrigger struct {
	ID         string
	RuleID     string
	Field      TriggerField
	Operator   TriggerOperator
	Value      string
	SortOrder  int
	IsInverted bool
}

// RuleAction is a single mutation applied when the owning rule matches.
type RuleAction struct {
	ID        string
	RuleID    string
	Type      ActionType
	Value     string
	SortOrder int
	// StopProcessingAfter halts only the remaining actions of this
	// rule, never the rule pipeline itself.
	StopProcessingAfter bool
}

// ActionType names a mutation the action executor can apply.
type ActionType string

// Action type constants.
const (
	ActionSetCategory          ActionType = "set_category"
	ActionClearCategory        ActionType = "clear_category"
	ActionSetNotes             ActionType = "set_notes"
	ActionAppendNotes          ActionType = "append_notes"
	ActionClearNotes           ActionType = "clear_notes"
	ActionAddTag               ActionType = "add_tag"
	ActionRemoveTag            ActionType = "remove_tag"
	ActionClearTags            ActionType = "clear_tags"
	ActionSetCounterName       ActionType = "set_counter_name"
	ActionSetCounterIBAN       ActionType = "set_counter_iban"
	ActionSetOwnIBAN           ActionType = "set_own_iban"
	ActionSwapAccounts         ActionType = "swap_accounts"
	ActionSetTransactionType   ActionType = "set_transaction_type"
	ActionDeleteTransaction    ActionType = "delete_transaction"
	ActionSetExternalID        ActionType = "set_external_id"
	ActionSetInternalReference ActionType = "set_internal_reference"
)

var parameterlessActions = map[ActionType]bool{
	ActionClearCategory:     true,
	ActionClearNotes:        true,
	ActionClearTags:         true,
	ActionSwapAccounts:      true,
	ActionDeleteTransaction: true,
}

var knownActions = map[ActionType]bool{
	ActionSetCategory:          true,
	ActionClearCategory:        true,
	ActionSetNotes:             true,
	ActionAppendNotes:          true,
	ActionClearNotes:           true,
	ActionAddTag:               true,
	ActionRemoveTag:            true,
	ActionClearTags:            true,
	ActionSetCounterName:       true,
	ActionSetCounterIBAN:       true,
	ActionSetOwnIBAN:           true,
	ActionSwapAccounts:         true,
	ActionSetTransactionType:   true,
	ActionDeleteTransaction:    true,
	ActionSetExternalID:        true,
	ActionSetInternalReference: true,
}

// Valid reports whether the action type is known.
func (a ActionType) Valid() bool {
	return knownActions[a]
}

// RequiresValue reports whether the action type needs a non-empty value.
func (a ActionType) RequiresValue() bool {
	return knownActions[a] && !parameterlessActions[a]
}
