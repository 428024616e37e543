package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
	"github.com/ledgersmith/rulekit/internal/service"
)

// ActionExecutor applies a matched rule's ordered actions to a
// transaction, mutating it in place. There is no rollback: partial
// application after a failed action is the intended behavior.
type ActionExecutor struct {
	// categories, when set, validates set_category targets. A nil
	// source accepts any category name.
	categories service.CategorySource
}

// NewActionExecutor creates an executor validating categories against src.
func NewActionExecutor(src service.CategorySource) *ActionExecutor {
	return &ActionExecutor{categories: src}
}

// Execute applies the rule's actions in sort order. A failed action is
// reported and execution continues with the next action, unless the
// action's StopProcessingAfter flag is set, which ends this rule's
// action list either way.
func (x *ActionExecutor) Execute(ctx context.Context, rule *model.Rule, txn *model.Transaction) ([]model.ActionResult, []error) {
	actions := orderedActions(rule.Actions)
	results := make([]model.ActionResult, 0, len(actions))

	var errs []error
	for _, action := range actions {
		message, err := x.apply(ctx, action, txn)
		if err != nil {
			execErr := &common.ActionExecutionError{
				Err:    err,
				RuleID: rule.ID,
				Action: string(action.Type),
			}
			errs = append(errs, execErr)
			results = append(results, model.ActionResult{
				Type:    action.Type,
				Success: false,
				Message: execErr.Error(),
			})
		} else {
			results = append(results, model.ActionResult{
				Type:    action.Type,
				Success: true,
				Message: message,
			})
		}

		if action.StopProcessingAfter {
			break
		}
	}

	return results, errs
}

func (x *ActionExecutor) apply(ctx context.Context, action model.RuleAction, txn *model.Transaction) (string, error) {
	switch action.Type {
	case model.ActionSetCategory:
		if err := x.resolveCategory(ctx, action.Value); err != nil {
			return "", err
		}
		txn.Category = action.Value
		return fmt.Sprintf("category set to %q", action.Value), nil

	case model.ActionClearCategory:
		txn.Category = ""
		txn.CategoryOverride = ""
		return "category cleared", nil

	case model.ActionSetNotes:
		txn.Notes = action.Value
		return "notes set", nil

	case model.ActionAppendNotes:
		if txn.Notes == "" {
			txn.Notes = action.Value
		} else {
			txn.Notes += "\n" + action.Value
		}
		return "notes appended", nil

	case model.ActionClearNotes:
		txn.Notes = ""
		return "notes cleared", nil

	case model.ActionAddTag:
		if txn.AddTag(action.Value) {
			return fmt.Sprintf("tag %q added", action.Value), nil
		}
		return fmt.Sprintf("tag %q already present", action.Value), nil

	case model.ActionRemoveTag:
		if txn.RemoveTag(action.Value) {
			return fmt.Sprintf("tag %q removed", action.Value), nil
		}
		return fmt.Sprintf("tag %q not present", action.Value), nil

	case model.ActionClearTags:
		txn.Tags = nil
		return "tags cleared", nil

	case model.ActionSetCounterName:
		txn.CounterName = action.Value
		return fmt.Sprintf("counterparty set to %q", action.Value), nil

	case model.ActionSetCounterIBAN:
		iban, err := normalizeIBAN(action.Value)
		if err != nil {
			return "", err
		}
		txn.CounterIBAN = iban
		return fmt.Sprintf("counterparty IBAN set to %s", iban), nil

	case model.ActionSetOwnIBAN:
		iban, err := normalizeIBAN(action.Value)
		if err != nil {
			return "", err
		}
		txn.OwnIBAN = iban
		return fmt.Sprintf("own IBAN set to %s", iban), nil

	case model.ActionSwapAccounts:
		txn.OwnIBAN, txn.CounterIBAN = txn.CounterIBAN, txn.OwnIBAN
		return "accounts swapped", nil

	case model.ActionSetTransactionType:
		kind := strings.ToLower(strings.TrimSpace(action.Value))
		if !model.ValidTransactionType(kind) {
			return "", fmt.Errorf("cannot convert to unknown transaction type %q", action.Value)
		}
		txn.Type = model.TransactionType(kind)
		return fmt.Sprintf("transaction type set to %s", kind), nil

	case model.ActionDeleteTransaction:
		// Physical deletion is deferred to the caller's post-pass so a
		// live batch is never mutated mid-iteration.
		txn.Deleted = true
		return "transaction marked for deletion", nil

	case model.ActionSetExternalID:
		txn.ExternalID = action.Value
		return "external id set", nil

	case model.ActionSetInternalReference:
		txn.InternalReference = action.Value
		return "internal reference set", nil

	default:
		return "", fmt.Errorf("unknown action type %q", action.Type)
	}
}

func (x *ActionExecutor) resolveCategory(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("empty category name")
	}
	if x.categories == nil {
		return nil
	}
	if _, err := x.categories.GetCategoryByName(ctx, name); err != nil {
		return fmt.Errorf("unknown target category %q: %w", name, err)
	}
	return nil
}

func normalizeIBAN(value string) (string, error) {
	iban := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), " ", ""))
	if len(iban) < 8 {
		return "", fmt.Errorf("invalid IBAN %q", value)
	}
	return iban, nil
}

func orderedActions(actions []model.RuleAction) []model.RuleAction {
	if sort.SliceIsSorted(actions, func(i, j int) bool {
		return actions[i].SortOrder < actions[j].SortOrder
	}) {
		return actions
	}
	ordered := append([]model.RuleAction(nil), actions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SortOrder < ordered[j].SortOrder
	})
	return ordered
}
