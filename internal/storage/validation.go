package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgersmith/rulekit/internal/model"
)

// Validation errors.
var (
	ErrNilContext      = errors.New("context cannot be nil")
	ErrEmptyString     = errors.New("string parameter cannot be empty")
	ErrNilParameter    = errors.New("parameter cannot be nil")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrInvalidGroup    = errors.New("invalid rule group")
	ErrInvalidTransact = errors.New("invalid transaction")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateGroup checks a rule group and its rules before persisting.
func validateGroup(group *model.RuleGroup) error {
	if group == nil {
		return fmt.Errorf("%w: group", ErrNilParameter)
	}
	if strings.TrimSpace(group.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidGroup)
	}
	for i := range group.Rules {
		if err := group.Rules[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}
	return nil
}

// validateTransaction checks the minimal fields the ledger requires.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTransact)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransact)
	}
	return nil
}
