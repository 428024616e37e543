// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrDatabaseBusy   = errors.New("database busy")

	// Engine errors.
	ErrNoActiveGroups = errors.New("no active rule groups")
	ErrNoTransactions = errors.New("no transactions to process")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// TriggerEvaluationError marks a malformed trigger value, regex, or date
// encountered during evaluation. It is captured locally, counted toward
// the rule's error statistics, and never aborts evaluation.
type TriggerEvaluationError struct {
	Err      error
	RuleID   string
	Field    string
	Operator string
}

func (e *TriggerEvaluationError) Error() string {
	return fmt.Sprintf("trigger %s %s: %v", e.Field, e.Operator, e.Err)
}

func (e *TriggerEvaluationError) Unwrap() error {
	return e.Err
}

// ActionExecutionError marks an action that could not be applied, such as
// an unknown target category or an inconsistent type conversion.
type ActionExecutionError struct {
	Err    error
	RuleID string
	Action string
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// EngineError marks a fatal engine-level failure (no active groups,
// resource unavailable). Unlike trigger and action errors it propagates
// to the caller and aborts the current call.
type EngineError struct {
	Err error
	Op  string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrDatabaseBusy) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
