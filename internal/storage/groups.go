package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/model"
)

// GetActiveRuleGroups returns active groups sorted by execution order,
// each with its active and inactive rules in stable creation rank.
func (s *SQLiteStorage) GetActiveRuleGroups(ctx context.Context) ([]model.RuleGroup, error) {
	return s.queryGroups(ctx, `WHERE is_active = 1`)
}

// GetRuleGroups returns every group, active or not.
func (s *SQLiteStorage) GetRuleGroups(ctx context.Context) ([]model.RuleGroup, error) {
	return s.queryGroups(ctx, ``)
}

// GetRuleGroup returns one group by id, or common.ErrNotFound.
func (s *SQLiteStorage) GetRuleGroup(ctx context.Context, id string) (*model.RuleGroup, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	groups, err := s.queryGroups(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("rule group %s: %w", id, common.ErrNotFound)
	}
	return &groups[0], nil
}

func (s *SQLiteStorage) queryGroups(ctx context.Context, where string, args ...any) ([]model.RuleGroup, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, description, execution_order, is_active, created_at, updated_at
		FROM rule_groups ` + where + `
		ORDER BY execution_order, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule groups: %w", err)
	}
	defer rows.Close()

	var groups []model.RuleGroup
	for rows.Next() {
		var group model.RuleGroup
		if err := rows.Scan(&group.ID, &group.Name, &group.Description,
			&group.ExecutionOrder, &group.IsActive, &group.CreatedAt, &group.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule groups: %w", err)
	}

	for i := range groups {
		rules, err := s.queryRules(ctx, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Rules = rules
	}

	slog.Debug("retrieved rule groups", "count", len(groups))
	return groups, nil
}

func (s *SQLiteStorage) queryRules(ctx context.Context, groupID string) ([]model.Rule, error) {
	query := `
		SELECT id, group_id, name, description, trigger_logic, is_active,
		       stop_processing, match_count, last_matched_at, created_at, updated_at
		FROM rules
		WHERE group_id = ?
		ORDER BY rank, created_at`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var rule model.Rule
		var lastMatched sql.NullTime
		if err := rows.Scan(&rule.ID, &rule.GroupID, &rule.Name, &rule.Description,
			&rule.TriggerLogic, &rule.IsActive, &rule.StopProcessing,
			&rule.MatchCount, &lastMatched, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if lastMatched.Valid {
			rule.LastMatchedAt = lastMatched.Time
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	for i := range rules {
		if err := s.loadRuleChildren(ctx, &rules[i]); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

func (s *SQLiteStorage) loadRuleChildren(ctx context.Context, rule *model.Rule) error {
	triggerRows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, field, operator, value, is_inverted, sort_order
		FROM rule_triggers WHERE rule_id = ? ORDER BY sort_order`, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to query triggers: %w", err)
	}
	defer triggerRows.Close()

	for triggerRows.Next() {
		var trigger model.RuleTrigger
		if err := triggerRows.Scan(&trigger.ID, &trigger.RuleID, &trigger.Field,
			&trigger.Operator, &trigger.Value, &trigger.IsInverted, &trigger.SortOrder); err != nil {
			return fmt.Errorf("failed to scan trigger: %w", err)
		}
		rule.Triggers = append(rule.Triggers, trigger)
	}
	if err := triggerRows.Err(); err != nil {
		return fmt.Errorf("error iterating triggers: %w", err)
	}

	actionRows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, type, value, stop_processing_after, sort_order
		FROM rule_actions WHERE rule_id = ? ORDER BY sort_order`, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to query actions: %w", err)
	}
	defer actionRows.Close()

	for actionRows.Next() {
		var action model.RuleAction
		if err := actionRows.Scan(&action.ID, &action.RuleID, &action.Type,
			&action.Value, &action.StopProcessingAfter, &action.SortOrder); err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}
		rule.Actions = append(rule.Actions, action)
	}
	return actionRows.Err()
}

// SaveRuleGroup upserts a group and replaces its rules, triggers, and
// actions atomically. Children are exclusively owned by the group, so a
// save is a cascade replace.
func (s *SQLiteStorage) SaveRuleGroup(ctx context.Context, group *model.RuleGroup) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateGroup(group); err != nil {
		return err
	}

	now := time.Now().UTC()
	if group.ID == "" {
		group.ID = uuid.NewString()
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	return s.execInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO rule_groups (id, name, description, execution_order, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				execution_order = excluded.execution_order,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			group.ID, group.Name, group.Description, group.ExecutionOrder,
			group.IsActive, group.CreatedAt, group.UpdatedAt); err != nil {
			return fmt.Errorf("failed to save rule group: %w", err)
		}

		// Cascade replace: the ON DELETE CASCADE foreign keys remove
		// triggers and actions along with the rules.
		if _, err := tx.Exec(`DELETE FROM rules WHERE group_id = ?`, group.ID); err != nil {
			return fmt.Errorf("failed to clear group rules: %w", err)
		}

		for rank := range group.Rules {
			rule := &group.Rules[rank]
			if rule.ID == "" {
				rule.ID = uuid.NewString()
				rule.CreatedAt = now
			}
			rule.GroupID = group.ID
			rule.UpdatedAt = now

			var lastMatched any
			if !rule.LastMatchedAt.IsZero() {
				lastMatched = rule.LastMatchedAt
			}

			if _, err := tx.Exec(`
				INSERT INTO rules (id, group_id, name, description, trigger_logic, is_active,
					stop_processing, match_count, last_matched_at, rank, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				rule.ID, rule.GroupID, rule.Name, rule.Description, rule.TriggerLogic,
				rule.IsActive, rule.StopProcessing, rule.MatchCount, lastMatched,
				rank, rule.CreatedAt, rule.UpdatedAt); err != nil {
				return fmt.Errorf("failed to save rule %q: %w", rule.Name, err)
			}

			for ti := range rule.Triggers {
				trigger := &rule.Triggers[ti]
				if trigger.ID == "" {
					trigger.ID = uuid.NewString()
				}
				trigger.RuleID = rule.ID
				if _, err := tx.Exec(`
					INSERT INTO rule_triggers (id, rule_id, field, operator, value, is_inverted, sort_order)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					trigger.ID, trigger.RuleID, trigger.Field, trigger.Operator,
					trigger.Value, trigger.IsInverted, trigger.SortOrder); err != nil {
					return fmt.Errorf("failed to save trigger: %w", err)
				}
			}

			for ai := range rule.Actions {
				action := &rule.Actions[ai]
				if action.ID == "" {
					action.ID = uuid.NewString()
				}
				action.RuleID = rule.ID
				if _, err := tx.Exec(`
					INSERT INTO rule_actions (id, rule_id, type, value, stop_processing_after, sort_order)
					VALUES (?, ?, ?, ?, ?, ?)`,
					action.ID, action.RuleID, action.Type, action.Value,
					action.StopProcessingAfter, action.SortOrder); err != nil {
					return fmt.Errorf("failed to save action: %w", err)
				}
			}
		}
		return nil
	})
}

// DeleteRuleGroup removes a group; the cascade takes its rules,
// triggers, and actions with it.
func (s *SQLiteStorage) DeleteRuleGroup(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM rule_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule group %s: %w", id, common.ErrNotFound)
	}
	return nil
}
