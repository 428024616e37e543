package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgersmith/rulekit/internal/cli"
	"github.com/ledgersmith/rulekit/internal/engine"
	"github.com/ledgersmith/rulekit/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and test rule groups",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesTestCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rule groups and their rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			groups, err := store.GetRuleGroups(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load rule groups: %w", err)
			}
			if len(groups) == 0 {
				fmt.Println(cli.FormatWarning("No rule groups defined"))
				return nil
			}

			for gi := range groups {
				group := &groups[gi]
				state := cli.SuccessStyle.Render("active")
				if !group.IsActive {
					state = cli.SubtleStyle.Render("inactive")
				}
				fmt.Printf("%s %s (order %d, %s)\n",
					cli.BoldStyle.Render(group.Name),
					cli.SubtleStyle.Render(group.ID),
					group.ExecutionOrder, state)

				for ri := range group.Rules {
					rule := &group.Rules[ri]
					flags := make([]string, 0, 2)
					if !rule.IsActive {
						flags = append(flags, "inactive")
					}
					if rule.StopProcessing {
						flags = append(flags, "stop")
					}
					suffix := ""
					if len(flags) > 0 {
						suffix = " [" + strings.Join(flags, ",") + "]"
					}
					fmt.Printf("  %s (%s, %d triggers, %d actions, %d matches)%s\n",
						rule.Name, rule.TriggerLogic, len(rule.Triggers),
						len(rule.Actions), rule.MatchCount, suffix)
				}
			}
			return nil
		},
	}
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Dry-run chosen rule groups against the ledger",
		Long: `Evaluate a subset of rule groups against stored transactions without
persisting mutations or touching global rule statistics.`,
		RunE: runRulesTest,
	}

	cmd.Flags().StringSlice("group", nil, "group id or name to test (repeatable; default: all groups)")
	cmd.Flags().Int("limit", 50, "maximum transactions to evaluate")
	return cmd
}

func runRulesTest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	wanted, _ := cmd.Flags().GetStringSlice("group")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	groups, err := store.GetRuleGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rule groups: %w", err)
	}

	selected := groups
	if len(wanted) > 0 {
		selected = selected[:0:0]
		for gi := range groups {
			for _, key := range wanted {
				if strings.EqualFold(groups[gi].ID, key) || strings.EqualFold(groups[gi].Name, key) {
					selected = append(selected, groups[gi])
					break
				}
			}
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("no matching rule groups")
	}

	stored, err := store.GetTransactions(ctx, transactionFilterWithLimit(limit))
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}

	// Manual runs evaluate clones so the ledger is untouched.
	txns := make([]*model.Transaction, len(stored))
	for i := range stored {
		txns[i] = stored[i].Clone()
	}

	eng := engine.New(store, store, nil)
	results, err := eng.ExecuteRulesManually(ctx, txns, selected)
	if err != nil {
		return err
	}

	matched := 0
	for _, result := range results {
		if result.RulesExecuted == 0 {
			continue
		}
		matched++
		fmt.Printf("%s %s → %s (%d actions)\n",
			cli.FormatSuccess("match"),
			result.TransactionID,
			strings.Join(result.MatchedRules, ", "),
			result.ActionsPerformed)
	}

	fmt.Printf("\n%d of %d transactions matched\n", matched, len(results))
	return nil
}
