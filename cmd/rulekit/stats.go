package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgersmith/rulekit/internal/cli"
	"github.com/ledgersmith/rulekit/internal/stats"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show rule health statistics",
		RunE:  runStats,
	}

	cmd.AddCommand(statsResetCmd())
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	persisted, err := store.GetAllRuleStatistics(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load rule statistics: %w", err)
	}
	if len(persisted) == 0 {
		fmt.Println(cli.FormatWarning("No rule statistics recorded yet"))
		return nil
	}

	report := stats.BuildHealthReport(persisted, time.Now())

	summary := fmt.Sprintf("  Score:   %.0f (%s)\n", report.Score, report.Bucket) +
		fmt.Sprintf("  Latency: %.0f  Errors: %.0f  Usage: %.0f\n",
			report.LatencyComponent, report.ErrorComponent, report.UsageComponent) +
		fmt.Sprintf("  Rules:   %d (%d unused)", report.TotalRules, report.UnusedRules)
	fmt.Println(cli.RenderBox("Rule Health", summary))

	fmt.Println(cli.TableHeaderStyle.Render("rule                                  matches     evals  rate%  avg ms  category"))
	for _, health := range report.Rules {
		entry := health.Statistics
		fmt.Printf("%-36s %8d %9d %6.1f %7.2f  %s\n",
			entry.RuleID, entry.MatchCount, entry.TotalEvaluations,
			entry.MatchRatePercentage(), entry.AverageEvaluationTimeMs,
			health.Category)
	}
	return nil
}

func statsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <rule-id>",
		Short: "Reset the persisted counters for one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.ResetRuleStatistics(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println(cli.FormatSuccess("Statistics reset for rule " + args[0]))
			return nil
		},
	}
}
