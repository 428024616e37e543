package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersmith/rulekit/internal/cli"
	"github.com/ledgersmith/rulekit/internal/common"
	"github.com/ledgersmith/rulekit/internal/engine"
	"github.com/ledgersmith/rulekit/internal/model"
	"github.com/ledgersmith/rulekit/internal/service"
	"github.com/ledgersmith/rulekit/internal/stats"
)

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply active rule groups to stored transactions",
		Long: `Run every active rule group over the transaction ledger. Matched
rules mutate the records in place; results and statistics are
persisted when the run completes.`,
		RunE: runApply,
	}

	cmd.Flags().Int("workers", 0, "worker pool size (default: number of CPUs)")
	cmd.Flags().String("from", "", "only process transactions on or after this date (YYYY-MM-DD)")
	cmd.Flags().Bool("dry-run", false, "evaluate rules without persisting mutations")
	_ = viper.BindPFlag("engine.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func runApply(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	fromFlag, _ := cmd.Flags().GetString("from")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	filter := service.TransactionFilter{}
	if fromFlag != "" {
		from, err := time.Parse("2006-01-02", fromFlag)
		if err != nil {
			return common.NewUserError(fmt.Sprintf("invalid --from date %q", fromFlag), err)
		}
		filter.StartDate = &from
	}

	stored, err := store.GetTransactions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(stored) == 0 {
		fmt.Println(cli.FormatWarning("No transactions to process"))
		return nil
	}

	txns := make([]*model.Transaction, len(stored))
	for i := range stored {
		if dryRun {
			txns[i] = stored[i].Clone()
		} else {
			txns[i] = &stored[i]
		}
	}

	collector := stats.NewCollector()
	defer collector.Close()

	if persisted, err := store.GetAllRuleStatistics(ctx); err == nil {
		collector.Seed(persisted)
	} else {
		slog.Warn("Could not seed rule statistics", "error", err)
	}

	eng := engine.New(store, store, collector)

	bar := progressbar.NewOptions(len(txns),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Applying rules..."),
	)

	opts := engine.DefaultBulkOptions()
	opts.Workers = viper.GetInt("engine.workers")
	opts.Progress = func(p model.BulkProgress) {
		_ = bar.Set(p.Processed)
	}

	result, err := eng.ProcessBulk(ctx, txns, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr)

	if !dryRun {
		if err := common.WithRetry(ctx, func() error {
			return store.UpdateTransactions(ctx, txns)
		}, service.RetryOptions{}); err != nil {
			return fmt.Errorf("failed to persist mutated transactions: %w", err)
		}
		if err := collector.Persist(ctx, store); err != nil {
			return fmt.Errorf("failed to persist rule statistics: %w", err)
		}
	}

	printBulkSummary(result, dryRun)
	return nil
}

func printBulkSummary(result *model.BulkExecutionResult, dryRun bool) {
	summary := fmt.Sprintf("  Processed:  %d\n", result.TotalProcessed) +
		fmt.Sprintf("  Succeeded:  %d\n", result.SuccessfullyProcessed) +
		fmt.Sprintf("  Failed:     %d\n", result.Failed) +
		fmt.Sprintf("  Matches:    %d\n", result.TotalMatches) +
		fmt.Sprintf("  Actions:    %d\n", result.TotalActions) +
		fmt.Sprintf("  Deleted:    %d\n", len(result.DeletedTransactionIDs)) +
		fmt.Sprintf("  Throughput: %.0f tx/sec", result.ThroughputPerSecond)

	title := "Bulk Run Complete"
	if dryRun {
		title = "Bulk Run Complete (dry run)"
	}
	fmt.Println(cli.RenderBox(title, summary))

	if len(result.ErrorSummary) > 0 {
		messages := make([]string, 0, len(result.ErrorSummary))
		for msg := range result.ErrorSummary {
			messages = append(messages, msg)
		}
		sort.Strings(messages)

		fmt.Println(cli.WarningStyle.Render("Errors:"))
		for _, msg := range messages {
			fmt.Printf("  %s ×%d\n", msg, result.ErrorSummary[msg])
		}
	}
}
