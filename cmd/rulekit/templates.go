package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgersmith/rulekit/internal/cli"
	"github.com/ledgersmith/rulekit/internal/template"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Work with prebuilt rule templates",
	}

	cmd.AddCommand(templatesListCmd())
	cmd.AddCommand(templatesAddCmd())
	return cmd
}

func templatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available rule templates",
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, tmpl := range template.Catalog() {
				fmt.Printf("%s  %s\n",
					cli.BoldStyle.Render(tmpl.Name),
					cli.SubtleStyle.Render(tmpl.Description))
			}
			return nil
		},
	}
}

func templatesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <template> <group-id>",
		Short: "Instantiate a template into an existing rule group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tmpl, err := template.Find(args[0])
			if err != nil {
				return err
			}

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			group, err := store.GetRuleGroup(ctx, args[1])
			if err != nil {
				return err
			}

			group.Rules = append(group.Rules, tmpl.Instantiate(group.ID))
			if err := store.SaveRuleGroup(ctx, group); err != nil {
				return fmt.Errorf("failed to save rule group: %w", err)
			}

			fmt.Println(cli.FormatSuccess(
				fmt.Sprintf("Added %q to group %q", tmpl.Name, group.Name)))
			return nil
		},
	}
	return cmd
}
