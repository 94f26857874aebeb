package commands

import (
	"fmt"

	"github.com/de-tools/storage-guard/pkg/runtime/app"
	"github.com/de-tools/storage-guard/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

func NewAccountsCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage monitored cloud accounts",
	}
	cmd.AddCommand(newAccountsImportCmd(env))
	cmd.AddCommand(newAccountsListCmd(env, reporter))
	return cmd
}

func newAccountsImportCmd(env EnvFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "import <seed.ini>",
		Short: "Create or update accounts from an ini seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolve(env)
			if err != nil {
				return err
			}
			n, err := app.ImportAccounts(cmd.Context(), e.Accounts, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts\n", n)
			return nil
		},
	}
}

func newAccountsListCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolve(env)
			if err != nil {
				return err
			}
			list := e.Accounts.List
			if activeOnly {
				list = e.Accounts.ListActive
			}
			accounts, err := list(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			return reporter.Accounts(accounts)
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only list active accounts")
	return cmd
}
