package commands

import (
	"fmt"

	"github.com/de-tools/storage-guard/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

type ScanCmd struct {
	accountID string
	env       EnvFunc
	reporter  *export.Reporter
}

func NewScanCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	sc := &ScanCmd{env: env, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a full reconciliation scan",
		Long:  "Scan every active account, or a single account with --account.",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.accountID, "account", "", "Scan only the account with this id")

	return cmd
}

func (sc *ScanCmd) run(cmd *cobra.Command, _ []string) error {
	env, err := resolve(sc.env)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if sc.accountID == "" {
		summary, err := env.Scanner.ScanAllAccounts(ctx)
		if err != nil {
			return fmt.Errorf("full scan failed: %w", err)
		}
		return sc.reporter.Scan(summary)
	}

	result, err := env.Scanner.ScanAccount(ctx, sc.accountID)
	if result.Outcome == "" && err != nil {
		return fmt.Errorf("failed to scan account %s: %w", sc.accountID, err)
	}
	if rerr := sc.reporter.AccountScan(result); rerr != nil {
		return rerr
	}
	if err != nil {
		return fmt.Errorf("account scan finished with outcome %s", result.Outcome)
	}
	return nil
}
