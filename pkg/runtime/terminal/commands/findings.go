package commands

import (
	"fmt"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

type FindingsListCmd struct {
	tenant   string
	status   string
	severity string
	resource string
	limit    int
	offset   int
	env      EnvFunc
	reporter *export.Reporter
}

func NewFindingsCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Inspect security findings",
	}
	cmd.AddCommand(newFindingsListCmd(env, reporter))
	cmd.AddCommand(newFindingsStatsCmd(env, reporter))
	return cmd
}

func newFindingsListCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	fc := &FindingsListCmd{env: env, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List findings ordered by risk score",
		Args:  cobra.NoArgs,
		RunE:  fc.run,
	}

	cmd.Flags().StringVar(&fc.tenant, "tenant", "", "Filter by tenant id")
	cmd.Flags().StringVar(&fc.status, "status", "open", "Filter by status (open, resolved, suppressed, fixed); empty for all")
	cmd.Flags().StringVar(&fc.severity, "severity", "", "Filter by severity")
	cmd.Flags().StringVar(&fc.resource, "resource", "", "Filter by resource id")
	cmd.Flags().IntVar(&fc.limit, "limit", 50, "Maximum number of findings")
	cmd.Flags().IntVar(&fc.offset, "offset", 0, "Number of findings to skip")

	return cmd
}

func (fc *FindingsListCmd) run(cmd *cobra.Command, _ []string) error {
	env, err := resolve(fc.env)
	if err != nil {
		return err
	}

	filter := domain.FindingFilter{
		TenantID:   fc.tenant,
		Status:     domain.FindingStatus(fc.status),
		ResourceID: fc.resource,
		Limit:      fc.limit,
		Offset:     fc.offset,
	}
	if fc.severity != "" {
		sev, ok := domain.ParseSeverity(fc.severity)
		if !ok {
			return fmt.Errorf("unknown severity %q", fc.severity)
		}
		filter.Severity = sev
	}

	page, err := env.Findings.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list findings: %w", err)
	}
	return fc.reporter.Findings(page)
}

func newFindingsStatsCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count open and suppressed findings by severity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolve(env)
			if err != nil {
				return err
			}
			stats, err := e.Findings.Statistics(cmd.Context(), tenant)
			if err != nil {
				return fmt.Errorf("failed to compute statistics: %w", err)
			}
			return reporter.Statistics(stats)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Restrict to one tenant")
	return cmd
}
