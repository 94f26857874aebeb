package commands

import (
	"github.com/de-tools/storage-guard/pkg/runtime/terminal/export"
	"github.com/spf13/cobra"
)

func NewControlsCmd(env EnvFunc, reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "controls",
		Short: "List the security controls that are evaluated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolve(env)
			if err != nil {
				return err
			}
			return reporter.Controls(e.Controls.List())
		},
	}
}
