package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type EventCmd struct {
	env EnvFunc
}

func NewEventCmd(env EnvFunc) *cobra.Command {
	ec := &EventCmd{env: env}
	return &cobra.Command{
		Use:   "event [file]",
		Short: "Reconcile one change event read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ec.run,
	}
}

func (ec *EventCmd) run(cmd *cobra.Command, args []string) error {
	env, err := resolve(ec.env)
	if err != nil {
		return err
	}

	var raw []byte
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}

	if err := env.Events.ProcessEvent(cmd.Context(), raw); err != nil {
		return fmt.Errorf("event processing failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "event processed")
	return nil
}
