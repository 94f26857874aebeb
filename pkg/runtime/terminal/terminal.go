package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/de-tools/storage-guard/pkg/runtime/app"
	"github.com/de-tools/storage-guard/pkg/runtime/terminal/commands"
	"github.com/de-tools/storage-guard/pkg/runtime/terminal/export"
	"github.com/de-tools/storage-guard/pkg/services/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CLI represents the command-line interface
type CLI struct {
	configPath string
	env        *commands.Env
	app        *app.App
	logOutput  io.Writer
	reporter   *export.Reporter
	rootCmd    *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// LogOutput receives structured logs; defaults to stderr.
	LogOutput io.Writer
	// Env replaces the environment built from the config file.
	Env *commands.Env
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	cli := &CLI{
		env:       opts.Env,
		logOutput: opts.LogOutput,
		reporter:  export.NewReporter(opts.Output),
	}

	cli.rootCmd = cli.newRootCmd()
	cli.rootCmd.SetOut(opts.Output)
	return cli
}

func (cli *CLI) Execute(ctx context.Context) error {
	err := cli.rootCmd.ExecuteContext(ctx)
	return errors.Join(err, cli.close())
}

// SetArgs overrides the process arguments.
func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

// SetInput overrides stdin.
func (cli *CLI) SetInput(in io.Reader) {
	cli.rootCmd.SetIn(in)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "storage-guard",
		Short:             "Cloud storage security scanner",
		SilenceUsage:      true,
		PersistentPreRunE: cli.setup,
	}

	cmd.PersistentFlags().StringVarP(&cli.configPath, "config", "c", "",
		"Path to the configuration file (defaults and STORAGEGUARD_* variables otherwise)")

	cmd.AddCommand(commands.NewScanCmd(cli.environment, cli.reporter))
	cmd.AddCommand(commands.NewEventCmd(cli.environment))
	cmd.AddCommand(commands.NewAccountsCmd(cli.environment, cli.reporter))
	cmd.AddCommand(commands.NewFindingsCmd(cli.environment, cli.reporter))
	cmd.AddCommand(commands.NewControlsCmd(cli.environment, cli.reporter))

	return cmd
}

func (cli *CLI) environment() (*commands.Env, error) {
	if cli.env == nil {
		return nil, fmt.Errorf("storage-guard is not configured")
	}
	return cli.env, nil
}

func (cli *CLI) setup(cmd *cobra.Command, _ []string) error {
	level := zerolog.InfoLevel
	var cfg *config.Config
	if cli.env == nil {
		var err error
		cfg, err = config.Load(cli.configPath)
		if err != nil {
			return err
		}
		level = cfg.LogLevel()
	}

	logger := zerolog.New(cli.logOutput).Level(level).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())
	cmd.SetContext(ctx)

	if cli.env != nil {
		return nil
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if _, err := a.SeedAccounts(ctx); err != nil {
		a.Close()
		return err
	}

	cli.app = a
	cli.env = &commands.Env{
		Scanner:  a.Orchestrator,
		Findings: a.Findings,
		Events:   a.Reconciler,
		Accounts: a.Accounts,
		Controls: a.Controls,
	}
	return nil
}

func (cli *CLI) close() error {
	if cli.app == nil {
		return nil
	}
	err := cli.app.Close()
	cli.app = nil
	return err
}
