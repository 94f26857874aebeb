package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/de-tools/storage-guard/pkg/runtime/app"
	"github.com/de-tools/storage-guard/pkg/server"
	"github.com/de-tools/storage-guard/pkg/services/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the Storage Guard API server, scheduler and event consumer",
		RunE:  runServer,
	}

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "",
		"Path to the configuration file (defaults and STORAGEGUARD_* variables otherwise)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := zerolog.New(os.Stdout).Level(cfg.LogLevel()).With().Timestamp().Logger()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	seeded, err := a.SeedAccounts(ctx)
	if err != nil {
		return err
	}
	logger.Info().
		Str("database", cfg.Database.Path).
		Int("seeded_accounts", seeded).
		Strs("providers", providerNames(a)).
		Msg("storage guard initialized")

	consumer, err := a.EventConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create event consumer: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Scheduler.Run(ctx)
	}()

	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Str("transport", cfg.Events.Transport).Msg("event consumer started")
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	webAPI := server.NewWebAPI(logger, server.Config{
		Addr:            net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Dependencies: server.Dependencies{
			Findings: a.Findings,
			Controls: a.Controls,
			Scanner:  a.Orchestrator,
			ScanRuns: a.ScanRuns,
			Trigger:  a.Scheduler,
			Events:   a.Reconciler,
			Metrics:  a.Metrics.Handler(),
		},
	})

	err = webAPI.Start(ctx)
	stop()
	wg.Wait()
	return err
}

func providerNames(a *app.App) []string {
	names := make([]string, 0)
	for _, p := range a.Providers.List() {
		names = append(names, p.String())
	}
	return names
}
