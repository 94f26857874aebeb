package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/services/config"
	"github.com/de-tools/storage-guard/pkg/services/control"
	"github.com/de-tools/storage-guard/pkg/services/events"
	"github.com/de-tools/storage-guard/pkg/services/events/kafka"
	"github.com/de-tools/storage-guard/pkg/services/events/sqs"
	"github.com/de-tools/storage-guard/pkg/services/finding"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/services/provider/aws"
	"github.com/de-tools/storage-guard/pkg/services/provider/azure"
	"github.com/de-tools/storage-guard/pkg/services/provider/gcp"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/accounts"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/findings"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/resources"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/scanruns"
	"github.com/rs/zerolog"
)

// Runner is a long-lived loop that stops when its context is canceled.
type Runner interface {
	Run(ctx context.Context) error
}

// App holds every service built from one Config. Both entry points share it.
type App struct {
	Config       *config.Config
	DB           *sql.DB
	Metrics      *metrics.Metrics
	Controls     *control.Catalog
	Providers    *provider.Registry
	Accounts     accounts.Store
	Resources    resources.Store
	ScanRuns     scanruns.Store
	Findings     *finding.Manager
	Orchestrator *scanner.Orchestrator
	Scheduler    *scanner.Scheduler
	Reconciler   *events.Reconciler
}

func New(cfg *config.Config) (*App, error) {
	db, err := sqlite.NewDB(sqlite.Settings{DbPath: cfg.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a, err := build(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, db *sql.DB) (*App, error) {
	a := &App{Config: cfg, DB: db, Metrics: metrics.New()}

	catalog, err := loadCatalog(cfg.Controls.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.Controls = catalog

	a.Providers, err = provider.NewRegistry(
		aws.New(cfg.AWSProvider(), a.Metrics),
		azure.New(),
		gcp.New(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	if a.Accounts, err = accounts.NewStore(db); err != nil {
		return nil, fmt.Errorf("failed to create account store: %w", err)
	}
	if a.Resources, err = resources.NewStore(db); err != nil {
		return nil, fmt.Errorf("failed to create resource store: %w", err)
	}
	if a.ScanRuns, err = scanruns.NewStore(db); err != nil {
		return nil, fmt.Errorf("failed to create scan run store: %w", err)
	}
	findingStore, err := findings.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create finding store: %w", err)
	}

	a.Findings = finding.NewManager(findingStore, catalog, a.Metrics)
	checker := scanner.NewChecker(a.Resources, a.Findings, a.Metrics)
	a.Orchestrator = scanner.NewOrchestrator(a.Accounts, a.Providers, checker, a.Metrics, cfg.Orchestrator()).
		WithRunRecorder(a.ScanRuns)
	a.Scheduler = scanner.NewScheduler(a.Orchestrator, cfg.Scheduler())
	a.Reconciler = events.NewReconciler(a.Accounts, a.Resources, a.Providers, checker, a.Metrics)
	return a, nil
}

func loadCatalog(path string) (*control.Catalog, error) {
	if path == "" {
		return control.Default(), nil
	}
	catalog, err := control.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load control catalog: %w", err)
	}
	return catalog, nil
}

// SeedAccounts upserts every account of the configured seed file and returns
// how many were written.
func (a *App) SeedAccounts(ctx context.Context) (int, error) {
	path := a.Config.Accounts.SeedPath
	if path == "" {
		return 0, nil
	}
	return ImportAccounts(ctx, a.Accounts, path)
}

func ImportAccounts(ctx context.Context, store accounts.Store, path string) (int, error) {
	logger := zerolog.Ctx(ctx)

	seeded, err := config.LoadAccounts(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to read account seed file: %w", err)
	}
	saved, err := store.UpsertAll(ctx, seeded)
	if err != nil {
		return 0, fmt.Errorf("failed to import accounts: %w", err)
	}
	for _, account := range saved {
		logger.Info().
			Str("account_id", account.ID).
			Str("tenant_id", account.TenantID).
			Str("provider", account.Provider.String()).
			Bool("active", account.Active).
			Msg("account imported")
	}
	return len(seeded), nil
}

// EventConsumer builds the transport selected by events.transport, or nil for none.
func (a *App) EventConsumer(ctx context.Context) (Runner, error) {
	switch a.Config.Events.Transport {
	case config.TransportSQS:
		client, err := sqs.NewClient(ctx, a.Config.AWS.Region)
		if err != nil {
			return nil, err
		}
		consumer, err := sqs.NewConsumer(client, a.Reconciler, a.Config.SQS())
		if err != nil {
			return nil, err
		}
		return consumer, nil
	case config.TransportKafka:
		consumer, err := kafka.NewConsumer(a.Config.Kafka(), a.Reconciler)
		if err != nil {
			return nil, err
		}
		return consumer, nil
	case config.TransportNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", a.Config.Events.Transport)
	}
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
