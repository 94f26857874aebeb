package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/accounts"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrInactiveAccount = errors.New("account is not active")

const (
	OutcomeSuccess      = "success"
	OutcomeUnauthorized = "unauthorized"
	OutcomeFailed       = "failed"
	OutcomeUnsupported  = "unsupported"
	OutcomeCanceled     = "canceled"
)

type Config struct {
	AccountConcurrency  int
	ResourceConcurrency int
}

func DefaultConfig() Config {
	return Config{
		AccountConcurrency:  4,
		ResourceConcurrency: 8,
	}
}

type AccountResult struct {
	AccountID string          `json:"account_id"`
	TenantID  string          `json:"tenant_id"`
	Provider  domain.Provider `json:"provider"`
	Outcome   string          `json:"outcome"`
	Resources int             `json:"resources"`
	Failed    int             `json:"failed"`
	Error     string          `json:"error,omitempty"`
	Took      time.Duration   `json:"took"`
}

type Summary struct {
	RunID      string          `json:"run_id,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Accounts   []AccountResult `json:"accounts"`
}

// Orchestrator runs full reconciliation passes over every active account.
type Orchestrator struct {
	accounts  accounts.Store
	providers *provider.Registry
	checker   *Checker
	metrics   *metrics.Metrics
	config    Config
	runs      RunRecorder
	now       func() time.Time
}

// RunRecorder keeps the history of full scans.
type RunRecorder interface {
	Create(ctx context.Context, run domain.ScanRun) error
	Finish(ctx context.Context, run domain.ScanRun) error
}

func NewOrchestrator(
	accountStore accounts.Store,
	providers *provider.Registry,
	checker *Checker,
	m *metrics.Metrics,
	cfg Config,
) *Orchestrator {
	if cfg.AccountConcurrency < 1 {
		cfg.AccountConcurrency = 1
	}
	if cfg.ResourceConcurrency < 1 {
		cfg.ResourceConcurrency = 1
	}
	return &Orchestrator{
		accounts:  accountStore,
		providers: providers,
		checker:   checker,
		metrics:   m,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithRunRecorder records every full scan in runs.
func (o *Orchestrator) WithRunRecorder(runs RunRecorder) *Orchestrator {
	o.runs = runs
	return o
}

// ScanAllAccounts scans every active account. Account failures are reported in the
// summary and never abort the other accounts.
func (o *Orchestrator) ScanAllAccounts(ctx context.Context) (Summary, error) {
	summary := Summary{StartedAt: o.now()}
	run := o.startRun(ctx, summary.StartedAt)
	if run != nil {
		summary.RunID = run.ID
	}

	summary, err := o.scanAll(ctx, summary)
	o.finishRun(ctx, run, summary, err)
	return summary, err
}

func (o *Orchestrator) scanAll(ctx context.Context, summary Summary) (Summary, error) {
	logger := zerolog.Ctx(ctx)

	active, err := o.accounts.ListActive(ctx)
	if err != nil {
		summary.FinishedAt = o.now()
		return summary, fmt.Errorf("failed to list active accounts: %w", err)
	}
	logger.Info().Int("accounts", len(active)).Msg("full scan started")

	results := make([]AccountResult, len(active))
	g := new(errgroup.Group)
	g.SetLimit(o.config.AccountConcurrency)
	for i, account := range active {
		g.Go(func() error {
			results[i], _ = o.scanAccount(ctx, account)
			return nil
		})
	}
	_ = g.Wait()

	summary.Accounts = results
	summary.FinishedAt = o.now()
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	o.metrics.FullScanCompleted(summary.FinishedAt)
	logger.Info().
		Int("accounts", len(results)).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("full scan completed")
	return summary, nil
}

func (o *Orchestrator) startRun(ctx context.Context, at time.Time) *domain.ScanRun {
	if o.runs == nil {
		return nil
	}
	run := &domain.ScanRun{ID: uuid.NewString(), Status: domain.ScanRunRunning, StartedAt: at}
	if err := o.runs.Create(context.WithoutCancel(ctx), *run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to record scan run")
		return nil
	}
	return run
}

func (o *Orchestrator) finishRun(ctx context.Context, run *domain.ScanRun, summary Summary, err error) {
	if run == nil {
		return
	}

	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = o.now()
	}
	run.FinishedAt = &finished
	run.Accounts = len(summary.Accounts)
	for _, result := range summary.Accounts {
		if result.Outcome == OutcomeSuccess {
			run.Succeeded++
		} else {
			run.Failed++
		}
	}

	switch {
	case err == nil:
		run.Status = domain.ScanRunFinished
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.Status = domain.ScanRunCanceled
	default:
		run.Status = domain.ScanRunFailed
		msg := err.Error()
		run.Error = &msg
	}

	if err := o.runs.Finish(context.WithoutCancel(ctx), *run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("run_id", run.ID).Msg("failed to finish scan run")
	}
}

// ScanAccount scans one account on demand.
func (o *Orchestrator) ScanAccount(ctx context.Context, id string) (AccountResult, error) {
	account, err := o.accounts.Get(ctx, id)
	if err != nil {
		return AccountResult{AccountID: id}, err
	}
	if !account.Active {
		return AccountResult{AccountID: id}, fmt.Errorf("account %s: %w", id, ErrInactiveAccount)
	}
	return o.scanAccount(ctx, account)
}

func (o *Orchestrator) scanAccount(ctx context.Context, account domain.CloudAccount) (AccountResult, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("account_id", account.ID).
		Str("tenant_id", account.TenantID).
		Str("provider", account.Provider.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	start := o.now()
	result := AccountResult{
		AccountID: account.ID,
		TenantID:  account.TenantID,
		Provider:  account.Provider,
	}
	finish := func(outcome string, err error) (AccountResult, error) {
		result.Outcome = outcome
		result.Took = o.now().Sub(start)
		if err != nil {
			result.Error = err.Error()
		}
		o.metrics.AccountScanned(account.Provider.String(), outcome, result.Took)
		return result, err
	}

	p, err := o.providers.Get(account.Provider)
	if err != nil {
		logger.Warn().Err(err).Msg("unsupported provider, skipping account")
		return finish(OutcomeUnsupported, err)
	}

	// credentials are acquired per scan and dropped with the session
	session, err := p.Connect(ctx, account)
	if err != nil {
		return finish(o.abort(ctx, account, "connect", err), err)
	}

	refs, err := session.ListResources(ctx, "")
	if err != nil {
		return finish(o.abort(ctx, account, "list resources", err), err)
	}
	result.Resources = len(refs)

	var failed atomic.Int64
	skip := func(name string, err error) {
		kind := provider.Classify(err)
		failed.Add(1)
		o.metrics.ResourceFailed(kind.String())
		logger.Warn().Err(err).Str("resource", name).Str("kind", kind.String()).
			Msg("resource reconciliation failed, skipping")
	}

	g := new(errgroup.Group)
	g.SetLimit(o.config.ResourceConcurrency)
	for _, ref := range refs {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			snapshot, err := session.FetchResource(ctx, ref.Name, ref.Region)
			if err != nil {
				skip(ref.Name, err)
				return nil
			}
			if snapshot.CreatedAt == nil {
				snapshot.CreatedAt = ref.CreatedAt
			}
			_, err = o.checker.Reconcile(ctx, p, Check{
				Account:  account,
				Snapshot: snapshot,
				Controls: domain.AllControls(),
				Source:   domain.TriggerScan,
			})
			if err != nil {
				skip(ref.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	result.Failed = int(failed.Load())

	if err := ctx.Err(); err != nil {
		return finish(OutcomeCanceled, err)
	}

	if err := o.accounts.MarkScanned(ctx, account.ID, o.now()); err != nil {
		logger.Error().Err(err).Msg("failed to stamp last scanned time")
		return finish(OutcomeFailed, err)
	}

	logger.Info().Int("resources", result.Resources).Int("failed", result.Failed).Msg("account scanned")
	return finish(OutcomeSuccess, nil)
}

// abort reports an account-level failure. Authorization failures flag the account
// without deactivating it.
func (o *Orchestrator) abort(ctx context.Context, account domain.CloudAccount, stage string, err error) string {
	logger := zerolog.Ctx(ctx)
	if errors.Is(err, provider.ErrUnsupported) {
		logger.Warn().Err(err).Str("stage", stage).Msg("unsupported provider operation, skipping account")
		return OutcomeUnsupported
	}
	if provider.Classify(err) != provider.KindAuthorization {
		logger.Error().Err(err).Str("stage", stage).Msg("account scan aborted")
		return OutcomeFailed
	}

	logger.Error().Err(err).Str("stage", stage).Msg("account scan aborted by authorization failure")
	if flagErr := o.accounts.Flag(ctx, account.ID, err.Error(), o.now()); flagErr != nil {
		logger.Error().Err(flagErr).Msg("failed to flag account")
	}
	return OutcomeUnauthorized
}
