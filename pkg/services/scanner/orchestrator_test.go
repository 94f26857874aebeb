package scanner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/control"
	"github.com/de-tools/storage-guard/pkg/services/finding"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/accounts"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/findings"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/resources"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/scanruns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu        sync.Mutex
	snapshots []domain.ResourceSnapshot
	listErr   error
	fetchErrs map[string]error
	inflight  int
	peak      int
}

func (s *fakeSession) set(snapshots ...domain.ResourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = snapshots
}

func (s *fakeSession) ListResources(_ context.Context, _ string) ([]domain.ResourceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	refs := make([]domain.ResourceRef, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		refs = append(refs, domain.ResourceRef{Name: snap.Name})
	}
	return refs, nil
}

func (s *fakeSession) FetchResource(_ context.Context, name, _ string) (domain.ResourceSnapshot, error) {
	s.mu.Lock()
	s.inflight++
	s.peak = max(s.peak, s.inflight)
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if err := s.fetchErrs[name]; err != nil {
		return domain.ResourceSnapshot{}, err
	}
	for _, snap := range s.snapshots {
		if snap.Name == name {
			return snap, nil
		}
	}
	return domain.ResourceSnapshot{}, provider.ErrResourceNotFound
}

type fakeProvider struct {
	provider.StandardChecks
	sessions map[string]*fakeSession // by external id
	denied   map[string]bool
}

func (p *fakeProvider) Name() domain.Provider {
	return domain.ProviderAWS
}

func (p *fakeProvider) Connect(_ context.Context, account domain.CloudAccount) (provider.Session, error) {
	if p.denied[account.ExternalID] {
		return nil, fmt.Errorf("assume role: %w", provider.ErrUnauthorized)
	}
	s, ok := p.sessions[account.ExternalID]
	if !ok {
		return nil, errors.New("no session")
	}
	return s, nil
}

func publicBucket(name string) domain.ResourceSnapshot {
	return domain.ResourceSnapshot{
		Name:          name,
		Type:          domain.ResourceTypeBucket,
		Region:        "us-east-1",
		Configuration: domain.Configuration{PublicAccess: true},
	}
}

func hardenedBucket(name string) domain.ResourceSnapshot {
	return domain.ResourceSnapshot{
		Name:   name,
		Type:   domain.ResourceTypeBucket,
		Region: "eu-west-1",
		Configuration: domain.Configuration{
			EncryptionEnabled: true,
			VersioningEnabled: true,
			LoggingEnabled:    true,
		},
	}
}

type fixture struct {
	db           *sql.DB
	accounts     accounts.Store
	resources    resources.Store
	findings     finding.Store
	runs         scanruns.Store
	provider     *fakeProvider
	metrics      *metrics.Metrics
	orchestrator *Orchestrator
}

func setupFixture(t *testing.T) *fixture {
	db, err := sqlite.NewDB(sqlite.Settings{DbPath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	accountStore, err := accounts.NewStore(db)
	require.NoError(t, err)
	resourceStore, err := resources.NewStore(db)
	require.NoError(t, err)
	findingStore, err := findings.NewStore(db)
	require.NoError(t, err)
	runStore, err := scanruns.NewStore(db)
	require.NoError(t, err)

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	p := &fakeProvider{sessions: map[string]*fakeSession{}, denied: map[string]bool{}}
	registry, err := provider.NewRegistry(p)
	require.NoError(t, err)

	manager := finding.NewManager(findingStore, control.Default(), m)
	checker := NewChecker(resourceStore, manager, m)

	return &fixture{
		db:           db,
		accounts:     accountStore,
		resources:    resourceStore,
		findings:     findingStore,
		runs:         runStore,
		provider:     p,
		metrics:      m,
		orchestrator: NewOrchestrator(accountStore, registry, checker, m, DefaultConfig()).WithRunRecorder(runStore),
	}
}

func (f *fixture) addAccount(t *testing.T, vendor domain.Provider, externalID string, active bool) domain.CloudAccount {
	account, err := f.accounts.Upsert(context.Background(), domain.CloudAccount{
		TenantID:    "tenant-1",
		Provider:    vendor,
		ExternalID:  externalID,
		Name:        externalID,
		Credentials: domain.Credentials{"role_arn": "arn:aws:iam::" + externalID + ":role/scanner"},
		Active:      active,
		Criticality: 1.0,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) openFindings(t *testing.T) map[string]domain.Finding {
	page, err := f.findings.List(context.Background(), domain.FindingFilter{Status: domain.FindingStatusOpen})
	require.NoError(t, err)
	byControl := make(map[string]domain.Finding)
	for _, item := range page.Items {
		byControl[item.ControlID] = item
	}
	return byControl
}

func TestOrchestrator_ScanAllAccounts(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	good := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	f.provider.sessions[good.ExternalID] = &fakeSession{
		snapshots: []domain.ResourceSnapshot{publicBucket("public-logs"), hardenedBucket("vault")},
	}
	denied := f.addAccount(t, domain.ProviderAWS, "222222222222", true)
	f.provider.denied[denied.ExternalID] = true
	azure := f.addAccount(t, domain.ProviderAzure, "sub-1", true)
	f.addAccount(t, domain.ProviderAWS, "333333333333", false)

	summary, err := f.orchestrator.ScanAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 3)

	outcomes := make(map[string]string)
	for _, res := range summary.Accounts {
		outcomes[res.AccountID] = res.Outcome
	}
	assert.Equal(t, OutcomeSuccess, outcomes[good.ID])
	assert.Equal(t, OutcomeUnauthorized, outcomes[denied.ID])
	assert.Equal(t, OutcomeUnsupported, outcomes[azure.ID])

	open := f.openFindings(t)
	assert.Len(t, open, 4)
	assert.Contains(t, open, domain.ControlPublicAccess)
	assert.Contains(t, open, domain.ControlEncryption)
	assert.Contains(t, open, domain.ControlLogging)
	assert.Contains(t, open, domain.ControlVersioning)
	assert.NotContains(t, open, domain.ControlPolicy)

	assert.Equal(t, 100, open[domain.ControlPublicAccess].RiskScore)
	assert.Equal(t, 75, open[domain.ControlEncryption].RiskScore)

	scanned, err := f.accounts.Get(ctx, good.ID)
	require.NoError(t, err)
	assert.NotNil(t, scanned.LastScannedAt)

	flagged, err := f.accounts.Get(ctx, denied.ID)
	require.NoError(t, err)
	assert.Nil(t, flagged.LastScannedAt)
	require.NotNil(t, flagged.LastError)
	assert.Contains(t, *flagged.LastError, "authorization")
	assert.True(t, flagged.Active)

	stored, err := f.resources.ListByAccount(ctx, good.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	series, err := testutil.GatherAndCount(f.metrics.Registry(), "storage_guard_scanner_account_scans_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)

	runs, err := f.runs.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].ID)
	assert.Equal(t, domain.ScanRunFinished, runs[0].Status)
	assert.Equal(t, 3, runs[0].Accounts)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, 2, runs[0].Failed)
	assert.NotNil(t, runs[0].FinishedAt)
}

func TestOrchestrator_RecordsCanceledRun(t *testing.T) {
	f := setupFixture(t)
	account := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	f.provider.sessions[account.ExternalID] = &fakeSession{snapshots: []domain.ResourceSnapshot{publicBucket("assets")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.orchestrator.ScanAllAccounts(ctx)
	require.ErrorIs(t, err, context.Canceled)

	run, err := f.runs.Get(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanRunCanceled, run.Status)
}

func TestOrchestrator_RescanIsIdempotentAndResolves(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	account := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	session := &fakeSession{snapshots: []domain.ResourceSnapshot{publicBucket("assets")}}
	f.provider.sessions[account.ExternalID] = session

	_, err := f.orchestrator.ScanAllAccounts(ctx)
	require.NoError(t, err)
	first := f.openFindings(t)
	require.Len(t, first, 4)

	_, err = f.orchestrator.ScanAccount(ctx, account.ID)
	require.NoError(t, err)
	second := f.openFindings(t)
	require.Len(t, second, 4)
	for controlID, before := range first {
		after := second[controlID]
		assert.Equal(t, before.ID, after.ID)
		assert.True(t, before.DetectedAt.Equal(after.DetectedAt))
		assert.False(t, after.LastSeenAt.Before(before.LastSeenAt))
	}

	session.set(hardenedBucket("assets"))
	_, err = f.orchestrator.ScanAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, f.openFindings(t))

	page, err := f.findings.List(ctx, domain.FindingFilter{Status: domain.FindingStatusResolved})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	for _, item := range page.Items {
		assert.NotNil(t, item.ResolvedAt)
	}
}

func TestOrchestrator_ListFailureAbortsOnlyThatAccount(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	broken := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	f.provider.sessions[broken.ExternalID] = &fakeSession{listErr: errors.New("connection reset")}
	healthy := f.addAccount(t, domain.ProviderAWS, "222222222222", true)
	f.provider.sessions[healthy.ExternalID] = &fakeSession{snapshots: []domain.ResourceSnapshot{publicBucket("web")}}

	summary, err := f.orchestrator.ScanAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 2)
	assert.Len(t, f.openFindings(t), 4)

	stillBroken, err := f.accounts.Get(ctx, broken.ID)
	require.NoError(t, err)
	assert.Nil(t, stillBroken.LastScannedAt)
	assert.Nil(t, stillBroken.LastError)
}

func TestOrchestrator_ScanAccount(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.orchestrator.ScanAccount(ctx, "missing")
		assert.ErrorIs(t, err, sqlite.ErrNotFound)
	})

	t.Run("inactive account", func(t *testing.T) {
		inactive := f.addAccount(t, domain.ProviderAWS, "999999999999", false)
		_, err := f.orchestrator.ScanAccount(ctx, inactive.ID)
		assert.ErrorIs(t, err, ErrInactiveAccount)
	})

	t.Run("unauthorized account", func(t *testing.T) {
		denied := f.addAccount(t, domain.ProviderAWS, "222222222222", true)
		f.provider.denied[denied.ExternalID] = true
		res, err := f.orchestrator.ScanAccount(ctx, denied.ID)
		assert.ErrorIs(t, err, provider.ErrUnauthorized)
		assert.Equal(t, OutcomeUnauthorized, res.Outcome)
		assert.NotEmpty(t, res.Error)
	})
}

func TestOrchestrator_UsesAccountCriticality(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	account, err := f.accounts.Upsert(ctx, domain.CloudAccount{
		TenantID:    "tenant-1",
		Provider:    domain.ProviderAWS,
		ExternalID:  "444444444444",
		Active:      true,
		Criticality: 0.5,
	})
	require.NoError(t, err)
	f.provider.sessions[account.ExternalID] = &fakeSession{
		snapshots: []domain.ResourceSnapshot{{Name: "internal", Region: "us-east-1"}},
	}

	_, err = f.orchestrator.ScanAccount(ctx, account.ID)
	require.NoError(t, err)

	open := f.openFindings(t)
	require.Contains(t, open, domain.ControlEncryption)
	// medium (50) on a private bucket is floored at the unmultiplied base
	assert.Equal(t, 50, open[domain.ControlEncryption].RiskScore)
}

func TestOrchestrator_FetchFailureCountsAndContinues(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	account := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	f.provider.sessions[account.ExternalID] = &fakeSession{
		snapshots: []domain.ResourceSnapshot{publicBucket("a"), publicBucket("b"), publicBucket("c")},
		fetchErrs: map[string]error{"b": fmt.Errorf("get bucket encryption: %w", provider.ErrThrottled)},
	}

	summary, err := f.orchestrator.ScanAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Accounts, 1)

	res := summary.Accounts[0]
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Resources)
	assert.Equal(t, 1, res.Failed)

	stored, err := f.resources.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(stored))
	for _, r := range stored {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, names)

	err = testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(`
# HELP storage_guard_scanner_resource_errors_total Resources skipped because of an error, by error kind.
# TYPE storage_guard_scanner_resource_errors_total counter
storage_guard_scanner_resource_errors_total{kind="transient"} 1
`), "storage_guard_scanner_resource_errors_total")
	assert.NoError(t, err)
}

func TestOrchestrator_FetchesResourcesConcurrently(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	account := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	var buckets []domain.ResourceSnapshot
	for i := range 16 {
		buckets = append(buckets, hardenedBucket(fmt.Sprintf("bucket-%02d", i)))
	}
	session := &fakeSession{snapshots: buckets}
	f.provider.sessions[account.ExternalID] = session

	res, err := f.orchestrator.ScanAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 16, res.Resources)
	assert.Zero(t, res.Failed)

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.LessOrEqual(t, session.peak, DefaultConfig().ResourceConcurrency)
	assert.Greater(t, session.peak, 1)
}

func TestOrchestrator_UnsupportedListingSkipsAccount(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	account := f.addAccount(t, domain.ProviderAWS, "111111111111", true)
	f.provider.sessions[account.ExternalID] = &fakeSession{
		listErr: fmt.Errorf("%w: listing buckets", provider.ErrUnsupported),
	}

	res, err := f.orchestrator.ScanAccount(ctx, account.ID)
	assert.ErrorIs(t, err, provider.ErrUnsupported)
	assert.Equal(t, OutcomeUnsupported, res.Outcome)

	stored, err := f.accounts.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastError)
}
