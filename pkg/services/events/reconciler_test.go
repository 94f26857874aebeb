package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/control"
	"github.com/de-tools/storage-guard/pkg/services/finding"
	"github.com/de-tools/storage-guard/pkg/services/provider"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/accounts"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/findings"
	"github.com/de-tools/storage-guard/pkg/store/sqlite/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu        sync.Mutex
	buckets   map[string]domain.ResourceSnapshot
	fetchErr  error
	lists     int
	fetches   int
	connected int
}

func (s *fakeSession) ListResources(_ context.Context, region string) ([]domain.ResourceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []domain.ResourceRef
	for _, b := range s.buckets {
		if region == "" || b.Region == region {
			out = append(out, domain.ResourceRef{Name: b.Name, Region: b.Region})
		}
	}
	return out, nil
}

func (s *fakeSession) FetchResource(_ context.Context, name, _ string) (domain.ResourceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return domain.ResourceSnapshot{}, s.fetchErr
	}
	b, ok := s.buckets[name]
	if !ok {
		return domain.ResourceSnapshot{}, provider.ErrResourceNotFound
	}
	return b, nil
}

type fakeProvider struct {
	provider.StandardChecks
	session    *fakeSession
	connectErr error
}

func (p *fakeProvider) Name() domain.Provider {
	return domain.ProviderAWS
}

func (p *fakeProvider) Connect(context.Context, domain.CloudAccount) (provider.Session, error) {
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	p.session.mu.Lock()
	p.session.connected++
	p.session.mu.Unlock()
	return p.session, nil
}

// countingApplier records every lifecycle call.
type countingApplier struct {
	next  scanner.FindingApplier
	calls atomic.Int32
}

func (c *countingApplier) ApplyCheckOutcome(
	ctx context.Context,
	resource domain.StorageResource,
	controlID string,
	outcome domain.CheckOutcome,
) (finding.Applied, error) {
	c.calls.Add(1)
	return c.next.ApplyCheckOutcome(ctx, resource, controlID, outcome)
}

type fixture struct {
	accounts   accounts.Store
	resources  resources.Store
	findings   finding.Store
	provider   *fakeProvider
	applier    *countingApplier
	reconciler *Reconciler
	account    domain.CloudAccount
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

	p := &fakeProvider{session: &fakeSession{buckets: map[string]domain.ResourceSnapshot{}}}
	registry, err := provider.NewRegistry(p)
	require.NoError(t, err)

	applier := &countingApplier{next: finding.NewManager(findingStore, control.Default(), nil)}
	checker := scanner.NewChecker(resourceStore, applier, nil)

	account, err := accountStore.Upsert(context.Background(), domain.CloudAccount{
		TenantID:    "tenant-1",
		Provider:    domain.ProviderAWS,
		ExternalID:  "123456789012",
		Credentials: domain.Credentials{"role_arn": "arn:aws:iam::123456789012:role/scanner"},
		Active:      true,
		Criticality: 1.0,
	})
	require.NoError(t, err)

	return &fixture{
		accounts:   accountStore,
		resources:  resourceStore,
		findings:   findingStore,
		provider:   p,
		applier:    applier,
		reconciler: NewReconciler(accountStore, resourceStore, registry, checker, nil),
		account:    account,
	}
}

func (f *fixture) seedBucket(t *testing.T, snapshot domain.ResourceSnapshot) domain.StorageResource {
	f.provider.session.buckets[snapshot.Name] = snapshot
	res, err := f.resources.Upsert(context.Background(), domain.StorageResource{
		TenantID:      f.account.TenantID,
		AccountID:     f.account.ID,
		Provider:      domain.ProviderAWS,
		Type:          domain.ResourceTypeBucket,
		Name:          snapshot.Name,
		Region:        snapshot.Region,
		Configuration: domain.Configuration{EncryptionEnabled: true, LoggingEnabled: true, VersioningEnabled: true},
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) findingsFor(t *testing.T, resourceID string) map[string]domain.Finding {
	page, err := f.findings.List(context.Background(), domain.FindingFilter{ResourceID: resourceID})
	require.NoError(t, err)
	out := make(map[string]domain.Finding)
	for _, item := range page.Items {
		out[item.ControlID] = item
	}
	return out
}

func wildcardPolicyBucket(name string) domain.ResourceSnapshot {
	policy, err := domain.ParsePolicy(`{"Statement": [{"Effect": "Allow", "Principal": "*", "Action": "s3:GetObject"}]}`)
	if err != nil {
		panic(err)
	}
	return domain.ResourceSnapshot{
		Name:   name,
		Type:   domain.ResourceTypeBucket,
		Region: "us-east-1",
		Configuration: domain.Configuration{
			Policy: policy,
		},
	}
}

func bucketEvent(name, bucket string) []byte {
	return []byte(fmt.Sprintf(`{
		"source": "aws.s3",
		"account": "123456789012",
		"region": "us-east-1",
		"time": "2025-03-01T12:00:00Z",
		"resources": [{"ARN": "arn:aws:s3:::%s"}],
		"detail": {"eventName": %q, "eventID": "evt-1"}
	}`, bucket, name))
}

func TestReconciler_PutBucketPolicyOpensPublicAccessAndPolicyFindings(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	res := f.seedBucket(t, wildcardPolicyBucket("customer-exports"))

	require.NoError(t, f.reconciler.ProcessEvent(ctx, bucketEvent("PutBucketPolicy", "customer-exports")))

	got := f.findingsFor(t, res.ID)
	require.Len(t, got, 2)
	require.Contains(t, got, domain.ControlPublicAccess)
	require.Contains(t, got, domain.ControlPolicy)
	assert.Equal(t, domain.FindingStatusOpen, got[domain.ControlPolicy].Status)
	assert.Equal(t, domain.TriggerEvent, got[domain.ControlPolicy].Evidence.Source)
	assert.Equal(t, "evt-1", got[domain.ControlPolicy].Evidence.EventID)
	assert.Len(t, got[domain.ControlPolicy].Evidence.PermissiveStatements, 1)
	assert.Equal(t, 100, got[domain.ControlPublicAccess].RiskScore)
	assert.Equal(t, int32(2), f.applier.calls.Load())

	stored, err := f.resources.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Configuration.Policy)
	assert.False(t, stored.Configuration.EncryptionEnabled)
}

func TestReconciler_RedeliveryIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	res := f.seedBucket(t, wildcardPolicyBucket("customer-exports"))
	raw := bucketEvent("PutBucketPolicy", "customer-exports")

	require.NoError(t, f.reconciler.ProcessEvent(ctx, raw))
	first := f.findingsFor(t, res.ID)
	require.NoError(t, f.reconciler.ProcessEvent(ctx, raw))
	second := f.findingsFor(t, res.ID)

	require.Len(t, second, len(first))
	for controlID, before := range first {
		after := second[controlID]
		assert.Equal(t, before.ID, after.ID)
		assert.Equal(t, before.Status, after.Status)
		assert.Equal(t, before.RiskScore, after.RiskScore)
		assert.True(t, before.DetectedAt.Equal(after.DetectedAt))
	}
}

func TestReconciler_FixResolvesFindings(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	res := f.seedBucket(t, wildcardPolicyBucket("customer-exports"))
	require.NoError(t, f.reconciler.ProcessEvent(ctx, bucketEvent("PutBucketPolicy", "customer-exports")))

	f.provider.session.buckets["customer-exports"] = domain.ResourceSnapshot{Name: "customer-exports", Region: "us-east-1"}
	require.NoError(t, f.reconciler.ProcessEvent(ctx, bucketEvent("DeleteBucketPolicy", "customer-exports")))

	for _, item := range f.findingsFor(t, res.ID) {
		assert.Equal(t, domain.FindingStatusResolved, item.Status)
		assert.NotNil(t, item.ResolvedAt)
	}
}

func TestReconciler_IgnoredEvents(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	f.seedBucket(t, wildcardPolicyBucket("customer-exports"))

	tests := []struct {
		name string
		raw  []byte
	}{
		{"unmapped event name", bucketEvent("GetBucketAcl", "customer-exports")},
		{"unparseable payload", []byte("not json")},
		{"unsupported source", []byte(`{"source": "microsoft.azure.storage"}`)},
		{"unknown account", []byte(`{"source": "aws.s3", "account": "999", "resources": [{"ARN": "arn:aws:s3:::x"}],
			"detail": {"eventName": "PutBucketPolicy"}}`)},
		{"bucket missing everywhere", bucketEvent("PutBucketPolicy", "ghost")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, f.reconciler.ProcessEvent(ctx, tt.raw))
		})
	}
	assert.Equal(t, int32(0), f.applier.calls.Load())
}

func TestReconciler_DiscoversUnknownBucket(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	f.provider.session.buckets["fresh"] = wildcardPolicyBucket("fresh")

	require.NoError(t, f.reconciler.ProcessEvent(ctx, bucketEvent("PutBucketAcl", "fresh")))

	res, found, err := f.resources.FindByName(ctx, "tenant-1", domain.ProviderAWS, "fresh")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, f.account.ID, res.AccountID)
	assert.Len(t, f.findingsFor(t, res.ID), 2)
	assert.Equal(t, 1, f.provider.session.lists)
	assert.Equal(t, 1, f.provider.session.fetches)
}

func TestReconciler_ProviderErrorsPropagate(t *testing.T) {
	t.Run("transient fetch failure", func(t *testing.T) {
		f := setupFixture(t)
		f.seedBucket(t, wildcardPolicyBucket("customer-exports"))
		f.provider.session.fetchErr = fmt.Errorf("get policy: %w", provider.ErrThrottled)

		err := f.reconciler.ProcessEvent(context.Background(), bucketEvent("PutBucketPolicy", "customer-exports"))
		assert.ErrorIs(t, err, provider.ErrThrottled)
		assert.Equal(t, int32(0), f.applier.calls.Load())

		acct, err := f.accounts.Get(context.Background(), f.account.ID)
		require.NoError(t, err)
		assert.Nil(t, acct.LastError)
	})

	t.Run("authorization failure flags account", func(t *testing.T) {
		f := setupFixture(t)
		f.seedBucket(t, wildcardPolicyBucket("customer-exports"))
		f.provider.connectErr = fmt.Errorf("assume role: %w", provider.ErrUnauthorized)

		err := f.reconciler.ProcessEvent(context.Background(), bucketEvent("PutBucketPolicy", "customer-exports"))
		assert.True(t, errors.Is(err, provider.ErrUnauthorized))

		acct, err := f.accounts.Get(context.Background(), f.account.ID)
		require.NoError(t, err)
		require.NotNil(t, acct.LastError)
		assert.True(t, acct.Active)
	})

	t.Run("deleted bucket is ignored", func(t *testing.T) {
		f := setupFixture(t)
		f.seedBucket(t, wildcardPolicyBucket("customer-exports"))
		delete(f.provider.session.buckets, "customer-exports")

		assert.NoError(t, f.reconciler.ProcessEvent(context.Background(), bucketEvent("PutBucketPolicy", "customer-exports")))
	})
}
