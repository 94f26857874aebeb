package finding

import (
	"context"
	"testing"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	store := newMemoryStore()
	m, c := newTestManager(store)

	f, err := m.Create(context.Background(), domain.NewFinding{
		TenantID:   "tenant-1",
		ResourceID: "res-1",
		ControlID:  domain.ControlLogging,
		Details:    map[string]any{"reported_by": "auditor"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityMedium, f.Severity)
	assert.Equal(t, 50, f.RiskScore)
	assert.Equal(t, "Security issue detected: SG-003", f.Title)
	assert.Equal(t, domain.TriggerManual, f.Evidence.Source)
	assert.Equal(t, c.Now(), f.DetectedAt)

	_, err = m.Create(context.Background(), domain.NewFinding{ResourceID: "res-1", ControlID: domain.ControlLogging})
	assert.ErrorIs(t, err, ErrDuplicate)

	score := 120
	_, err = m.Create(context.Background(), domain.NewFinding{ResourceID: "res-2", ControlID: domain.ControlLogging, RiskScore: &score})
	assert.Error(t, err)

	_, err = m.Create(context.Background(), domain.NewFinding{ControlID: domain.ControlLogging})
	assert.Error(t, err)
}

func TestSuppressAndResolve(t *testing.T) {
	store := newMemoryStore()
	m, c := newTestManager(store)

	created, err := m.ApplyCheckOutcome(context.Background(), testResource(domain.Configuration{}), domain.ControlLogging, failed())
	require.NoError(t, err)

	suppressed, err := m.Suppress(context.Background(), created.Finding.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, domain.FindingStatusSuppressed, suppressed.Status)
	require.NotNil(t, suppressed.Evidence.Suppression)
	assert.Equal(t, DefaultSuppressReason, suppressed.Evidence.Suppression.Reason)
	assert.Equal(t, c.Now(), suppressed.Evidence.Suppression.At)

	c.Advance(time.Minute)
	resolved, err := m.Resolve(context.Background(), created.Finding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FindingStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, c.Now(), *resolved.ResolvedAt)
	require.NotNil(t, resolved.Evidence.Resolution)
	assert.Equal(t, domain.TriggerManual, resolved.Evidence.Resolution.Source)

	_, err = m.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	store := newMemoryStore()
	m, _ := newTestManager(store)

	created, err := m.ApplyCheckOutcome(context.Background(), testResource(domain.Configuration{}), domain.ControlLogging, failed())
	require.NoError(t, err)

	title := "Logging disabled on customer-data"
	fixed := domain.FindingStatusFixed
	updated, err := m.Update(context.Background(), created.Finding.ID, domain.FindingUpdate{Status: &fixed, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.NotNil(t, updated.ResolvedAt)

	open := domain.FindingStatusOpen
	reopened, err := m.Update(context.Background(), created.Finding.ID, domain.FindingUpdate{Status: &open})
	require.NoError(t, err)
	assert.Nil(t, reopened.ResolvedAt)

	bogus := domain.FindingStatus("deleted")
	_, err = m.Update(context.Background(), created.Finding.ID, domain.FindingUpdate{Status: &bogus})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListAndStatistics(t *testing.T) {
	store := newMemoryStore()
	m, _ := newTestManager(store)

	res := testResource(domain.Configuration{})
	for _, controlID := range []string{domain.ControlEncryption, domain.ControlLogging, domain.ControlPolicy} {
		_, err := m.ApplyCheckOutcome(context.Background(), res, controlID, failed())
		require.NoError(t, err)
	}
	_, err := m.ApplyCheckOutcome(context.Background(), res, domain.ControlLogging, passed())
	require.NoError(t, err)

	page, err := m.List(context.Background(), domain.FindingFilter{Status: domain.FindingStatusOpen, Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = m.List(context.Background(), domain.FindingFilter{Status: "weird"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
	assert.NotErrorIs(t, err, ErrInvalidTransition)

	stats, err := m.Statistics(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.BySeverity[domain.SeverityHigh])
	assert.Equal(t, 1, stats.BySeverity[domain.SeverityMedium])
}
