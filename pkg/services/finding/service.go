package finding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/risk"
	"github.com/rs/zerolog"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

func (m *Manager) Get(ctx context.Context, id string) (domain.Finding, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, filter domain.FindingFilter) (domain.FindingPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.FindingPage{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, filter.Status)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultPageSize
	case filter.Limit > MaxPageSize:
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return m.store.List(ctx, filter)
}

// Statistics counts open and suppressed findings by severity.
func (m *Manager) Statistics(ctx context.Context, tenantID string) (domain.FindingStatistics, error) {
	return m.store.Statistics(ctx, tenantID)
}

// Create records a finding reported outside the check pipeline.
func (m *Manager) Create(ctx context.Context, in domain.NewFinding) (domain.Finding, error) {
	if in.ResourceID == "" || in.ControlID == "" {
		return domain.Finding{}, fmt.Errorf("%w: resource id and control id are required", ErrInvalidFinding)
	}

	severity := in.Severity
	if severity == "" {
		severity = m.controls.BaseSeverity(in.ControlID)
	}
	if !severity.Valid() {
		return domain.Finding{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidFinding, severity)
	}

	score := risk.SeverityWeight(severity)
	if in.RiskScore != nil {
		if *in.RiskScore < 0 || *in.RiskScore > risk.MaxScore {
			return domain.Finding{}, fmt.Errorf("%w: risk score must be between 0 and %d", ErrInvalidFinding, risk.MaxScore)
		}
		score = *in.RiskScore
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = fmt.Sprintf("Security issue detected: %s", in.ControlID)
	}

	now := m.now()
	checkedAt := now
	f := domain.Finding{
		ID:                   m.newID(),
		TenantID:             in.TenantID,
		ResourceID:           in.ResourceID,
		ControlID:            in.ControlID,
		Severity:             severity,
		RiskScore:            score,
		Status:               domain.FindingStatusOpen,
		Title:                title,
		Description:          in.Description,
		Evidence:             domain.Evidence{Check: in.Details, Source: domain.TriggerManual, CheckedAt: &checkedAt},
		RemediationAvailable: m.controls.IsRemediationAvailable(in.ControlID),
		RemediationGuidance:  m.controls.RemediationGuidance(in.ControlID),
		DetectedAt:           now,
		LastSeenAt:           now,
		Version:              1,
	}

	if err := m.store.Create(ctx, f); err != nil {
		return domain.Finding{}, err
	}
	m.metrics.FindingTransition(f.ControlID, string(TransitionCreated))
	return f, nil
}

// Update applies a manual edit. Moving to resolved or fixed stamps resolved_at,
// moving back to open clears it.
func (m *Manager) Update(ctx context.Context, id string, update domain.FindingUpdate) (domain.Finding, error) {
	if update.Status != nil && !update.Status.Valid() {
		return domain.Finding{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, *update.Status)
	}

	return m.mutate(ctx, id, func(f *domain.Finding) {
		now := m.now()
		if update.Status != nil {
			m.setStatus(f, *update.Status, DefaultSuppressReason, now)
		}
		if update.Title != nil {
			f.Title = *update.Title
		}
		if update.Description != nil {
			f.Description = *update.Description
		}
		if update.RemediationGuidance != nil {
			f.RemediationGuidance = *update.RemediationGuidance
		}
	})
}

func (m *Manager) Suppress(ctx context.Context, id, reason string) (domain.Finding, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultSuppressReason
	}
	return m.mutate(ctx, id, func(f *domain.Finding) {
		m.setStatus(f, domain.FindingStatusSuppressed, reason, m.now())
	})
}

func (m *Manager) Resolve(ctx context.Context, id string) (domain.Finding, error) {
	return m.mutate(ctx, id, func(f *domain.Finding) {
		m.setStatus(f, domain.FindingStatusResolved, "", m.now())
	})
}

func (m *Manager) setStatus(f *domain.Finding, status domain.FindingStatus, reason string, now time.Time) {
	f.Status = status
	switch status {
	case domain.FindingStatusOpen:
		f.ResolvedAt = nil
		f.Evidence.Resolution = nil
	case domain.FindingStatusResolved, domain.FindingStatusFixed:
		f.ResolvedAt = &now
		f.Evidence.Resolution = &domain.Resolution{Source: domain.TriggerManual, At: now}
	case domain.FindingStatusSuppressed:
		f.Evidence.Suppression = &domain.Suppression{Reason: reason, At: now}
	}
}

func (m *Manager) mutate(ctx context.Context, id string, apply func(f *domain.Finding)) (domain.Finding, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		current, err := m.store.Get(ctx, id)
		if err != nil {
			return domain.Finding{}, err
		}

		next := current
		apply(&next)
		next.Version = current.Version + 1

		err = m.store.Update(ctx, next, current.Version)
		if errors.Is(err, ErrStale) {
			continue
		}
		if err != nil {
			return domain.Finding{}, fmt.Errorf("failed to update finding %s: %w", id, err)
		}

		if next.Status != current.Status {
			m.metrics.FindingTransition(next.ControlID, "manual_"+string(next.Status))
			zerolog.Ctx(ctx).Info().
				Str("finding_id", id).
				Str("from", string(current.Status)).
				Str("to", string(next.Status)).
				Msg("finding status changed manually")
		}
		return next, nil
	}
	return domain.Finding{}, fmt.Errorf("failed to update finding %s after %d attempts: %w", id, maxWriteAttempts, ErrStale)
}
