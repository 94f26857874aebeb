package finding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/metrics"
	"github.com/de-tools/storage-guard/pkg/services/risk"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultSuppressReason = "Manually suppressed"

	maxWriteAttempts = 8
)

type Transition string

const (
	TransitionNone     Transition = "none"
	TransitionCreated  Transition = "created"
	TransitionUpdated  Transition = "updated"
	TransitionReopened Transition = "reopened"
	TransitionResolved Transition = "resolved"
)

// Applied reports what ApplyCheckOutcome did. Finding is nil when no finding exists.
type Applied struct {
	Finding    *domain.Finding
	Transition Transition
}

// Manager is the single writer of finding state for both the full scan and the
// event path.
type Manager struct {
	store    Store
	controls Controls
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

func NewManager(store Store, controls Controls, m *metrics.Metrics) *Manager {
	return &Manager{
		store:    store,
		controls: controls,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// ApplyCheckOutcome reconciles the finding for (resource, control) with a fresh check result.
//
//	no finding, failed          -> create open
//	no finding, passed          -> no-op
//	open, failed                -> refresh in place
//	resolved|fixed, failed      -> reopen, clear resolved_at
//	suppressed, failed          -> stay suppressed, refresh last_seen_at
//	open, passed                -> resolve
//	resolved|suppressed|fixed, passed -> no-op
//
// Concurrent writers on the same pair converge: a lost create race or a stale update
// re-reads and re-applies.
func (m *Manager) ApplyCheckOutcome(
	ctx context.Context,
	resource domain.StorageResource,
	controlID string,
	outcome domain.CheckOutcome,
) (Applied, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("resource", resource.Name).
		Str("control_id", controlID).
		Str("source", string(outcome.Source)).
		Logger()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		existing, found, err := m.store.FindByKey(ctx, resource.ID, controlID)
		if err != nil {
			return Applied{}, fmt.Errorf("failed to look up finding: %w", err)
		}

		if !found {
			if !outcome.Failed {
				return Applied{Transition: TransitionNone}, nil
			}

			f := m.build(resource, controlID, outcome)
			err := m.store.Create(ctx, f)
			if errors.Is(err, ErrDuplicate) {
				logger.Debug().Int("attempt", attempt).Msg("finding created concurrently, retrying as update")
				continue
			}
			if err != nil {
				return Applied{}, fmt.Errorf("failed to create finding: %w", err)
			}

			m.metrics.FindingTransition(controlID, string(TransitionCreated))
			logger.Info().Str("finding_id", f.ID).Int("risk_score", f.RiskScore).Msg("finding opened")
			return Applied{Finding: &f, Transition: TransitionCreated}, nil
		}

		next, transition := m.reconcile(existing, resource, controlID, outcome)
		if transition == TransitionNone {
			return Applied{Finding: &existing, Transition: TransitionNone}, nil
		}

		err = m.store.Update(ctx, next, existing.Version)
		if errors.Is(err, ErrStale) {
			logger.Debug().Int("attempt", attempt).Msg("finding changed concurrently, retrying")
			continue
		}
		if err != nil {
			return Applied{}, fmt.Errorf("failed to update finding: %w", err)
		}

		m.metrics.FindingTransition(controlID, string(transition))
		if transition != TransitionUpdated {
			logger.Info().Str("finding_id", next.ID).Str("transition", string(transition)).Msg("finding status changed")
		}
		return Applied{Finding: &next, Transition: transition}, nil
	}

	return Applied{}, fmt.Errorf("failed to apply outcome for %s/%s after %d attempts: %w", resource.ID, controlID, maxWriteAttempts, ErrStale)
}

func (m *Manager) build(resource domain.StorageResource, controlID string, outcome domain.CheckOutcome) domain.Finding {
	now := m.now()
	f := domain.Finding{
		ID:                   m.newID(),
		TenantID:             resource.TenantID,
		ResourceID:           resource.ID,
		ControlID:            controlID,
		Status:               domain.FindingStatusOpen,
		RemediationAvailable: m.controls.IsRemediationAvailable(controlID),
		RemediationGuidance:  m.controls.RemediationGuidance(controlID),
		DetectedAt:           now,
		Version:              1,
	}
	m.refresh(&f, resource, controlID, outcome, now)
	return f
}

// refresh rewrites the re-derived fields of a failing finding.
func (m *Manager) refresh(f *domain.Finding, resource domain.StorageResource, controlID string, outcome domain.CheckOutcome, now time.Time) {
	severity := m.controls.BaseSeverity(controlID)
	exposure := risk.DetectResourceExposure(resource.Configuration)

	f.Severity = severity
	f.RiskScore = risk.Score(risk.NewFactors(severity, exposure, outcome.Criticality))
	f.Title, f.Description = m.describe(resource, controlID)
	f.LastSeenAt = now

	checkedAt := now
	f.Evidence = domain.Evidence{
		Check:                outcome.Details,
		PermissiveStatements: outcome.PermissiveStatements,
		Exposure:             &exposure,
		Source:               outcome.Source,
		EventID:              outcome.EventID,
		CheckedAt:            &checkedAt,
		Suppression:          f.Evidence.Suppression,
		Resolution:           f.Evidence.Resolution,
	}
}

func (m *Manager) describe(resource domain.StorageResource, controlID string) (string, string) {
	ctrl, err := m.controls.Get(controlID)
	if err != nil {
		return fmt.Sprintf("Security issue detected: %s", controlID),
			fmt.Sprintf("Resource %s failed %s check", resource.Name, controlID)
	}
	return fmt.Sprintf("%s: %s", ctrl.Name, resource.Name),
		fmt.Sprintf("Resource %s failed %s check. %s", resource.Name, controlID, ctrl.Description)
}

func (m *Manager) reconcile(
	existing domain.Finding,
	resource domain.StorageResource,
	controlID string,
	outcome domain.CheckOutcome,
) (domain.Finding, Transition) {
	now := m.now()
	next := existing
	next.Version = existing.Version + 1

	if !outcome.Failed {
		if existing.Status != domain.FindingStatusOpen {
			return existing, TransitionNone
		}
		next.Status = domain.FindingStatusResolved
		next.ResolvedAt = &now
		next.Evidence.Resolution = &domain.Resolution{Source: outcome.Source, At: now}
		return next, TransitionResolved
	}

	m.refresh(&next, resource, controlID, outcome, now)

	switch existing.Status {
	case domain.FindingStatusResolved, domain.FindingStatusFixed:
		next.Status = domain.FindingStatusOpen
		next.ResolvedAt = nil
		next.Evidence.Resolution = nil
		return next, TransitionReopened
	default:
		return next, TransitionUpdated
	}
}
