package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
)

func MapStoreFindingToDomain(f store.Finding) (domain.Finding, error) {
	var evidence domain.Evidence
	if len(f.Evidence) > 0 {
		if err := json.Unmarshal(f.Evidence, &evidence); err != nil {
			return domain.Finding{}, fmt.Errorf("decode evidence of finding %s: %w", f.ID, err)
		}
	}

	return domain.Finding{
		ID:                   f.ID,
		TenantID:             f.TenantID,
		ResourceID:           f.ResourceID,
		ControlID:            f.ControlID,
		Severity:             domain.Severity(f.Severity),
		RiskScore:            f.RiskScore,
		Status:               domain.FindingStatus(f.Status),
		Title:                f.Title,
		Description:          f.Description,
		Evidence:             evidence,
		RemediationAvailable: f.RemediationAvailable,
		RemediationGuidance:  f.RemediationGuidance,
		DetectedAt:           f.DetectedAt.UTC(),
		LastSeenAt:           f.LastSeenAt.UTC(),
		ResolvedAt:           fromNullTime(f.ResolvedAt),
		Version:              f.Version,
	}, nil
}

func MapDomainFindingToStore(f domain.Finding) (store.Finding, error) {
	evidence, err := json.Marshal(f.Evidence)
	if err != nil {
		return store.Finding{}, fmt.Errorf("encode evidence: %w", err)
	}

	return store.Finding{
		ID:                   f.ID,
		TenantID:             f.TenantID,
		ResourceID:           f.ResourceID,
		ControlID:            f.ControlID,
		Severity:             string(f.Severity),
		RiskScore:            f.RiskScore,
		Status:               string(f.Status),
		Title:                f.Title,
		Description:          f.Description,
		Evidence:             evidence,
		RemediationAvailable: f.RemediationAvailable,
		RemediationGuidance:  f.RemediationGuidance,
		DetectedAt:           f.DetectedAt.UTC(),
		LastSeenAt:           f.LastSeenAt.UTC(),
		ResolvedAt:           toNullTime(f.ResolvedAt),
		Version:              f.Version,
	}, nil
}
