package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/de-tools/storage-guard/pkg/models/api"
	"github.com/de-tools/storage-guard/pkg/models/domain"
)

func MapSeverityDomainToApi(s domain.Severity) api.Severity {
	return api.Severity(s)
}

func MapFindingDomainToApi(f domain.Finding) api.Finding {
	return api.Finding{
		Id:                   f.ID,
		TenantId:             f.TenantID,
		ResourceId:           f.ResourceID,
		ControlId:            f.ControlID,
		Severity:             MapSeverityDomainToApi(f.Severity),
		RiskScore:            f.RiskScore,
		Status:               string(f.Status),
		Title:                f.Title,
		Description:          f.Description,
		Evidence:             mapEvidenceDomainToApi(f.Evidence),
		RemediationAvailable: f.RemediationAvailable,
		RemediationGuidance:  f.RemediationGuidance,
		DetectedAt:           f.DetectedAt,
		LastSeenAt:           f.LastSeenAt,
		ResolvedAt:           f.ResolvedAt,
		Version:              f.Version,
	}
}

func mapEvidenceDomainToApi(e domain.Evidence) api.Evidence {
	out := api.Evidence{
		Check:     e.Check,
		Source:    string(e.Source),
		EventId:   e.EventID,
		CheckedAt: e.CheckedAt,
	}
	for _, st := range e.PermissiveStatements {
		raw, err := json.Marshal(st)
		if err != nil {
			continue
		}
		out.PermissiveStatements = append(out.PermissiveStatements, raw)
	}
	if e.Exposure != nil {
		out.InternetAccessible = e.Exposure.InternetAccessible
		out.AuthenticatedOnly = e.Exposure.AuthenticatedOnly
	}
	if e.Suppression != nil {
		out.SuppressedReason = e.Suppression.Reason
		at := e.Suppression.At
		out.SuppressedAt = &at
	}
	if e.Resolution != nil {
		out.ResolvedBy = string(e.Resolution.Source)
	}
	return out
}

func MapFindingPageDomainToApi(page domain.FindingPage, filter domain.FindingFilter) api.FindingList {
	items := make([]api.Finding, 0, len(page.Items))
	for _, f := range page.Items {
		items = append(items, MapFindingDomainToApi(f))
	}
	return api.FindingList{
		Items:  items,
		Total:  page.Total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
}

func MapStatisticsDomainToApi(s domain.FindingStatistics) api.FindingStatistics {
	out := api.FindingStatistics{Total: s.Total, BySeverity: make(map[api.Severity]int, len(s.BySeverity))}
	for sev, n := range s.BySeverity {
		out.BySeverity[MapSeverityDomainToApi(sev)] = n
	}
	return out
}

func MapCreateFindingApiToDomain(req api.CreateFindingRequest) (domain.NewFinding, error) {
	in := domain.NewFinding{
		TenantID:    strings.TrimSpace(req.TenantId),
		ResourceID:  strings.TrimSpace(req.ResourceId),
		ControlID:   strings.TrimSpace(req.ControlId),
		RiskScore:   req.RiskScore,
		Title:       req.Title,
		Description: req.Description,
		Details:     req.Details,
	}
	if req.Severity != "" {
		sev, ok := domain.ParseSeverity(string(req.Severity))
		if !ok {
			return domain.NewFinding{}, fmt.Errorf("unknown severity %q", req.Severity)
		}
		in.Severity = sev
	}
	return in, nil
}

func MapUpdateFindingApiToDomain(req api.UpdateFindingRequest) domain.FindingUpdate {
	update := domain.FindingUpdate{
		Title:               req.Title,
		Description:         req.Description,
		RemediationGuidance: req.RemediationGuidance,
	}
	if req.Status != nil {
		status := domain.FindingStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		update.Status = &status
	}
	return update
}

func MapControlDomainToApi(c domain.Control) api.Control {
	out := api.Control{
		Id:                   c.ID,
		Name:                 c.Name,
		Description:          c.Description,
		Version:              c.Version,
		BaseSeverity:         MapSeverityDomainToApi(c.BaseSeverity),
		RemediationAvailable: c.RemediationAvailable,
		RemediationGuidance:  c.RemediationGuidance,
	}
	if len(c.ProviderSpecific) > 0 {
		out.ProviderSpecific = make(map[string]api.CheckMetadata, len(c.ProviderSpecific))
		for p, meta := range c.ProviderSpecific {
			out.ProviderSpecific[string(p)] = api.CheckMetadata{
				Service:      meta.Service,
				ResourceType: meta.ResourceType,
				CheckType:    meta.CheckType,
			}
		}
	}
	return out
}
