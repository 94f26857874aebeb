package provider

import (
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/risk"
)

// StandardChecks evaluates the normalized configuration snapshot. Vendors embed it
// since every vendor reports the same configuration shape.
type StandardChecks struct{}

func (StandardChecks) CheckPublicAccess(resource domain.ResourceSnapshot) domain.CheckResult {
	cfg := resource.Configuration
	exposure := risk.DetectExposure(cfg.Policy, cfg)
	return domain.CheckResult{
		Failed: exposure.InternetAccessible,
		Details: map[string]any{
			"public_access":       cfg.PublicAccess,
			"internet_accessible": exposure.InternetAccessible,
			"authenticated_only":  exposure.AuthenticatedOnly,
		},
	}
}

func (StandardChecks) CheckEncryption(resource domain.ResourceSnapshot) domain.CheckResult {
	enabled := resource.Configuration.EncryptionEnabled
	return domain.CheckResult{
		Failed:  !enabled,
		Details: map[string]any{"encryption_enabled": enabled},
	}
}

func (StandardChecks) CheckLogging(resource domain.ResourceSnapshot) domain.CheckResult {
	enabled := resource.Configuration.LoggingEnabled
	return domain.CheckResult{
		Failed:  !enabled,
		Details: map[string]any{"logging_enabled": enabled},
	}
}

func (StandardChecks) CheckVersioning(resource domain.ResourceSnapshot) domain.CheckResult {
	enabled := resource.Configuration.VersioningEnabled
	return domain.CheckResult{
		Failed:  !enabled,
		Details: map[string]any{"versioning_enabled": enabled},
	}
}

// CheckPolicy flags statements granting a wildcard action or a wildcard principal.
func (StandardChecks) CheckPolicy(resource domain.ResourceSnapshot) domain.CheckResult {
	policy := resource.Configuration.Policy
	var permissive []domain.Statement
	for _, s := range policy.Statements() {
		if s.HasWildcardAction() || s.HasWildcardPrincipal() {
			permissive = append(permissive, s)
		}
	}

	return domain.CheckResult{
		Failed: len(permissive) > 0,
		Details: map[string]any{
			"policy_present":        policy != nil,
			"statement_count":       len(policy.Statements()),
			"permissive_statements": len(permissive),
		},
		PermissiveStatements: permissive,
	}
}
