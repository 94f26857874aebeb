package risk

import "github.com/de-tools/storage-guard/pkg/models/domain"

// DetectExposure classifies reachability from the resource's own configuration.
// Rules, first match wins:
//  1. public access flag set                      -> internet accessible
//  2. any statement with a wildcard principal     -> internet accessible
//  3. any statement with a (non-wildcard) principal -> authenticated only
//  4. otherwise private
func DetectExposure(policy *domain.Policy, cfg domain.Configuration) domain.Exposure {
	if cfg.PublicAccess {
		return domain.Exposure{InternetAccessible: true}
	}

	statements := policy.Statements()
	for _, s := range statements {
		if s.HasWildcardPrincipal() {
			return domain.Exposure{InternetAccessible: true}
		}
	}

	for _, s := range statements {
		if s.HasPrincipal() {
			return domain.Exposure{AuthenticatedOnly: true}
		}
	}

	return domain.Exposure{}
}

// DetectResourceExposure evaluates the policy carried by the configuration itself.
func DetectResourceExposure(cfg domain.Configuration) domain.Exposure {
	return DetectExposure(cfg.Policy, cfg)
}
