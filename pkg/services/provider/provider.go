package provider

import (
	"context"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/models/domain"
)

// Session is an authenticated, short-lived connection to one cloud account.
// Sessions are created per scan and never reused across scans.
type Session interface {
	// ListResources enumerates the storage resources of the account without reading
	// their configuration. An empty region means all regions visible to the account.
	ListResources(ctx context.Context, region string) ([]domain.ResourceRef, error)
	// FetchResource reads the current configuration of a single resource, resolving
	// its region when empty. It returns ErrResourceNotFound when the resource no longer exists.
	FetchResource(ctx context.Context, name, region string) (domain.ResourceSnapshot, error)
}

// Provider is the per-vendor capability. The check methods are pure functions of the
// snapshot: no side effects and no network calls.
type Provider interface {
	Name() domain.Provider
	Connect(ctx context.Context, account domain.CloudAccount) (Session, error)

	CheckPublicAccess(resource domain.ResourceSnapshot) domain.CheckResult
	CheckEncryption(resource domain.ResourceSnapshot) domain.CheckResult
	CheckLogging(resource domain.ResourceSnapshot) domain.CheckResult
	CheckVersioning(resource domain.ResourceSnapshot) domain.CheckResult
	CheckPolicy(resource domain.ResourceSnapshot) domain.CheckResult
}

// RunCheck dispatches a control to the provider check that implements it.
func RunCheck(p Provider, controlID string, resource domain.ResourceSnapshot) (domain.CheckResult, error) {
	switch controlID {
	case domain.ControlPublicAccess:
		return p.CheckPublicAccess(resource), nil
	case domain.ControlEncryption:
		return p.CheckEncryption(resource), nil
	case domain.ControlLogging:
		return p.CheckLogging(resource), nil
	case domain.ControlVersioning:
		return p.CheckVersioning(resource), nil
	case domain.ControlPolicy:
		return p.CheckPolicy(resource), nil
	default:
		return domain.CheckResult{}, fmt.Errorf("no check implements control %q", controlID)
	}
}
