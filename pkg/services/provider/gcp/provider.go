package gcp

import (
	"context"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/provider"
)

const CredServiceAccountKey = "service_account_key"

// Provider satisfies the provider contract for GCS. Bucket enumeration is not
// implemented yet, so sessions report ErrUnsupported.
type Provider struct {
	provider.StandardChecks
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() domain.Provider {
	return domain.ProviderGCP
}

func (p *Provider) Connect(_ context.Context, account domain.CloudAccount) (provider.Session, error) {
	if account.Credentials.Get(CredServiceAccountKey) == "" {
		return nil, fmt.Errorf("%w: gcp project %s requires a service_account_key", provider.ErrUnauthorized, account.ExternalID)
	}
	return session{project: account.ExternalID}, nil
}

type session struct {
	project string
}

func (s session) ListResources(context.Context, string) ([]domain.ResourceRef, error) {
	return nil, fmt.Errorf("%w: listing buckets of project %s", provider.ErrUnsupported, s.project)
}

func (s session) FetchResource(_ context.Context, name, _ string) (domain.ResourceSnapshot, error) {
	return domain.ResourceSnapshot{}, fmt.Errorf("%w: fetching bucket %s", provider.ErrUnsupported, name)
}
