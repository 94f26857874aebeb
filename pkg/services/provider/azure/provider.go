package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/provider"
)

const (
	CredTenantID       = "tenant_id"
	CredClientID       = "client_id"
	CredClientSecret   = "client_secret"
	CredSubscriptionID = "subscription_id"
)

// Provider resolves Azure service principal credentials. Container enumeration
// is not implemented yet, so sessions report ErrUnsupported.
type Provider struct {
	provider.StandardChecks
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() domain.Provider {
	return domain.ProviderAzure
}

func (p *Provider) Connect(_ context.Context, account domain.CloudAccount) (provider.Session, error) {
	creds := account.Credentials
	tenantID, clientID, secret := creds.Get(CredTenantID), creds.Get(CredClientID), creds.Get(CredClientSecret)
	if tenantID == "" || clientID == "" || secret == "" {
		return nil, fmt.Errorf("%w: azure account %s requires tenant_id, client_id and client_secret", provider.ErrUnauthorized, account.ExternalID)
	}

	credential, err := azidentity.NewClientSecretCredential(tenantID, clientID, secret, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to build azure credential: %v", provider.ErrUnauthorized, err)
	}

	subscription := creds.Get(CredSubscriptionID)
	if subscription == "" {
		subscription = account.ExternalID
	}
	return &session{credential: credential, subscriptionID: subscription}, nil
}

type session struct {
	credential     azcore.TokenCredential
	subscriptionID string
}

func (s *session) ListResources(context.Context, string) ([]domain.ResourceRef, error) {
	return nil, fmt.Errorf("%w: listing containers of subscription %s", provider.ErrUnsupported, s.subscriptionID)
}

func (s *session) FetchResource(_ context.Context, name, _ string) (domain.ResourceSnapshot, error) {
	return domain.ResourceSnapshot{}, fmt.Errorf("%w: fetching container %s", provider.ErrUnsupported, name)
}
