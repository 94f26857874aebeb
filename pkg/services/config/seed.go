package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"gopkg.in/ini.v1"
)

// Account fields of a seed section. Every other key is passed to the provider as a
// credential, except external_role_id which becomes the assume-role external id.
const (
	seedTenant         = "tenant"
	seedProvider       = "provider"
	seedExternalID     = "external_id"
	seedName           = "name"
	seedActive         = "active"
	seedCriticality    = "criticality"
	seedExternalRoleID = "external_role_id"

	credExternalID = "external_id"
)

// SeedRegistry reads cloud accounts from an ini file, one section per account.
type SeedRegistry interface {
	GetProfiles(ctx context.Context) ([]string, error)
	GetAccount(ctx context.Context, profile string) (domain.CloudAccount, error)
}

type seedRegistry struct {
	cfg *ini.File
}

func NewSeedRegistry(path string) (SeedRegistry, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load account seed file: %w", err)
	}
	return &seedRegistry{cfg: cfg}, nil
}

func (sr *seedRegistry) GetProfiles(_ context.Context) ([]string, error) {
	var profiles []string
	for _, section := range sr.cfg.Sections() {
		if len(section.Keys()) > 0 {
			profiles = append(profiles, section.Name())
		}
	}
	return profiles, nil
}

func (sr *seedRegistry) GetAccount(_ context.Context, profile string) (domain.CloudAccount, error) {
	section, err := sr.cfg.GetSection(profile)
	if err != nil {
		return domain.CloudAccount{}, fmt.Errorf("profile %s not found", profile)
	}

	vendor := domain.Provider(strings.ToLower(section.Key(seedProvider).String()))
	switch vendor {
	case domain.ProviderAWS, domain.ProviderAzure, domain.ProviderGCP:
	default:
		return domain.CloudAccount{}, fmt.Errorf("profile %s: unknown provider %q", profile, vendor)
	}

	account := domain.CloudAccount{
		TenantID:    section.Key(seedTenant).String(),
		Provider:    vendor,
		ExternalID:  section.Key(seedExternalID).String(),
		Name:        section.Key(seedName).MustString(profile),
		Active:      section.Key(seedActive).MustBool(true),
		Criticality: section.Key(seedCriticality).MustFloat64(1.0),
		Credentials: domain.Credentials{},
	}
	if account.TenantID == "" || account.ExternalID == "" {
		return domain.CloudAccount{}, fmt.Errorf("profile %s: tenant and external_id are required", profile)
	}

	for _, key := range section.Keys() {
		switch key.Name() {
		case seedTenant, seedProvider, seedExternalID, seedName, seedActive, seedCriticality:
		case seedExternalRoleID:
			account.Credentials[credExternalID] = key.String()
		default:
			account.Credentials[key.Name()] = key.String()
		}
	}
	return account, nil
}

// LoadAccounts reads every account of a seed file.
func LoadAccounts(ctx context.Context, path string) ([]domain.CloudAccount, error) {
	registry, err := NewSeedRegistry(path)
	if err != nil {
		return nil, err
	}
	profiles, err := registry.GetProfiles(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.CloudAccount, 0, len(profiles))
	for _, profile := range profiles {
		account, err := registry.GetAccount(ctx, profile)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}
