package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/models/store"
)

func MapStoreResourceToDomain(r store.StorageResource) (domain.StorageResource, error) {
	var cfg domain.Configuration
	if len(r.Configuration) > 0 {
		if err := json.Unmarshal(r.Configuration, &cfg); err != nil {
			return domain.StorageResource{}, fmt.Errorf("decode configuration of resource %s: %w", r.ID, err)
		}
	}

	return domain.StorageResource{
		ID:             r.ID,
		TenantID:       r.TenantID,
		AccountID:      r.AccountID,
		Provider:       domain.Provider(r.Provider),
		Type:           domain.ResourceType(r.ResourceType),
		Name:           r.ResourceID,
		Region:         r.Region,
		Configuration:  cfg,
		DiscoveredAt:   r.DiscoveredAt.UTC(),
		LastModifiedAt: fromNullTime(r.LastModifiedAt),
	}, nil
}

func MapDomainResourceToStore(r domain.StorageResource) (store.StorageResource, error) {
	cfg, err := json.Marshal(r.Configuration)
	if err != nil {
		return store.StorageResource{}, fmt.Errorf("encode configuration: %w", err)
	}

	return store.StorageResource{
		ID:             r.ID,
		TenantID:       r.TenantID,
		AccountID:      r.AccountID,
		Provider:       string(r.Provider),
		ResourceType:   string(r.Type),
		ResourceID:     r.Name,
		Region:         r.Region,
		Configuration:  cfg,
		DiscoveredAt:   r.DiscoveredAt.UTC(),
		LastModifiedAt: toNullTime(r.LastModifiedAt),
	}, nil
}

// MapSnapshotToDomainResource binds a provider snapshot to its owning account.
func MapSnapshotToDomainResource(account domain.CloudAccount, s domain.ResourceSnapshot) domain.StorageResource {
	resourceType := s.Type
	if resourceType == "" {
		resourceType = domain.ResourceTypeBucket
	}
	return domain.StorageResource{
		TenantID:       account.TenantID,
		AccountID:      account.ID,
		Provider:       account.Provider,
		Type:           resourceType,
		Name:           s.Name,
		Region:         s.Region,
		Configuration:  s.Configuration,
		LastModifiedAt: s.CreatedAt,
	}
}
