package domain

import "time"

type ResourceType string

const (
	ResourceTypeBucket    ResourceType = "bucket"    // AWS S3, GCS
	ResourceTypeContainer ResourceType = "container" // Azure Blob
)

// Configuration is the security-relevant snapshot of a bucket/container.
type Configuration struct {
	PublicAccess      bool              `json:"public_access"`
	EncryptionEnabled bool              `json:"encryption_enabled"`
	VersioningEnabled bool              `json:"versioning_enabled"`
	LoggingEnabled    bool              `json:"logging_enabled"`
	Policy            *Policy           `json:"policy,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
}

// ResourceRef identifies a resource found by a listing. Region is empty when the
// listing did not resolve it.
type ResourceRef struct {
	Name      string
	Region    string
	CreatedAt *time.Time
}

// ResourceSnapshot is what a provider reports for a single resource.
type ResourceSnapshot struct {
	Name          string
	Type          ResourceType
	Region        string
	Configuration Configuration
	CreatedAt     *time.Time
}

// StorageResource is a persisted resource, unique per (TenantID, Provider, Name).
type StorageResource struct {
	ID             string
	TenantID       string
	AccountID      string
	Provider       Provider
	Type           ResourceType
	Name           string // bucket/container name
	Region         string
	Configuration  Configuration
	DiscoveredAt   time.Time
	LastModifiedAt *time.Time
}

func (r StorageResource) Snapshot() ResourceSnapshot {
	return ResourceSnapshot{
		Name:          r.Name,
		Type:          r.Type,
		Region:        r.Region,
		Configuration: r.Configuration,
	}
}
