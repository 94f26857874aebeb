package store

import (
	"database/sql"
	"time"
)

type StorageResource struct {
	ID             string
	TenantID       string
	AccountID      string
	Provider       string
	ResourceType   string
	ResourceID     string // bucket/container name
	Region         string
	Configuration  []byte // JSON
	DiscoveredAt   time.Time
	LastModifiedAt sql.NullTime
	UpdatedAt      time.Time
}
