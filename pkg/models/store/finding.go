package store

import (
	"database/sql"
	"time"
)

type Finding struct {
	ID                   string
	TenantID             string
	ResourceID           string
	ControlID            string
	Severity             string
	RiskScore            int
	Status               string
	Title                string
	Description          string
	Evidence             []byte // JSON
	RemediationAvailable bool
	RemediationGuidance  string
	DetectedAt           time.Time
	LastSeenAt           time.Time
	ResolvedAt           sql.NullTime
	Version              int64
}

type SeverityCount struct {
	Severity string
	Count    int
}
