package store

import (
	"database/sql"
	"time"
)

type CloudAccount struct {
	ID            string
	TenantID      string
	Provider      string
	ExternalID    string
	Name          string
	Credentials   []byte // JSON object
	Active        bool
	Criticality   float64
	LastScannedAt sql.NullTime
	LastError     sql.NullString
	LastErrorAt   sql.NullTime
	CreatedAt     time.Time
}
