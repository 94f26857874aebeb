package domain

import (
	"encoding/json"
	"time"
)

// Property is a configuration aspect that a change event can affect.
type Property string

const (
	PropertyPolicy       Property = "policy"
	PropertyPublicAccess Property = "public_access"
	PropertyEncryption   Property = "encryption"
	PropertyLogging      Property = "logging"
	PropertyVersioning   Property = "versioning"
)

// NormalizedEvent is a vendor change notification reduced to what reconciliation needs.
type NormalizedEvent struct {
	Provider   Provider
	EventID    string
	EventName  string
	EventTime  time.Time
	ResourceID string // bucket/container name
	AccountID  string // vendor account id
	Region     string
	Raw        json.RawMessage
}
