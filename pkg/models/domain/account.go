package domain

import "time"

type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

func (p Provider) String() string {
	return string(p)
}

// Credentials is an opaque, vendor-interpreted handle (role_arn, client_id, service_account_key, ...).
type Credentials map[string]string

func (c Credentials) Get(key string) string {
	if c == nil {
		return ""
	}
	return c[key]
}

type CloudAccount struct {
	ID            string
	TenantID      string
	Provider      Provider
	ExternalID    string // vendor account / subscription / project id
	Name          string
	Credentials   Credentials
	Active        bool
	Criticality   float64 // business criticality multiplier, 0 means default
	LastScannedAt *time.Time
	LastError     *string // set when a scan is aborted by an authorization failure
	LastErrorAt   *time.Time
}
