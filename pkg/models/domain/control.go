package domain

const (
	ControlPublicAccess = "SG-001"
	ControlEncryption   = "SG-002"
	ControlLogging      = "SG-003"
	ControlVersioning   = "SG-004"
	ControlPolicy       = "SG-005"
)

// AllControls lists the controls evaluated by a full scan, in evaluation order.
func AllControls() []string {
	return []string{
		ControlPublicAccess,
		ControlEncryption,
		ControlLogging,
		ControlVersioning,
		ControlPolicy,
	}
}

type CheckMetadata struct {
	Service      string `yaml:"service,omitempty" json:"service,omitempty"`             // s3, storage
	ResourceType string `yaml:"resource_type,omitempty" json:"resource_type,omitempty"` // Microsoft.Storage/storageAccounts
	CheckType    string `yaml:"check_type" json:"check_type"`                           // bucket_policy, encryption
}

type Control struct {
	ID                   string
	Name                 string
	Description          string
	Version              int
	BaseSeverity         Severity
	ProviderSpecific     map[Provider]CheckMetadata
	RemediationAvailable bool
	RemediationGuidance  string
}
