package api

type CheckMetadata struct {
	Service      string `json:"service,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	CheckType    string `json:"check_type"`
}

type Control struct {
	Id                   string                   `json:"id"`
	Name                 string                   `json:"name"`
	Description          string                   `json:"description"`
	Version              int                      `json:"version"`
	BaseSeverity         Severity                 `json:"base_severity"`
	ProviderSpecific     map[string]CheckMetadata `json:"provider_specific,omitempty"`
	RemediationAvailable bool                     `json:"remediation_available"`
	RemediationGuidance  string                   `json:"remediation_guidance,omitempty"`
}
