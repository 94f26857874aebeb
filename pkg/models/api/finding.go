package api

import (
	"encoding/json"
	"time"
)

type Severity string

type Finding struct {
	Id                   string     `json:"id"`
	TenantId             string     `json:"tenant_id"`
	ResourceId           string     `json:"resource_id"`
	ControlId            string     `json:"control_id"`
	Severity             Severity   `json:"severity"`
	RiskScore            int        `json:"risk_score"`
	Status               string     `json:"status"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Evidence             Evidence   `json:"evidence"`
	RemediationAvailable bool       `json:"remediation_available"`
	RemediationGuidance  string     `json:"remediation_guidance,omitempty"`
	DetectedAt           time.Time  `json:"detected_at"`
	LastSeenAt           time.Time  `json:"last_seen_at"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	Version              int64      `json:"version"`
}

type Evidence struct {
	Check                map[string]any    `json:"check,omitempty"`
	PermissiveStatements []json.RawMessage `json:"permissive_statements,omitempty"`
	InternetAccessible   bool              `json:"internet_accessible"`
	AuthenticatedOnly    bool              `json:"authenticated_only"`
	Source               string            `json:"source,omitempty"`
	EventId              string            `json:"event_id,omitempty"`
	CheckedAt            *time.Time        `json:"checked_at,omitempty"`
	SuppressedReason     string            `json:"suppressed_reason,omitempty"`
	SuppressedAt         *time.Time        `json:"suppressed_at,omitempty"`
	ResolvedBy           string            `json:"resolved_by,omitempty"`
}

type FindingList struct {
	Items  []Finding `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

type FindingStatistics struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
}

type CreateFindingRequest struct {
	TenantId    string         `json:"tenant_id"`
	ResourceId  string         `json:"resource_id"`
	ControlId   string         `json:"control_id"`
	Severity    Severity       `json:"severity,omitempty"`
	RiskScore   *int           `json:"risk_score,omitempty"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

type UpdateFindingRequest struct {
	Status              *string `json:"status,omitempty"`
	Title               *string `json:"title,omitempty"`
	Description         *string `json:"description,omitempty"`
	RemediationGuidance *string `json:"remediation_guidance,omitempty"`
}

type SuppressRequest struct {
	Reason string `json:"reason"`
}

type Error struct {
	Message string `json:"error"`
}
