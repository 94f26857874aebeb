package domain

import "time"

type FindingStatus string

const (
	FindingStatusOpen       FindingStatus = "open"
	FindingStatusResolved   FindingStatus = "resolved"
	FindingStatusSuppressed FindingStatus = "suppressed"
	FindingStatusFixed      FindingStatus = "fixed"
)

func (s FindingStatus) Valid() bool {
	switch s {
	case FindingStatusOpen, FindingStatusResolved, FindingStatusSuppressed, FindingStatusFixed:
		return true
	default:
		return false
	}
}

type TriggerSource string

const (
	TriggerScan   TriggerSource = "scan"
	TriggerEvent  TriggerSource = "event"
	TriggerManual TriggerSource = "manual"
)

type Exposure struct {
	InternetAccessible bool `json:"internet_accessible"`
	AuthenticatedOnly  bool `json:"authenticated_only"`
}

// CheckResult is the pure outcome of one control check against a snapshot.
type CheckResult struct {
	Failed               bool
	Details              map[string]any
	PermissiveStatements []Statement // only populated by the policy check
}

// CheckOutcome is a CheckResult plus the context it was produced in.
type CheckOutcome struct {
	CheckResult
	Source      TriggerSource
	EventID     string
	Criticality float64
}

type Suppression struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

type Resolution struct {
	Source TriggerSource `json:"source"`
	At     time.Time     `json:"at"`
}

type Evidence struct {
	Check                map[string]any `json:"check,omitempty"`
	PermissiveStatements []Statement    `json:"permissive_statements,omitempty"`
	Exposure             *Exposure      `json:"exposure,omitempty"`
	Source               TriggerSource  `json:"source,omitempty"`
	EventID              string         `json:"event_id,omitempty"`
	CheckedAt            *time.Time     `json:"checked_at,omitempty"`
	Suppression          *Suppression   `json:"suppression,omitempty"`
	Resolution           *Resolution    `json:"resolution,omitempty"`
}

// Finding is unique per (ResourceID, ControlID).
type Finding struct {
	ID                   string
	TenantID             string
	ResourceID           string
	ControlID            string
	Severity             Severity
	RiskScore            int // 0-100
	Status               FindingStatus
	Title                string
	Description          string
	Evidence             Evidence
	RemediationAvailable bool
	RemediationGuidance  string
	DetectedAt           time.Time
	LastSeenAt           time.Time
	ResolvedAt           *time.Time
	Version              int64 // optimistic concurrency token
}

// NewFinding is a caller-provided finding for the manual create path.
type NewFinding struct {
	TenantID    string
	ResourceID  string
	ControlID   string
	Severity    Severity // empty means the control's base severity
	RiskScore   *int     // nil means computed
	Title       string
	Description string
	Details     map[string]any
}

type FindingUpdate struct {
	Status              *FindingStatus
	Title               *string
	Description         *string
	RemediationGuidance *string
}

type FindingFilter struct {
	TenantID   string
	Status     FindingStatus
	Severity   Severity
	ResourceID string
	Limit      int
	Offset     int
}

type FindingPage struct {
	Items []Finding
	Total int
}

type FindingStatistics struct {
	Total      int
	BySeverity map[Severity]int
}
