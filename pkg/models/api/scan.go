package api

import "time"

type AccountScan struct {
	AccountId string `json:"account_id"`
	TenantId  string `json:"tenant_id"`
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	Resources int    `json:"resources"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
	TookMs    int64  `json:"took_ms"`
}

type ScanSummary struct {
	RunId      string        `json:"run_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Accounts   []AccountScan `json:"accounts"`
}

type ScanQueued struct {
	Queued bool `json:"queued"`
}

type ScanRun struct {
	Id         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Accounts   int        `json:"accounts"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}
