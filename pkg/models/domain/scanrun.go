package domain

import "time"

type ScanRunStatus string

const (
	ScanRunRunning  ScanRunStatus = "running"
	ScanRunFinished ScanRunStatus = "finished"
	ScanRunFailed   ScanRunStatus = "failed"
	ScanRunCanceled ScanRunStatus = "canceled"
)

// ScanRun is the bookkeeping record of one full reconciliation pass.
type ScanRun struct {
	ID         string
	Status     ScanRunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Accounts   int
	Succeeded  int
	Failed     int
	Error      *string
}
