package store

import (
	"database/sql"
	"time"
)

type ScanRun struct {
	ID         string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Accounts   int
	Succeeded  int
	Failed     int
	Error      sql.NullString
}
