package model

import "time"

// SyncRun represents a record in the sync_runs table.
type SyncRun struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Status      string
	TotalLogs   int
	FailedStage string
}

// Row returns the values in SyncRuns column order.
func (r SyncRun) Row() []any {
	var failed any
	if r.FailedStage != "" {
		failed = r.FailedStage
	}
	return []any{r.RunID, r.StartedAt, r.FinishedAt, r.Status, int64(r.TotalLogs), failed}
}
