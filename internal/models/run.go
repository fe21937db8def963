package models

import "time"

// RunStatus is the lifecycle state of a recorded sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial" // finished with skipped or errored records
	RunFailed    RunStatus = "failed"
)

// SyncRun is the audit record of one sync invocation.
type SyncRun struct {
	ID         string     `json:"id"`
	Mode       string     `json:"mode"`
	Prune      bool       `json:"prune"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Unchanged  int        `json:"unchanged"`
	Pruned     int        `json:"pruned"`
	Skipped    int        `json:"skipped"`
	Errored    int        `json:"errored"`
	Error      string     `json:"error,omitempty"`
}
