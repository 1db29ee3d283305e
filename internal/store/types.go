package store

import (
	"encoding/json"
	"time"
)

// RunStatus is the terminal state of a recorded run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded flow execution.
type Run struct {
	ID          string          `json:"id"`
	Flow        string          `json:"flow,omitempty"`
	Status      RunStatus       `json:"status"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Vars        json.RawMessage `json:"vars,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Duration is the wall time between start and completion.
func (r *Run) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// RunFilter narrows ListRuns. Zero fields match everything; results are
// newest first.
type RunFilter struct {
	Flow   string
	Status RunStatus
	Since  *time.Time
	Limit  int
	Offset int
}
