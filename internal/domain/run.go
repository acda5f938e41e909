package domain

import (
	"encoding/json"
	"time"
)

// RunStatus tracks a workflow run in the step log.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusAborted   RunStatus = "ABORTED"
)

// WorkflowRun is the persisted header of one workflow execution, keyed by event id.
type WorkflowRun struct {
	ID        string
	Workflow  string
	EventName string
	Payload   json.RawMessage
	Status    RunStatus
	Reason    string
	StartedAt time.Time
	UpdatedAt time.Time
}
