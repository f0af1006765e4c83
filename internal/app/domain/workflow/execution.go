package workflow

import "time"

// ExecutionStatus is the state machine position of one workflow run.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusPaused    ExecutionStatus = "PAUSED"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
)

// CanTransitionTo reports whether the move from s to next is a legal edge.
// COMPLETED and FAILED are terminal.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusPaused || next == StatusCompleted || next == StatusFailed
	case StatusPaused:
		return next == StatusRunning
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Execution is one run of a workflow against one entity context.
type Execution struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflowId"`
	ClientID     string                 `json:"clientId,omitempty"`
	Status       ExecutionStatus        `json:"status"`
	CurrentStep  int                    `json:"currentStep"`
	TriggerData  map[string]interface{} `json:"triggerData,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	// WaitUntil parks the run after a WAIT step; the runner re-enters the
	// step loop once it elapses.
	WaitUntil   *time.Time `json:"waitUntil,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// StepResult records the outcome of one action slot during a run or a
// dry run.
type StepResult struct {
	Index   int        `json:"index"`
	Type    ActionType `json:"type"`
	Skipped bool       `json:"skipped"`
	Success bool       `json:"success"`
	Output  string     `json:"output,omitempty"`
	Error   string     `json:"error,omitempty"`
}
