package core

import "time"

// StateStore persists build state across runs.
//
// Implementations must serialize writes: concurrent task completions may call
// CommitTaskRecord at the same time.
type StateStore interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun() (*BuildRun, error)
	GetRun(id string) (*BuildRun, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	GetLatestRun() (*BuildRun, error)

	// Task record operations. GetTaskRecord returns (nil, nil) when no record exists.
	GetTaskRecord(task string) (*TaskRecord, error)
	CommitTaskRecord(rec *TaskRecord) error
	DeleteTaskRecord(task string) error
	ListTaskRecords() ([]*TaskRecord, error)

	// Task run history
	RecordTaskRun(run *TaskRun) error
	GetTaskRunsForRun(runID string) ([]*TaskRun, error)
}

// RunStatus represents the status of a build run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// BuildRun represents one build invocation.
type BuildRun struct {
	ID          string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// TaskStatus is the outcome of a task within one run.
type TaskStatus string

// Task status constants.
const (
	TaskStatusPending  TaskStatus = "pending"  // dry run: would execute
	TaskStatusExecuted TaskStatus = "executed" // action ran and outputs were recorded
	TaskStatusUpToDate TaskStatus = "up-to-date"
	TaskStatusFailed   TaskStatus = "failed"
	TaskStatusBlocked  TaskStatus = "blocked" // not run because an upstream task failed
)

// Fingerprints maps a file path to its fingerprint.
type Fingerprints map[string]string

// Equal reports whether both maps hold the same paths with the same fingerprints.
func (f Fingerprints) Equal(o Fingerprints) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// TaskRecord is the persisted state of a task as of its last successful run.
type TaskRecord struct {
	Task        string
	Signature   string
	Inputs      Fingerprints
	Outputs     Fingerprints
	RunID       string
	CompletedAt time.Time
	// Upstream maps each direct upstream task to the run id of its record
	// when this task last ran.
	Upstream map[string]string
}

// TaskRun is the history entry for one task within one build run.
type TaskRun struct {
	ID          string
	RunID       string
	Task        string
	Status      TaskStatus
	Reason      string
	StartedAt   time.Time
	CompletedAt *time.Time
	ExecutionMS int64
	Error       string
}
