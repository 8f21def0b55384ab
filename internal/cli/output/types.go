package output

// TaskEvent is one JSON line emitted by `build --json`.
type TaskEvent struct {
	Event      string   `json:"event"` // run_start, task_complete, run_complete
	Timestamp  string   `json:"timestamp"`
	RunID      string   `json:"run_id,omitempty"`
	Tasks      []string `json:"tasks,omitempty"`
	Task       string   `json:"task,omitempty"`
	Status     string   `json:"status,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Executed   int      `json:"executed,omitempty"`
	UpToDate   int      `json:"up_to_date,omitempty"`
	Failed     int      `json:"failed,omitempty"`
	Blocked    int      `json:"blocked,omitempty"`
	TotalMS    int64    `json:"total_ms,omitempty"`
}

// DAGOutput is the JSON form of `dag`.
type DAGOutput struct {
	Levels     []DAGLevel `json:"levels"`
	TotalTasks int        `json:"total_tasks"`
	TotalEdges int        `json:"total_edges"`
}

// DAGLevel is one execution level.
type DAGLevel struct {
	Level int       `json:"level"`
	Tasks []DAGNode `json:"tasks"`
}

// DAGNode is a task with its neighbours.
type DAGNode struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on"`
	UsedBy    []string `json:"used_by"`
}

// PlanOutput is the JSON form of `status` and `build` reports.
type PlanOutput struct {
	RunID   string      `json:"run_id,omitempty"`
	DryRun  bool        `json:"dry_run"`
	Tasks   []PlanTask  `json:"tasks"`
	Summary PlanSummary `json:"summary"`
}

// PlanTask is one task's outcome.
type PlanTask struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// PlanSummary counts outcomes by status.
type PlanSummary map[string]int

// ResolveOutput is the JSON form of `resolve`.
type ResolveOutput struct {
	Documents  int               `json:"documents"`
	Workbooks  []WorkbookSummary `json:"workbooks"`
	Errors     []string          `json:"errors,omitempty"`
	DurationMS int64             `json:"duration_ms"`
}

// WorkbookSummary lists a workbook's sheets and tags.
type WorkbookSummary struct {
	Name   string         `json:"name"`
	Sheets []SheetSummary `json:"sheets"`
}

// SheetSummary lists a sheet's tags in order.
type SheetSummary struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// CleanOutput is the JSON form of `clean`.
type CleanOutput struct {
	DryRun  bool     `json:"dry_run"`
	Tasks   []string `json:"tasks"`
	Removed []string `json:"removed"`
}
