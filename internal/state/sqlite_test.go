package state

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore()
	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore()

	if err := store.Open(":memory:"); err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestSQLiteStore_NotOpen(t *testing.T) {
	store := NewSQLiteStore()

	if _, err := store.CreateRun(); err == nil {
		t.Error("expected error from CreateRun on unopened store")
	}
	if _, err := store.GetTaskRecord("a"); err == nil {
		t.Error("expected error from GetTaskRecord on unopened store")
	}
	if err := store.CommitTaskRecord(&core.TaskRecord{Task: "a"}); err == nil {
		t.Error("expected error from CommitTaskRecord on unopened store")
	}
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	tables := []string{"build_runs", "task_records", "task_fingerprints", "task_upstreams", "task_runs", "v_runs", "v_task_records"}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if err != nil {
			t.Errorf("table %s does not exist: %v", table, err)
		} else {
			_ = rows.Close()
		}
	}

	var version int64
	if err := store.db.QueryRow(`SELECT MAX(version_id) FROM goose_db_version`).Scan(&version); err != nil {
		t.Fatalf("failed to read migration version: %v", err)
	}
	if version != 3 {
		t.Errorf("expected migration version 3, got %d", version)
	}

	// running again is a no-op
	if err := store.InitSchema(); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

// --- Run lifecycle tests ---

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	tests := []struct {
		name       string
		status     core.RunStatus
		errMsg     string
		wantStatus core.RunStatus
		wantErr    string
	}{
		{name: "completed run", status: core.RunStatusCompleted, wantStatus: core.RunStatusCompleted},
		{name: "failed run", status: core.RunStatusFailed, errMsg: "task b failed", wantStatus: core.RunStatusFailed, wantErr: "task b failed"},
		{name: "cancelled run", status: core.RunStatusCancelled, wantStatus: core.RunStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)

			run, err := store.CreateRun()
			if err != nil {
				t.Fatalf("failed to create run: %v", err)
			}
			if run.ID == "" {
				t.Error("run ID should not be empty")
			}
			if run.Status != core.RunStatusRunning {
				t.Errorf("expected status running, got %s", run.Status)
			}

			if err := store.CompleteRun(run.ID, tt.status, tt.errMsg); err != nil {
				t.Fatalf("failed to complete run: %v", err)
			}

			got, err := store.GetRun(run.ID)
			if err != nil {
				t.Fatalf("failed to get run: %v", err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, got.Status)
			}
			if got.Error != tt.wantErr {
				t.Errorf("expected error %q, got %q", tt.wantErr, got.Error)
			}
			if got.CompletedAt == nil {
				t.Error("CompletedAt should be set")
			}
		})
	}
}

func TestSQLiteStore_RunNotFound(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.GetRun("missing"); err == nil {
		t.Error("expected error for missing run")
	}
	if err := store.CompleteRun("missing", core.RunStatusCompleted, ""); err == nil {
		t.Error("expected error completing missing run")
	}
}

func TestSQLiteStore_GetLatestRun(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.GetLatestRun()
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no run, got %+v", latest)
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var ids []string
	for i := range 3 {
		at := base.Add(time.Duration(i) * time.Second)
		store.now = func() time.Time { return at }
		run, err := store.CreateRun()
		if err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
		ids = append(ids, run.ID)
	}

	latest, err = store.GetLatestRun()
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest == nil || latest.ID != ids[2] {
		t.Errorf("expected latest run %s, got %+v", ids[2], latest)
	}
	if !latest.StartedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("unexpected StartedAt %v", latest.StartedAt)
	}
}

// --- Task record tests ---

func TestSQLiteStore_TaskRecords(t *testing.T) {
	store := setupTestStore(t)

	rec, err := store.GetTaskRecord("compile")
	if err != nil {
		t.Fatalf("GetTaskRecord failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}

	first := &core.TaskRecord{
		Task:      "compile",
		Signature: "sig-1",
		RunID:     "run-1",
		Inputs:    core.Fingerprints{"src/a.toml": "sha256:aa", "src/b.yaml": "sha256:bb"},
		Outputs:   core.Fingerprints{"out/catalog.csv": "sha256:cc"},
		Upstream:  map[string]string{"extract": "run-0", "lint": "run-1"},
	}
	if err := store.CommitTaskRecord(first); err != nil {
		t.Fatalf("CommitTaskRecord failed: %v", err)
	}

	got, err := store.GetTaskRecord("compile")
	if err != nil {
		t.Fatalf("GetTaskRecord failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.Signature != "sig-1" || got.RunID != "run-1" {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.Inputs.Equal(first.Inputs) {
		t.Errorf("inputs = %v, want %v", got.Inputs, first.Inputs)
	}
	if !got.Outputs.Equal(first.Outputs) {
		t.Errorf("outputs = %v, want %v", got.Outputs, first.Outputs)
	}
	if !reflect.DeepEqual(got.Upstream, first.Upstream) {
		t.Errorf("upstream = %v, want %v", got.Upstream, first.Upstream)
	}
	if got.CompletedAt.IsZero() {
		t.Error("CompletedAt should default to now")
	}

	// a second commit replaces fingerprints instead of merging them
	second := &core.TaskRecord{
		Task:      "compile",
		Signature: "sig-2",
		RunID:     "run-2",
		Inputs:    core.Fingerprints{"src/a.toml": "sha256:a2"},
		Outputs:   core.Fingerprints{},
	}
	if err := store.CommitTaskRecord(second); err != nil {
		t.Fatalf("CommitTaskRecord failed: %v", err)
	}
	got, err = store.GetTaskRecord("compile")
	if err != nil {
		t.Fatalf("GetTaskRecord failed: %v", err)
	}
	if got.Signature != "sig-2" {
		t.Errorf("expected sig-2, got %s", got.Signature)
	}
	if !got.Inputs.Equal(second.Inputs) {
		t.Errorf("inputs = %v, want %v", got.Inputs, second.Inputs)
	}
	if len(got.Outputs) != 0 {
		t.Errorf("expected no outputs, got %v", got.Outputs)
	}
	if got.Upstream == nil || len(got.Upstream) != 0 {
		t.Errorf("expected an empty upstream map, got %v", got.Upstream)
	}

	if err := store.DeleteTaskRecord("compile"); err != nil {
		t.Fatalf("DeleteTaskRecord failed: %v", err)
	}
	got, err = store.GetTaskRecord("compile")
	if err != nil {
		t.Fatalf("GetTaskRecord failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected record to be deleted, got %+v", got)
	}

	for _, table := range []string{"task_fingerprints", "task_upstreams"} {
		var orphans int
		if err := store.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&orphans); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if orphans != 0 {
			t.Errorf("expected %s rows to be deleted, found %d", table, orphans)
		}
	}

	// deleting a missing record is not an error
	if err := store.DeleteTaskRecord("compile"); err != nil {
		t.Errorf("DeleteTaskRecord on missing record failed: %v", err)
	}
}

func TestSQLiteStore_ListTaskRecords(t *testing.T) {
	store := setupTestStore(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		rec := &core.TaskRecord{
			Task:      name,
			Signature: "sig-" + name,
			RunID:     "run",
			Inputs:    core.Fingerprints{name + ".in": "fp"},
		}
		if err := store.CommitTaskRecord(rec); err != nil {
			t.Fatalf("CommitTaskRecord(%s) failed: %v", name, err)
		}
	}

	records, err := store.ListTaskRecords()
	if err != nil {
		t.Fatalf("ListTaskRecords failed: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i, rec := range records {
		if rec.Task != want[i] {
			t.Errorf("records[%d] = %s, want %s", i, rec.Task, want[i])
		}
		if rec.Inputs[rec.Task+".in"] != "fp" {
			t.Errorf("record %s missing its input fingerprint: %v", rec.Task, rec.Inputs)
		}
		if rec.Outputs == nil {
			t.Errorf("record %s should have a non-nil outputs map", rec.Task)
		}
	}
}

// --- Task run history tests ---

func TestSQLiteStore_TaskRuns(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun()
	if err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	done := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	entries := []*core.TaskRun{
		{RunID: run.ID, Task: "b", Status: core.TaskStatusFailed, Error: "exit status 1", StartedAt: done, CompletedAt: &done, ExecutionMS: 12},
		{RunID: run.ID, Task: "a", Status: core.TaskStatusExecuted, Reason: "no previous record", StartedAt: done, CompletedAt: &done, ExecutionMS: 5},
		{RunID: run.ID, Task: "c", Status: core.TaskStatusBlocked, Reason: "upstream b failed", StartedAt: done},
	}
	for _, e := range entries {
		if err := store.RecordTaskRun(e); err != nil {
			t.Fatalf("RecordTaskRun(%s) failed: %v", e.Task, err)
		}
		if e.ID == "" {
			t.Errorf("RecordTaskRun(%s) should assign an ID", e.Task)
		}
	}

	runs, err := store.GetTaskRunsForRun(run.ID)
	if err != nil {
		t.Fatalf("GetTaskRunsForRun failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 task runs, got %d", len(runs))
	}
	if runs[0].Task != "a" || runs[1].Task != "b" || runs[2].Task != "c" {
		t.Errorf("task runs not ordered by task: %s %s %s", runs[0].Task, runs[1].Task, runs[2].Task)
	}
	if runs[1].Status != core.TaskStatusFailed || runs[1].Error != "exit status 1" {
		t.Errorf("unexpected failed entry %+v", runs[1])
	}
	if runs[2].CompletedAt != nil {
		t.Errorf("blocked task should have no completion time, got %v", runs[2].CompletedAt)
	}
	if runs[0].ExecutionMS != 5 {
		t.Errorf("expected 5ms, got %d", runs[0].ExecutionMS)
	}

	// the run must exist
	err = store.RecordTaskRun(&core.TaskRun{RunID: "missing", Task: "x", Status: core.TaskStatusExecuted, StartedAt: done})
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	store := NewSQLiteStore()
	if err := store.Open(path); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	rec := &core.TaskRecord{
		Task:      "export",
		Signature: "sig",
		RunID:     "run",
		Inputs:    core.Fingerprints{"a": "1"},
		Outputs:   core.Fingerprints{"b": "2"},
	}
	if err := store.CommitTaskRecord(rec); err != nil {
		t.Fatalf("CommitTaskRecord failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := NewSQLiteStore()
	if err := reopened.Open(path); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if err := reopened.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	got, err := reopened.GetTaskRecord("export")
	if err != nil {
		t.Fatalf("GetTaskRecord failed: %v", err)
	}
	if got == nil || !got.Outputs.Equal(rec.Outputs) || !got.Inputs.Equal(rec.Inputs) {
		t.Errorf("record not persisted: %+v", got)
	}
}
