package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// CreateRun creates a new build run.
func (s *SQLiteStore) CreateRun() (*core.BuildRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &core.BuildRun{
		ID:        generateID(),
		Status:    core.RunStatusRunning,
		StartedAt: s.now(),
	}

	_, err := s.db.Exec(
		`INSERT INTO build_runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*core.BuildRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	run, err := scanRun(s.db.QueryRow(
		`SELECT id, status, started_at, completed_at, error FROM build_runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run as finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status core.RunStatus, errMsg string) error {
	if s.db == nil {
		return errNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE build_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(status), formatTime(s.now()), nullString(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetLatestRun retrieves the most recent run. It returns (nil, nil) when
// no run was recorded yet.
func (s *SQLiteStore) GetLatestRun() (*core.BuildRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	run, err := scanRun(s.db.QueryRow(
		`SELECT id, status, started_at, completed_at, error
		 FROM build_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

func scanRun(row *sql.Row) (*core.BuildRun, error) {
	run := &core.BuildRun{}
	var (
		status      string
		startedAt   string
		completedAt sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(&run.ID, &status, &startedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}

	var err error
	run.Status = core.RunStatus(status)
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	run.Error = errMsg.String
	return run, nil
}

// RecordTaskRun stores the outcome of one task within a run.
func (s *SQLiteStore) RecordTaskRun(tr *core.TaskRun) error {
	if s.db == nil {
		return errNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if tr.ID == "" {
		tr.ID = generateID()
	}
	var completedAt sql.NullString
	if tr.CompletedAt != nil {
		completedAt = nullString(formatTime(*tr.CompletedAt))
	}

	_, err := s.db.Exec(
		`INSERT INTO task_runs (id, run_id, task, status, reason, started_at, completed_at, execution_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.RunID, tr.Task, string(tr.Status), nullString(tr.Reason),
		formatTime(tr.StartedAt), completedAt, tr.ExecutionMS, nullString(tr.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record task run %s: %w", tr.Task, err)
	}
	return nil
}

// GetTaskRunsForRun returns every task outcome of a run, ordered by task name.
func (s *SQLiteStore) GetTaskRunsForRun(runID string) ([]*core.TaskRun, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, task, status, reason, started_at, completed_at, execution_ms, error
		 FROM task_runs WHERE run_id = ? ORDER BY task`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.TaskRun
	for rows.Next() {
		tr := &core.TaskRun{}
		var (
			status      string
			reason      sql.NullString
			startedAt   string
			completedAt sql.NullString
			errMsg      sql.NullString
		)
		if err := rows.Scan(&tr.ID, &tr.RunID, &tr.Task, &status, &reason,
			&startedAt, &completedAt, &tr.ExecutionMS, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan task run: %w", err)
		}
		tr.Status = core.TaskStatus(status)
		tr.Reason = reason.String
		tr.Error = errMsg.String
		if tr.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if tr.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, err
		}
		runs = append(runs, tr)
	}
	return runs, rows.Err()
}
