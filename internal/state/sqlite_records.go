package state

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/leapstack-labs/vedaprep/pkg/core"
)

// GetTaskRecord returns the last successful record for task, or (nil, nil)
// when the task has never completed (or its record was invalidated).
func (s *SQLiteStore) GetTaskRecord(task string) (*core.TaskRecord, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	rec := &core.TaskRecord{Task: task}
	var completedAt string
	err := s.db.QueryRow(
		`SELECT signature, run_id, completed_at FROM task_records WHERE task = ?`, task,
	).Scan(&rec.Signature, &rec.RunID, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task record %s: %w", task, err)
	}
	if rec.CompletedAt, err = parseTime(completedAt); err != nil {
		return nil, err
	}

	fps, err := s.loadFingerprints(`WHERE task = ?`, task)
	if err != nil {
		return nil, err
	}
	applyFingerprints(rec, fps)

	ups, err := s.loadUpstreams(`WHERE task = ?`, task)
	if err != nil {
		return nil, err
	}
	applyUpstreams(rec, ups)
	return rec, nil
}

// CommitTaskRecord replaces the task's record and fingerprints in a single
// transaction. Callers commit only after the task's outputs are flushed.
func (s *SQLiteStore) CommitTaskRecord(rec *core.TaskRecord) (err error) {
	if s.db == nil {
		return errNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	if _, err = tx.Exec(
		`INSERT INTO task_records (task, signature, run_id, completed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(task) DO UPDATE SET
		   signature = excluded.signature,
		   run_id = excluded.run_id,
		   completed_at = excluded.completed_at`,
		rec.Task, rec.Signature, rec.RunID, formatTime(completedAt),
	); err != nil {
		return fmt.Errorf("failed to write task record %s: %w", rec.Task, err)
	}

	if _, err = tx.Exec(`DELETE FROM task_fingerprints WHERE task = ?`, rec.Task); err != nil {
		return fmt.Errorf("failed to clear fingerprints for %s: %w", rec.Task, err)
	}

	if err = insertFingerprints(tx, rec.Task, roleInput, rec.Inputs); err != nil {
		return err
	}
	if err = insertFingerprints(tx, rec.Task, roleOutput, rec.Outputs); err != nil {
		return err
	}
	if err = replaceUpstreams(tx, rec.Task, rec.Upstream); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task record %s: %w", rec.Task, err)
	}
	return nil
}

func insertFingerprints(tx *sql.Tx, task, role string, fps core.Fingerprints) error {
	paths := make([]string, 0, len(fps))
	for p := range fps {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if _, err := tx.Exec(
			`INSERT INTO task_fingerprints (task, role, path, fingerprint) VALUES (?, ?, ?, ?)`,
			task, role, p, fps[p],
		); err != nil {
			return fmt.Errorf("failed to write %s fingerprint for %s: %w", role, task, err)
		}
	}
	return nil
}

func replaceUpstreams(tx *sql.Tx, task string, ups map[string]string) error {
	if _, err := tx.Exec(`DELETE FROM task_upstreams WHERE task = ?`, task); err != nil {
		return fmt.Errorf("failed to clear upstreams for %s: %w", task, err)
	}
	names := make([]string, 0, len(ups))
	for up := range ups {
		names = append(names, up)
	}
	sort.Strings(names)

	for _, up := range names {
		if _, err := tx.Exec(
			`INSERT INTO task_upstreams (task, upstream, run_id) VALUES (?, ?, ?)`,
			task, up, ups[up],
		); err != nil {
			return fmt.Errorf("failed to write upstream %s for %s: %w", up, task, err)
		}
	}
	return nil
}

// DeleteTaskRecord removes the task's record so it can never be considered
// up to date until it completes again.
func (s *SQLiteStore) DeleteTaskRecord(task string) (err error) {
	if s.db == nil {
		return errNotOpen
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM task_fingerprints WHERE task = ?`, task); err != nil {
		return fmt.Errorf("failed to delete fingerprints for %s: %w", task, err)
	}
	if _, err = tx.Exec(`DELETE FROM task_upstreams WHERE task = ?`, task); err != nil {
		return fmt.Errorf("failed to delete upstreams for %s: %w", task, err)
	}
	if _, err = tx.Exec(`DELETE FROM task_records WHERE task = ?`, task); err != nil {
		return fmt.Errorf("failed to delete task record %s: %w", task, err)
	}
	return tx.Commit()
}

// ListTaskRecords returns every stored record ordered by task name.
func (s *SQLiteStore) ListTaskRecords() ([]*core.TaskRecord, error) {
	if s.db == nil {
		return nil, errNotOpen
	}

	rows, err := s.db.Query(`SELECT task, signature, run_id, completed_at FROM task_records ORDER BY task`)
	if err != nil {
		return nil, fmt.Errorf("failed to list task records: %w", err)
	}

	var records []*core.TaskRecord
	for rows.Next() {
		rec := &core.TaskRecord{}
		var completedAt string
		if err := rows.Scan(&rec.Task, &rec.Signature, &rec.RunID, &completedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		if rec.CompletedAt, err = parseTime(completedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	fps, err := s.loadFingerprints("")
	if err != nil {
		return nil, err
	}
	ups, err := s.loadUpstreams("")
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		applyFingerprints(rec, fps)
		applyUpstreams(rec, ups)
	}
	return records, nil
}

type fingerprintSet struct {
	inputs  core.Fingerprints
	outputs core.Fingerprints
}

func (s *SQLiteStore) loadFingerprints(where string, args ...any) (map[string]*fingerprintSet, error) {
	rows, err := s.db.Query(`SELECT task, role, path, fingerprint FROM task_fingerprints `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*fingerprintSet)
	get := func(task string) *fingerprintSet {
		set, ok := out[task]
		if !ok {
			set = &fingerprintSet{inputs: core.Fingerprints{}, outputs: core.Fingerprints{}}
			out[task] = set
		}
		return set
	}

	for rows.Next() {
		var task, role, path, fp string
		if err := rows.Scan(&task, &role, &path, &fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		set := get(task)
		if role == roleOutput {
			set.outputs[path] = fp
		} else {
			set.inputs[path] = fp
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// applyFingerprints copies the task's fingerprints onto rec; tasks without rows get
// empty maps.
func applyFingerprints(rec *core.TaskRecord, sets map[string]*fingerprintSet) {
	rec.Inputs = core.Fingerprints{}
	rec.Outputs = core.Fingerprints{}
	if set, ok := sets[rec.Task]; ok {
		rec.Inputs = set.inputs
		rec.Outputs = set.outputs
	}
}

func (s *SQLiteStore) loadUpstreams(where string, args ...any) (map[string]map[string]string, error) {
	rows, err := s.db.Query(`SELECT task, upstream, run_id FROM task_upstreams `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load upstreams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[string]string)
	for rows.Next() {
		var task, up, runID string
		if err := rows.Scan(&task, &up, &runID); err != nil {
			return nil, fmt.Errorf("failed to scan upstream: %w", err)
		}
		if out[task] == nil {
			out[task] = make(map[string]string)
		}
		out[task][up] = runID
	}
	return out, rows.Err()
}

func applyUpstreams(rec *core.TaskRecord, ups map[string]map[string]string) {
	rec.Upstream = ups[rec.Task]
	if rec.Upstream == nil {
		rec.Upstream = map[string]string{}
	}
}
