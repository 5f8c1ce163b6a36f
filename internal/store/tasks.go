package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateTask inserts a scheduled task row.
func (s *Store) CreateTask(t *ScheduledTask) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO scheduled_tasks (id, name, description, cron_expr, command, enabled,
			last_run_at, last_run_status, last_error, run_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.CronExpr, t.Command, boolToInt(t.Enabled),
		toNullTime(t.LastRunAt), toNullString(t.LastRunStatus), toNullString(t.LastError),
		t.RunCount, t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask fetches one task by id.
func (s *Store) GetTask(id string) (*ScheduledTask, error) {
	row := s.db.QueryRow(taskSelect+` WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListTasks returns all tasks ordered by creation time.
func (s *Store) ListTasks() ([]ScheduledTask, error) {
	rows, err := s.db.Query(taskSelect + ` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTask rewrites the mutable fields of a task row.
func (s *Store) UpdateTask(t *ScheduledTask) error {
	t.UpdatedAt = time.Now()
	res, err := s.db.Exec(`
		UPDATE scheduled_tasks
		SET name = ?, description = ?, cron_expr = ?, command = ?, enabled = ?,
		    last_run_at = ?, last_run_status = ?, last_error = ?, run_count = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, t.CronExpr, t.Command, boolToInt(t.Enabled),
		toNullTime(t.LastRunAt), toNullString(t.LastRunStatus), toNullString(t.LastError),
		t.RunCount, t.UpdatedAt.Unix(), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTask removes a task; run logs cascade.
func (s *Store) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendRunLog records one completed execution.
func (s *Store) AppendRunLog(l *TaskRunLog) error {
	_, err := s.db.Exec(`
		INSERT INTO task_run_logs (task_id, started_at, ended_at, status, output, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.TaskID, l.StartedAt.Unix(), l.EndedAt.Unix(), l.Status,
		toNullString(l.Output), toNullString(l.Error), l.DurationMs)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the most recent limit logs for a task, newest first.
func (s *Store) ListRunLogs(taskID string, limit int) ([]TaskRunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, task_id, started_at, ended_at, status, COALESCE(output, ''), COALESCE(error, ''), duration_ms
		FROM task_run_logs WHERE task_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var out []TaskRunLog
	for rows.Next() {
		var l TaskRunLog
		var started, ended int64
		if err := rows.Scan(&l.ID, &l.TaskID, &started, &ended, &l.Status, &l.Output, &l.Error, &l.DurationMs); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		l.StartedAt = time.Unix(started, 0)
		l.EndedAt = time.Unix(ended, 0)
		out = append(out, l)
	}
	return out, rows.Err()
}

const taskSelect = `
	SELECT id, name, COALESCE(description, ''), cron_expr, command, enabled,
		last_run_at, last_run_status, last_error, run_count, created_at, updated_at
	FROM scheduled_tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ScheduledTask, error) {
	var t ScheduledTask
	var enabled int
	var lastRun sql.NullInt64
	var lastStatus, lastError sql.NullString
	var created, updated int64

	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CronExpr, &t.Command, &enabled,
		&lastRun, &lastStatus, &lastError, &t.RunCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.Enabled = enabled != 0
	t.LastRunAt = fromNullTime(lastRun)
	t.LastRunStatus = lastStatus.String
	t.LastError = lastError.String
	t.CreatedAt = time.Unix(created, 0)
	t.UpdatedAt = time.Unix(updated, 0)
	return &t, nil
}
