package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/taskboard/internal/task"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = `id, project_id, title, status, lock_locked, lock_request_id, lock_request_status,
	lock_requested_at, lock_responded_at, lock_requester_name,
	timer_running, timer_started_at, timer_accumulated, updated_at`

// SaveTask saves or updates a task together with its aliases, assignees
// and checklist. Uses ON CONFLICT to make saves idempotent.
func (s *SQLStore) SaveTask(ctx context.Context, t *task.Task) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.saveTask(ctx, tx, t)
	})
}

// SaveTaskWithRequest persists a task and a reassignment request atomically.
func (s *SQLStore) SaveTaskWithRequest(ctx context.Context, t *task.Task, r *task.ReassignmentRequest) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.saveTask(ctx, tx, t); err != nil {
			return err
		}
		return s.saveRequest(ctx, tx, r)
	})
}

func (s *SQLStore) saveTask(ctx context.Context, tx *sql.Tx, t *task.Task) error {
	status, err := t.Status.MarshalText()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			title = excluded.title,
			status = excluded.status,
			lock_locked = excluded.lock_locked,
			lock_request_id = excluded.lock_request_id,
			lock_request_status = excluded.lock_request_status,
			lock_requested_at = excluded.lock_requested_at,
			lock_responded_at = excluded.lock_responded_at,
			lock_requester_name = excluded.lock_requester_name,
			timer_running = excluded.timer_running,
			timer_started_at = excluded.timer_started_at,
			timer_accumulated = excluded.timer_accumulated,
			updated_at = excluded.updated_at
	`),
		t.ID, t.ProjectID, t.Title, string(status),
		boolInt(t.Lock.IsLocked), t.Lock.RequestID, string(t.Lock.RequestStatus),
		nullTime(t.Lock.RequestedAt), nullTime(t.Lock.RespondedAt), t.Lock.RequesterName,
		boolInt(t.Timer.Running), nullTime(t.Timer.StartedAt), t.Timer.AccumulatedSeconds,
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	// Children are replaced wholesale; the snapshot is the unit of truth.
	for _, table := range []string{"task_aliases", "task_assignees", "checklist_items"} {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM `+table+` WHERE task_id = ?`), t.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, alias := range t.Aliases {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO task_aliases (alias, task_id) VALUES (?, ?)
			ON CONFLICT(alias) DO UPDATE SET task_id = excluded.task_id
		`), alias, t.ID)
		if err != nil {
			return fmt.Errorf("failed to save alias %q: %w", alias, err)
		}
	}

	for i, a := range t.AssignedUsers {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO task_assignees (task_id, user_id, read_only, position) VALUES (?, ?, ?, ?)
		`), t.ID, a.UserID, boolInt(a.ReadOnly), i)
		if err != nil {
			return fmt.Errorf("failed to save assignee %q: %w", a.UserID, err)
		}
	}

	for i, item := range t.Checklist {
		_, err := tx.ExecContext(ctx, s.dialect.rebind(`
			INSERT INTO checklist_items (id, task_id, title, due_date, status, completed_at, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), item.ID, t.ID, item.Title, nullTime(item.DueDate), string(item.Status), nullTime(item.CompletedAt), i)
		if err != nil {
			return fmt.Errorf("failed to save checklist item %q: %w", item.ID, err)
		}
	}

	return nil
}

// GetTask retrieves a task by id or by any of its aliases.
func (s *SQLStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.scanTask(s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		var canonical string
		aliasErr := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT task_id FROM task_aliases WHERE alias = ?`), id).Scan(&canonical)
		if errors.Is(aliasErr, sql.ErrNoRows) {
			return nil, task.NotFound("get-task", id)
		}
		if aliasErr != nil {
			return nil, fmt.Errorf("failed to resolve alias: %w", aliasErr)
		}
		t, err = s.scanTask(s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), canonical))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.NotFound("get-task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	if err := s.loadChildren(ctx, s.db, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns every task ordered by id.
func (s *SQLStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	// Children are loaded after the cursor is closed so the pool is free.
	for _, t := range tasks {
		if err := s.loadChildren(ctx, s.db, t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanTask(row scanner) (*task.Task, error) {
	var (
		t                        task.Task
		status, requestStatus    string
		locked, running          int
		requestedAt, respondedAt sql.NullString
		startedAt                sql.NullString
		updatedAt                string
	)
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &status,
		&locked, &t.Lock.RequestID, &requestStatus,
		&requestedAt, &respondedAt, &t.Lock.RequesterName,
		&running, &startedAt, &t.Timer.AccumulatedSeconds, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Status, err = task.ParseStatus(status); err != nil {
		return nil, err
	}
	if t.Lock.RequestStatus, err = task.ParseRequestStatus(requestStatus); err != nil {
		return nil, err
	}
	t.Lock.IsLocked = locked != 0
	t.Timer.Running = running != 0
	if t.Lock.RequestedAt, err = parseNullTime(requestedAt); err != nil {
		return nil, err
	}
	if t.Lock.RespondedAt, err = parseNullTime(respondedAt); err != nil {
		return nil, err
	}
	if t.Timer.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLStore) loadChildren(ctx context.Context, q querier, t *task.Task) error {
	aliases, err := q.QueryContext(ctx, s.dialect.rebind(`SELECT alias FROM task_aliases WHERE task_id = ? ORDER BY alias ASC`), t.ID)
	if err != nil {
		return fmt.Errorf("failed to query aliases: %w", err)
	}
	for aliases.Next() {
		var alias string
		if err := aliases.Scan(&alias); err != nil {
			aliases.Close()
			return fmt.Errorf("failed to scan alias: %w", err)
		}
		t.Aliases = append(t.Aliases, alias)
	}
	aliases.Close()

	assignees, err := q.QueryContext(ctx, s.dialect.rebind(`SELECT user_id, read_only FROM task_assignees WHERE task_id = ? ORDER BY position ASC`), t.ID)
	if err != nil {
		return fmt.Errorf("failed to query assignees: %w", err)
	}
	t.AssignedUsers = []task.Assignment{}
	for assignees.Next() {
		var a task.Assignment
		var readOnly int
		if err := assignees.Scan(&a.UserID, &readOnly); err != nil {
			assignees.Close()
			return fmt.Errorf("failed to scan assignee: %w", err)
		}
		a.ReadOnly = readOnly != 0
		t.AssignedUsers = append(t.AssignedUsers, a)
	}
	assignees.Close()

	items, err := q.QueryContext(ctx, s.dialect.rebind(`
		SELECT id, title, due_date, status, completed_at
		FROM checklist_items WHERE task_id = ? ORDER BY position ASC
	`), t.ID)
	if err != nil {
		return fmt.Errorf("failed to query checklist: %w", err)
	}
	defer items.Close()
	t.Checklist = []task.ChecklistItem{}
	for items.Next() {
		var (
			item             task.ChecklistItem
			status           string
			due, completedAt sql.NullString
		)
		if err := items.Scan(&item.ID, &item.Title, &due, &status, &completedAt); err != nil {
			return fmt.Errorf("failed to scan checklist item: %w", err)
		}
		if err := item.Status.UnmarshalText([]byte(status)); err != nil {
			return err
		}
		if item.DueDate, err = parseNullTime(due); err != nil {
			return err
		}
		if item.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return err
		}
		t.Checklist = append(t.Checklist, item)
	}
	return items.Err()
}
