package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
// Timestamps are stored as RFC 3339 text and booleans as integers so the
// same DDL runs on SQLite and Postgres.
func (s *SQLStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		lock_locked INTEGER NOT NULL DEFAULT 0,
		lock_request_id TEXT NOT NULL DEFAULT '',
		lock_request_status TEXT NOT NULL DEFAULT '',
		lock_requested_at TEXT,
		lock_responded_at TEXT,
		lock_requester_name TEXT NOT NULL DEFAULT '',
		timer_running INTEGER NOT NULL DEFAULT 0,
		timer_started_at TEXT,
		timer_accumulated BIGINT NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_aliases (
		alias TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_assignees (
		task_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read_only INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL,
		PRIMARY KEY (task_id, user_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS checklist_items (
		id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		title TEXT NOT NULL,
		due_date TEXT,
		status TEXT NOT NULL,
		completed_at TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (task_id, id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS reassignment_requests (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		requester_name TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_at TEXT NOT NULL,
		responded_at TEXT,
		new_assignee_id TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_reassignment_requests_task
		ON reassignment_requests(task_id, requested_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
