package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/taskboard/internal/task"
)

const requestColumns = `id, task_id, requester_id, requester_name, reason, status, requested_at, responded_at, new_assignee_id`

// SaveRequest stores or updates a reassignment request.
func (s *SQLStore) SaveRequest(ctx context.Context, r *task.ReassignmentRequest) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.saveRequest(ctx, tx, r)
	})
}

func (s *SQLStore) saveRequest(ctx context.Context, tx *sql.Tx, r *task.ReassignmentRequest) error {
	_, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO reassignment_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			responded_at = excluded.responded_at,
			new_assignee_id = excluded.new_assignee_id
	`),
		r.ID, r.TaskID, r.RequesterID, r.RequesterName, r.Reason, string(r.Status),
		formatTime(r.RequestedAt), nullTime(r.RespondedAt), r.NewAssigneeID,
	)
	if err != nil {
		return fmt.Errorf("failed to save reassignment request: %w", err)
	}
	return nil
}

// GetRequest retrieves a reassignment request by id.
func (s *SQLStore) GetRequest(ctx context.Context, id string) (*task.ReassignmentRequest, error) {
	r, err := scanRequest(s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+requestColumns+` FROM reassignment_requests WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.NotFound("get-request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reassignment request: %w", err)
	}
	return r, nil
}

// ListRequests returns all requests for a task in chronological order.
// Returns empty slice (not nil) if none exist.
func (s *SQLStore) ListRequests(ctx context.Context, taskID string) ([]*task.ReassignmentRequest, error) {
	// Double sort: requested_at ASC, id ASC keeps same-instant requests stable
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT `+requestColumns+`
		FROM reassignment_requests
		WHERE task_id = ?
		ORDER BY requested_at ASC, id ASC
	`), taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reassignment requests: %w", err)
	}
	defer rows.Close()

	requests := []*task.ReassignmentRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reassignment request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reassignment requests: %w", err)
	}
	return requests, nil
}

func scanRequest(row scanner) (*task.ReassignmentRequest, error) {
	var (
		r           task.ReassignmentRequest
		status      string
		requestedAt string
		respondedAt sql.NullString
	)
	err := row.Scan(&r.ID, &r.TaskID, &r.RequesterID, &r.RequesterName, &r.Reason, &status, &requestedAt, &respondedAt, &r.NewAssigneeID)
	if err != nil {
		return nil, err
	}
	if r.Status, err = task.ParseRequestStatus(status); err != nil {
		return nil, err
	}
	if r.RequestedAt, err = parseTime(requestedAt); err != nil {
		return nil, err
	}
	if r.RespondedAt, err = parseNullTime(respondedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
