package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// FetchDueTasks returns pending tasks whose scheduled time has passed, oldest
// due first, bounded by limit. The read takes no locks; claiming happens per
// task through CompareAndSetStatus.
func (s *Postgres) FetchDueTasks(ctx context.Context, limit int) ([]*leasing.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, subject_id, agent_key, action_kind,
		       scheduled_for, status, pause_reason, failure_reason,
		       executed_at, completed_at, payload, created_at, updated_at
		FROM tasks
		WHERE status = 'pending'
		  AND scheduled_for <= NOW()
		ORDER BY scheduled_for ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due tasks: %w", err)
	}
	defer rows.Close()

	var taskList []*leasing.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		taskList = append(taskList, task)
	}
	return taskList, rows.Err()
}

// GetTask returns one task by id, or (nil, nil) if absent.
func (s *Postgres) GetTask(ctx context.Context, taskID string) (*leasing.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, subject_id, agent_key, action_kind,
		       scheduled_for, status, pause_reason, failure_reason,
		       executed_at, completed_at, payload, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CreateTask inserts a new pending task and returns its id. Producers own
// task creation; this exists for them and for tests.
func (s *Postgres) CreateTask(ctx context.Context, task *leasing.Task) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (organization_id, subject_id, agent_key, action_kind, scheduled_for, status, payload)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING id
	`, task.OrganizationID, task.SubjectID, task.AgentKey, task.ActionKind,
		task.ScheduledFor, []byte(task.Payload)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return id, nil
}

// CompareAndSetStatus transitions a task from expected to next, applying
// fields, only if the row's status still equals expected. A swap lost to
// another writer returns (false, nil); that is the expected signal of
// mutual exclusion working, not an error.
func (s *Postgres) CompareAndSetStatus(ctx context.Context, taskID string,
	expected, next leasing.TaskStatus, fields orchestrator.TaskStatusFields) (bool, error) {
	if err := leasing.ValidateTaskTransition(expected, next); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $3,
			pause_reason = COALESCE($4, pause_reason),
			failure_reason = COALESCE($5, failure_reason),
			executed_at = COALESCE($6, executed_at),
			completed_at = COALESCE($7, completed_at),
			updated_at = NOW()
		WHERE id = $1
		  AND status = $2
	`, taskID, expected, next,
		fields.PauseReason, fields.FailureReason, fields.ExecutedAt, fields.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*leasing.Task, error) {
	task := &leasing.Task{}
	var pauseReason, failureReason sql.NullString
	var executedAt, completedAt sql.NullTime
	var payload []byte

	err := r.Scan(
		&task.ID, &task.OrganizationID, &task.SubjectID, &task.AgentKey, &task.ActionKind,
		&task.ScheduledFor, &task.Status, &pauseReason, &failureReason,
		&executedAt, &completedAt, &payload, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	if pauseReason.Valid {
		task.PauseReason = &pauseReason.String
	}
	if failureReason.Valid {
		task.FailureReason = &failureReason.String
	}
	if executedAt.Valid {
		task.ExecutedAt = &executedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	task.Payload = payload
	return task, nil
}
