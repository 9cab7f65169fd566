package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// Append inserts one audit event. Events are append-only: nothing in this
// codebase updates or deletes rows in activity_log.
func (s *Postgres) Append(ctx context.Context, event leasing.AuditEvent) error {
	var details []byte
	if event.Details != nil {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log
			(id, organization_id, actor_key, action, status, message, details,
			 subject_id, task_id, execution_ms, cost, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, event.ID, event.OrganizationID, event.ActorKey, event.Action, event.Status,
		event.Message, details, event.SubjectID, event.TaskID,
		event.ExecutionMs, event.Cost, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest audit events, optionally scoped to one
// organization. Used by the dashboard's audit tail.
func (s *Postgres) RecentEvents(ctx context.Context, orgID string, limit int) ([]leasing.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(organization_id::text, ''), actor_key, action, status,
		       message, details, subject_id, task_id, execution_ms, cost, created_at
		FROM activity_log
		WHERE $1 = '' OR organization_id::text = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []leasing.AuditEvent
	for rows.Next() {
		var e leasing.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorKey, &e.Action, &e.Status,
			&e.Message, &details, &e.SubjectID, &e.TaskID,
			&e.ExecutionMs, &e.Cost, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event details: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
