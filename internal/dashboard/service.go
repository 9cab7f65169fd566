package dashboard

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// Service handles data fetching for the dashboard
type Service struct {
	db          *sql.DB
	getHandlers func() []string
}

// NewService creates a new dashboard service. getHandlers reports the
// agent keys with a registered action handler.
func NewService(db *sql.DB, getHandlers func() []string) *Service {
	return &Service{db: db, getHandlers: getHandlers}
}

// Stats holds high-level dashboard statistics
type Stats struct {
	PendingTasks       int
	DueTasks           int
	InProgressTasks    int
	CompletedTasks     int
	FailedTasks        int
	PausedTasks        int
	DegradedAgents     int
	RegisteredHandlers []string
}

// GetStats returns dashboard statistics
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if s.getHandlers != nil {
		stats.RegisteredHandlers = s.getHandlers()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM tasks
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query task stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			continue
		}

		switch leasing.TaskStatus(status) {
		case leasing.TaskPending:
			stats.PendingTasks = count
		case leasing.TaskInProgress:
			stats.InProgressTasks = count
		case leasing.TaskCompleted:
			stats.CompletedTasks = count
		case leasing.TaskFailed:
			stats.FailedTasks = count
		case leasing.TaskPausedHumanControl:
			stats.PausedTasks = count
		}
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE status = 'pending' AND scheduled_for <= NOW()
	`).Scan(&stats.DueTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM agents
		WHERE status = 'degraded'
	`).Scan(&stats.DegradedAgents)
	if err != nil {
		return nil, fmt.Errorf("failed to query degraded agents: %w", err)
	}

	return stats, nil
}

// GetRecentTasks returns the most recently updated tasks
func (s *Service) GetRecentTasks(ctx context.Context, limit int) ([]*leasing.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id, organization_id, subject_id, agent_key, action_kind,
			scheduled_for, status, pause_reason, failure_reason,
			executed_at, completed_at, created_at, updated_at
		FROM tasks
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tasks: %w", err)
	}
	defer rows.Close()

	var taskList []*leasing.Task
	for rows.Next() {
		task := &leasing.Task{}
		var pauseReason, failureReason sql.NullString
		var executedAt, completedAt sql.NullTime

		err := rows.Scan(
			&task.ID, &task.OrganizationID, &task.SubjectID, &task.AgentKey,
			&task.ActionKind, &task.ScheduledFor, &task.Status,
			&pauseReason, &failureReason, &executedAt, &completedAt,
			&task.CreatedAt, &task.UpdatedAt,
		)
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

		taskList = append(taskList, task)
	}

	return taskList, nil
}

// GetTask returns full details for a task
func (s *Service) GetTask(ctx context.Context, id string) (*leasing.Task, error) {
	task := &leasing.Task{}
	var pauseReason, failureReason sql.NullString
	var executedAt, completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT
			id, organization_id, subject_id, agent_key, action_kind,
			scheduled_for, status, pause_reason, failure_reason,
			executed_at, completed_at, payload, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`, id).Scan(
		&task.ID, &task.OrganizationID, &task.SubjectID, &task.AgentKey,
		&task.ActionKind, &task.ScheduledFor, &task.Status,
		&pauseReason, &failureReason, &executedAt, &completedAt,
		&task.Payload, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
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

	return task, nil
}

// AgentInfo represents an agent row with handler wiring state
type AgentInfo struct {
	ID                string
	OrganizationID    string
	AgentKey          string
	DisplayName       string
	RequiredProviders []string
	IsEnabled         bool
	Status            leasing.AgentStatus
	LastErrorMessage  string
	LastErrorAt       *time.Time
	HasHandler        bool
}

// GetAgents returns all agents ordered by organization and key
func (s *Service) GetAgents(ctx context.Context) ([]*AgentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id, organization_id, agent_key, display_name, required_providers,
			is_enabled, status, last_error_message, last_error_at
		FROM agents
		ORDER BY organization_id, agent_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	handlers := map[string]bool{}
	if s.getHandlers != nil {
		for _, key := range s.getHandlers() {
			handlers[key] = true
		}
	}

	var agents []*AgentInfo
	for rows.Next() {
		a := &AgentInfo{}
		var displayName, lastErrMsg sql.NullString
		var lastErrAt sql.NullTime

		err := rows.Scan(
			&a.ID, &a.OrganizationID, &a.AgentKey, &displayName,
			pq.Array(&a.RequiredProviders), &a.IsEnabled, &a.Status,
			&lastErrMsg, &lastErrAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}

		if displayName.Valid {
			a.DisplayName = displayName.String
		}
		if lastErrMsg.Valid {
			a.LastErrorMessage = lastErrMsg.String
		}
		if lastErrAt.Valid {
			a.LastErrorAt = &lastErrAt.Time
		}
		a.HasHandler = handlers[a.AgentKey]

		agents = append(agents, a)
	}

	return agents, nil
}

// ProviderHealthInfo is a provider health snapshot row
type ProviderHealthInfo struct {
	OrganizationID string
	Provider       string
	Healthy        bool
	Message        string
	LatencyMs      int64
	TestedAt       time.Time
}

// GetProviderHealth returns the latest health snapshot per org and provider
func (s *Service) GetProviderHealth(ctx context.Context) ([]*ProviderHealthInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_id, provider, healthy, message, latency_ms, tested_at
		FROM provider_health
		ORDER BY organization_id, provider
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider health: %w", err)
	}
	defer rows.Close()

	var snapshots []*ProviderHealthInfo
	for rows.Next() {
		h := &ProviderHealthInfo{}
		if err := rows.Scan(&h.OrganizationID, &h.Provider, &h.Healthy, &h.Message, &h.LatencyMs, &h.TestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider health: %w", err)
		}
		snapshots = append(snapshots, h)
	}

	return snapshots, nil
}

// ActivityRow is an activity log entry decoded for display
type ActivityRow struct {
	ID             string
	OrganizationID string
	ActorKey       string
	Action         string
	Status         leasing.AuditStatus
	Message        string
	Details        string
	TaskID         string
	ExecutionMs    int64
	CreatedAt      time.Time
}

// GetRecentActivity returns the newest activity log entries
func (s *Service) GetRecentActivity(ctx context.Context, limit int) ([]*ActivityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, actor_key, action, status, message,
		       details, task_id, execution_ms, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}
	defer rows.Close()

	var events []*ActivityRow
	for rows.Next() {
		e := &ActivityRow{}
		var orgID, taskID sql.NullString
		var details []byte

		err := rows.Scan(
			&e.ID, &orgID, &e.ActorKey, &e.Action, &e.Status, &e.Message,
			&details, &taskID, &e.ExecutionMs, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}

		if orgID.Valid {
			e.OrganizationID = orgID.String
		}
		if taskID.Valid {
			e.TaskID = taskID.String
		}
		if len(details) > 0 {
			var buf map[string]any
			if json.Unmarshal(details, &buf) == nil && len(buf) > 0 {
				pretty, _ := json.Marshal(buf)
				e.Details = string(pretty)
			}
		}

		events = append(events, e)
	}

	return events, nil
}
