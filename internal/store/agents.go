package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// GetAgent resolves an agent by key within an organization, or (nil, nil) if
// absent.
func (s *Postgres) GetAgent(ctx context.Context, orgID, agentKey string) (*leasing.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, agent_key, display_name, required_providers,
		       is_enabled, status, last_error_message, last_error_at, updated_at
		FROM agents
		WHERE organization_id = $1
		  AND agent_key = $2
	`, orgID, agentKey)

	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListEnabledAgents returns the enabled agents for an organization.
func (s *Postgres) ListEnabledAgents(ctx context.Context, orgID string) ([]*leasing.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, agent_key, display_name, required_providers,
		       is_enabled, status, last_error_message, last_error_at, updated_at
		FROM agents
		WHERE organization_id = $1
		  AND is_enabled = TRUE
		ORDER BY agent_key ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*leasing.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateStatus sets an agent's status and error fields. Passing nil error
// fields clears them, which is how recovery wipes the degrade message.
func (s *Postgres) UpdateStatus(ctx context.Context, agentID string,
	next leasing.AgentStatus, errMsg *string, errAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agents
		SET status = $2,
			last_error_message = $3,
			last_error_at = $4,
			updated_at = NOW()
		WHERE id = $1
	`, agentID, next, errMsg, errAt)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("agent not found: %s", agentID)
	}
	return nil
}

func scanAgent(r rowScanner) (*leasing.Agent, error) {
	agent := &leasing.Agent{}
	var displayName, lastErrorMessage sql.NullString
	var lastErrorAt sql.NullTime

	err := r.Scan(
		&agent.ID, &agent.OrganizationID, &agent.AgentKey, &displayName,
		pq.Array(&agent.RequiredProviders),
		&agent.IsEnabled, &agent.Status, &lastErrorMessage, &lastErrorAt, &agent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	if displayName.Valid {
		agent.DisplayName = displayName.String
	}
	if lastErrorMessage.Valid {
		agent.LastErrorMessage = &lastErrorMessage.String
	}
	if lastErrorAt.Valid {
		agent.LastErrorAt = &lastErrorAt.Time
	}
	return agent, nil
}
