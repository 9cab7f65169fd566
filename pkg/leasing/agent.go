package leasing

import (
	"time"
)

// Agent is a named, configurable unit of automation with a required-provider
// set and an operational status.
type Agent struct {
	ID                string      `json:"id"`
	OrganizationID    string      `json:"organization_id"`
	AgentKey          string      `json:"agent_key"`
	DisplayName       string      `json:"display_name,omitempty"`
	RequiredProviders []string    `json:"required_providers"`
	IsEnabled         bool        `json:"is_enabled"`
	Status            AgentStatus `json:"status"`
	LastErrorMessage  *string     `json:"last_error_message,omitempty"`
	LastErrorAt       *time.Time  `json:"last_error_at,omitempty"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// ProviderHealthResult is the outcome of one probe against one provider.
// Only the latest snapshot per organization+provider is persisted.
type ProviderHealthResult struct {
	Provider  string    `json:"provider"`
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	TestedAt  time.Time `json:"tested_at"`
}

// HealthReport aggregates one CheckAll run.
type HealthReport struct {
	Services       map[string]ProviderHealthResult `json:"services"`
	AgentsAffected int                             `json:"agents_affected"`
	ExecutionMs    int64                           `json:"execution_ms"`
}
