package leasing

import (
	"encoding/json"
	"time"
)

// Task is one scheduled unit of follow-up work against a subject record,
// owned by exactly one agent.
type Task struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	SubjectID      string          `json:"subject_id"`
	AgentKey       string          `json:"agent_key"`
	ActionKind     ActionKind      `json:"action_kind"`
	ScheduledFor   time.Time       `json:"scheduled_for"`
	Status         TaskStatus      `json:"status"`
	PauseReason    *string         `json:"pause_reason,omitempty"`
	FailureReason  *string         `json:"failure_reason,omitempty"`
	ExecutedAt     *time.Time      `json:"executed_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ActionKind discriminates which handler a task is dispatched to.
type ActionKind string

const (
	ActionCall    ActionKind = "call"
	ActionMessage ActionKind = "message"
	ActionNotify  ActionKind = "notify"
	ActionScore   ActionKind = "score"
	ActionVerify  ActionKind = "verify"
)

// regulatedKinds are outbound-contact channels that must pass the compliance
// gate before dispatch.
var regulatedKinds = map[ActionKind]bool{
	ActionCall:    true,
	ActionMessage: true,
}

// Regulated reports whether the action kind requires a compliance check.
func (k ActionKind) Regulated() bool {
	return regulatedKinds[k]
}

// Subject is the customer record a task acts on. The human-control flag is
// owned by an external collaborator; the orchestrator only reads it.
type Subject struct {
	ID                string  `json:"id"`
	OrganizationID    string  `json:"organization_id"`
	FullName          string  `json:"full_name"`
	Phone             string  `json:"phone,omitempty"`
	Email             string  `json:"email,omitempty"`
	UnderHumanControl bool    `json:"under_human_control"`
	HumanControlledBy *string `json:"human_controlled_by,omitempty"`
}
