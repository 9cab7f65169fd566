package leasing

import (
	"time"
)

// AuditStatus classifies the outcome an audit event records.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailure AuditStatus = "failure"
	AuditSkipped AuditStatus = "skipped"
)

// Actor keys for events emitted by the core components.
const (
	ActorTaskDispatcher = "task_dispatcher"
	ActorHealthMonitor  = "health_monitor"
)

// AuditEvent is the immutable record of one decision: a dispatch, a skip, a
// failure, or a health transition. Events are append-only; nothing in the
// orchestrator mutates or deletes them. Details must stay structured
// key/value since downstream observability tooling parses them.
type AuditEvent struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ActorKey       string         `json:"actor_key"`
	Action         string         `json:"action"`
	Status         AuditStatus    `json:"status"`
	Message        string         `json:"message,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	SubjectID      *string        `json:"subject_id,omitempty"`
	TaskID         *string        `json:"task_id,omitempty"`
	ExecutionMs    int64          `json:"execution_ms,omitempty"`
	Cost           float64        `json:"cost,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
