package orchestrator

// Reason codes recorded on terminal task outcomes and audit events. These are
// the closed vocabulary downstream tooling matches on.
const (
	ReasonSubjectNotFound   = "subject_not_found"
	ReasonHumanControlled   = "human_controlled"
	ReasonAgentNotFound     = "agent_not_found"
	ReasonAgentDisabled     = "agent_disabled"
	ReasonAgentDegraded     = "agent_degraded"
	ReasonComplianceError   = "compliance_error"
	ReasonComplianceBlocked = "compliance_blocked"
	ReasonUnknownHandler    = "unknown_handler"
	ReasonHandlerError      = "handler_error"
	ReasonStoreError        = "store_error"
)

// Audit actions emitted by the core components.
const (
	ActionTaskDispatched = "task_dispatched"
	ActionTaskSkipped    = "task_skipped"
	ActionTaskFailed     = "task_failed"
	ActionTaskPaused     = "task_paused"
	ActionBatchSummary   = "dispatch_batch"
	ActionQueueEmpty     = "queue_empty"
	ActionProviderProbe  = "provider_probe"
	ActionAgentDegraded  = "agent_degraded"
	ActionAgentRecovered = "agent_recovered"
	ActionHealthSummary  = "health_check"
)
