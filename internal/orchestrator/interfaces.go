package orchestrator

import (
	"context"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// TaskStore is the durable task queue. CompareAndSetStatus must be atomic
// (compare-and-swap, not read-then-write): it is the only mechanism keeping
// concurrent dispatcher instances from double-processing a task.
type TaskStore interface {
	// FetchDueTasks returns pending tasks whose scheduled_for is due, oldest
	// first, bounded by limit.
	FetchDueTasks(ctx context.Context, limit int) ([]*leasing.Task, error)

	// CompareAndSetStatus transitions a task from expected to next and applies
	// fields, only if the current status still equals expected. Returns false
	// with a nil error when the swap is lost to another writer.
	CompareAndSetStatus(ctx context.Context, taskID string, expected, next leasing.TaskStatus, fields TaskStatusFields) (bool, error)
}

// TaskStatusFields carries the nullable metadata written alongside a status
// transition. Nil fields are left untouched.
type TaskStatusFields struct {
	PauseReason   *string
	FailureReason *string
	ExecutedAt    *time.Time
	CompletedAt   *time.Time
}

// SubjectStore resolves the customer records tasks act on. A missing subject
// is (nil, nil), not an error.
type SubjectStore interface {
	GetSubject(ctx context.Context, orgID, subjectID string) (*leasing.Subject, error)
}

// AgentStore is the durable agent roster. The dispatcher re-reads agent
// status through GetAgent immediately before gating each task; caching it
// would let a concurrent health run's degrade signal be missed.
type AgentStore interface {
	GetAgent(ctx context.Context, orgID, agentKey string) (*leasing.Agent, error)
	ListEnabledAgents(ctx context.Context, orgID string) ([]*leasing.Agent, error)
	UpdateStatus(ctx context.Context, agentID string, next leasing.AgentStatus, errMsg *string, errAt *time.Time) error
}

// HealthStore persists the latest probe snapshot per organization+provider.
type HealthStore interface {
	UpsertProviderHealth(ctx context.Context, orgID string, result leasing.ProviderHealthResult) error
}

// ComplianceGate decides whether a regulated action may go out to a subject.
type ComplianceGate interface {
	Check(ctx context.Context, orgID, subjectID string, kind leasing.ActionKind, agentKey string) (*ComplianceResult, error)
}

// ComplianceResult is the gate's verdict.
type ComplianceResult struct {
	Passed     bool
	Violations []ComplianceViolation
}

// ComplianceViolation is one reason a regulated action is blocked.
type ComplianceViolation struct {
	Code   string
	Detail string
}

// ActionHandler performs the side-effecting work for a task. Handlers run
// under a bounded timeout and are invoked at most once per task.
type ActionHandler interface {
	Handle(ctx context.Context, task *leasing.Task, subject *leasing.Subject, agent *leasing.Agent) (*ActionResult, error)
}

// ActionResult is a handler's reported outcome.
type ActionResult struct {
	Success bool
	Detail  map[string]any
	Cost    float64
}

// HandlerRegistry maps an agent key to its action handler. Injected so
// handler sets are testable and swappable per deployment; unknown keys fail
// the task rather than crash.
type HandlerRegistry map[string]ActionHandler

// ActivityLogger is the append-only audit sink. Append failures must never
// fail the surrounding task or probe; the caller absorbs them.
type ActivityLogger interface {
	Append(ctx context.Context, event leasing.AuditEvent) error
}

// ProviderCredentials is the per-organization configuration a probe needs to
// reach one provider.
type ProviderCredentials struct {
	Provider  string
	HealthURL string
	APIKey    string
	Extra     map[string]string
}

// CredentialSource loads an organization's provider credentials.
type CredentialSource interface {
	ProviderCredentials(ctx context.Context, orgID string) (map[string]ProviderCredentials, error)
}

// ProviderProbe performs one lightweight health request against one provider.
// Probes report failure through the result, never through an error, and must
// respect the deadline on ctx.
type ProviderProbe interface {
	Check(ctx context.Context, orgID string, creds ProviderCredentials) leasing.ProviderHealthResult
}
