package leasing

import "fmt"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending            TaskStatus = "pending"
	TaskInProgress         TaskStatus = "in_progress"
	TaskCompleted          TaskStatus = "completed"
	TaskFailed             TaskStatus = "failed"
	TaskPausedHumanControl TaskStatus = "paused_human_control"
)

// AgentStatus is the operational state of an agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentActive   AgentStatus = "active"
	AgentDegraded AgentStatus = "degraded"
	AgentDisabled AgentStatus = "disabled"
	AgentError    AgentStatus = "error"
)

var terminalTaskStatuses = map[TaskStatus]bool{
	TaskCompleted: true,
	TaskFailed:    true,
}

// Task status transitions: pending to in_progress exactly once per dispatch
// attempt; paused_human_control is resumable back to pending.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending: {
		TaskInProgress:         true,
		TaskFailed:             true, // gate failures never reach in_progress
		TaskPausedHumanControl: true,
	},
	TaskInProgress: {
		TaskCompleted: true,
		TaskFailed:    true,
	},
	TaskPausedHumanControl: {
		TaskPending: true, // human-control flag cleared by its owner
	},
}

// IsTerminalTaskStatus reports whether a task status is terminal. Terminal
// statuses are never re-entered.
func IsTerminalTaskStatus(s TaskStatus) bool {
	return terminalTaskStatuses[s]
}

// ValidateTaskTransition checks a task status transition against the state
// machine. The stores enforce this again via conditional updates; this is the
// in-process guard.
func ValidateTaskTransition(from, to TaskStatus) error {
	if IsTerminalTaskStatus(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validTaskTransitions[from]
	if !ok {
		return fmt.Errorf("unknown task status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid task transition: %q to %q", from, to)
	}
	return nil
}

// HealthTransition computes the agent status change driven by provider
// health, if any. The only permitted health-driven transitions are
// degraded and idle: disabled and error are operator-owned and are never
// overwritten, and an agent whose providers are all healthy only recovers if
// health is what degraded it.
func HealthTransition(current AgentStatus, allHealthy bool) (AgentStatus, bool) {
	if allHealthy {
		if current == AgentDegraded {
			return AgentIdle, true
		}
		return current, false
	}
	if current == AgentDegraded || current == AgentDisabled || current == AgentError {
		return current, false
	}
	return AgentDegraded, true
}
