package leasing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTaskTransition(t *testing.T) {
	valid := []struct {
		from, to TaskStatus
	}{
		{TaskPending, TaskInProgress},
		{TaskPending, TaskFailed},
		{TaskPending, TaskPausedHumanControl},
		{TaskInProgress, TaskCompleted},
		{TaskInProgress, TaskFailed},
		{TaskPausedHumanControl, TaskPending},
	}
	for _, tc := range valid {
		assert.NoError(t, ValidateTaskTransition(tc.from, tc.to),
			"%s to %s should be allowed", tc.from, tc.to)
	}

	invalid := []struct {
		from, to TaskStatus
	}{
		{TaskPending, TaskCompleted},
		{TaskInProgress, TaskPending},
		{TaskInProgress, TaskPausedHumanControl},
		{TaskPausedHumanControl, TaskCompleted},
		{TaskPausedHumanControl, TaskFailed},
	}
	for _, tc := range invalid {
		assert.Error(t, ValidateTaskTransition(tc.from, tc.to),
			"%s to %s should be rejected", tc.from, tc.to)
	}
}

func TestValidateTaskTransitionTerminal(t *testing.T) {
	// Terminal statuses are never re-entered or left.
	for _, from := range []TaskStatus{TaskCompleted, TaskFailed} {
		for _, to := range []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskPausedHumanControl} {
			assert.Error(t, ValidateTaskTransition(from, to),
				"terminal %s must not transition to %s", from, to)
		}
	}
}

func TestValidateTaskTransitionUnknownStatus(t *testing.T) {
	err := ValidateTaskTransition(TaskStatus("bogus"), TaskPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task status")
}

func TestIsTerminalTaskStatus(t *testing.T) {
	assert.True(t, IsTerminalTaskStatus(TaskCompleted))
	assert.True(t, IsTerminalTaskStatus(TaskFailed))
	assert.False(t, IsTerminalTaskStatus(TaskPending))
	assert.False(t, IsTerminalTaskStatus(TaskInProgress))
	assert.False(t, IsTerminalTaskStatus(TaskPausedHumanControl))
}

func TestHealthTransition(t *testing.T) {
	tests := []struct {
		name        string
		current     AgentStatus
		allHealthy  bool
		wantStatus  AgentStatus
		wantChanged bool
	}{
		{"idle stays idle when healthy", AgentIdle, true, AgentIdle, false},
		{"idle degrades when unhealthy", AgentIdle, false, AgentDegraded, true},
		{"active stays active when healthy", AgentActive, true, AgentActive, false},
		{"active degrades when unhealthy", AgentActive, false, AgentDegraded, true},
		{"degraded recovers to idle when healthy", AgentDegraded, true, AgentIdle, true},
		{"degraded stays degraded when unhealthy", AgentDegraded, false, AgentDegraded, false},
		{"disabled untouched when healthy", AgentDisabled, true, AgentDisabled, false},
		{"disabled untouched when unhealthy", AgentDisabled, false, AgentDisabled, false},
		{"error untouched when healthy", AgentError, true, AgentError, false},
		{"error untouched when unhealthy", AgentError, false, AgentError, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, changed := HealthTransition(tc.current, tc.allHealthy)
			assert.Equal(t, tc.wantStatus, next)
			assert.Equal(t, tc.wantChanged, changed)
		})
	}
}

func TestActionKindRegulated(t *testing.T) {
	assert.True(t, ActionCall.Regulated())
	assert.True(t, ActionMessage.Regulated())
	assert.False(t, ActionNotify.Regulated())
	assert.False(t, ActionScore.Regulated())
	assert.False(t, ActionVerify.Regulated())
}
