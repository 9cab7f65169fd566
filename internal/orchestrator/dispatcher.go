package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// BatchResult holds the per-outcome counts of one RunOnce invocation.
type BatchResult struct {
	Dispatched      int `json:"dispatched"`
	Skipped         int `json:"skipped"`
	Failed          int `json:"failed"`
	HumanControlled int `json:"human_controlled"`
}

// Dispatcher selects due tasks, evaluates gating conditions, invokes the
// matching action handler, and records every decision in the activity log.
// It holds no state between invocations beyond what is in the stores, so any
// number of instances may run concurrently; mutual exclusion per task rests
// entirely on the conditional pending to in_progress swap in the TaskStore.
type Dispatcher struct {
	tasks    TaskStore
	subjects SubjectStore
	agents   AgentStore
	gate     ComplianceGate
	registry HandlerRegistry
	activity ActivityLogger
	metrics  *Metrics
	config   *Config
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(tasks TaskStore, subjects SubjectStore, agents AgentStore,
	gate ComplianceGate, registry HandlerRegistry, activity ActivityLogger,
	metrics *Metrics, config *Config) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Dispatcher{
		tasks:    tasks,
		subjects: subjects,
		agents:   agents,
		gate:     gate,
		registry: registry,
		activity: activity,
		metrics:  metrics,
		config:   config,
	}
}

// taskOutcome classifies how one task left the batch.
type taskOutcome int

const (
	outcomeDispatched taskOutcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeHumanControlled
	// outcomeConflict is a lost claim race: another instance owns the task.
	// Expected under concurrency, absorbed silently, counted nowhere.
	outcomeConflict
)

// RunOnce processes one bounded batch of due tasks and returns per-outcome
// counts. Tasks are processed sequentially in scheduled_for order; one task's
// failure never aborts the batch. Only an unreachable TaskStore aborts the
// run, and that is logged before it propagates.
func (d *Dispatcher) RunOnce(ctx context.Context) (BatchResult, error) {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.batchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	due, err := d.tasks.FetchDueTasks(ctx, d.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch due tasks", "error", err)
		return BatchResult{}, fmt.Errorf("fetch due tasks: %w", err)
	}

	if len(due) == 0 {
		// Distinguishes "nothing to do" from "dispatcher is down" for
		// whoever tails the activity log.
		d.append(ctx, leasing.AuditEvent{
			ID:        uuid.NewString(),
			ActorKey:  leasing.ActorTaskDispatcher,
			Action:    ActionQueueEmpty,
			Status:    leasing.AuditSuccess,
			Message:   "no due tasks",
			CreatedAt: time.Now().UTC(),
		})
		return BatchResult{}, nil
	}

	slog.Debug("processing due tasks", "count", len(due))

	var result BatchResult
	for _, task := range due {
		switch d.processTask(ctx, task) {
		case outcomeDispatched:
			result.Dispatched++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.Failed++
		case outcomeHumanControlled:
			result.HumanControlled++
		case outcomeConflict:
			if d.metrics != nil {
				d.metrics.claimConflicts.Inc()
			}
		}
	}

	d.append(ctx, leasing.AuditEvent{
		ID:       uuid.NewString(),
		ActorKey: leasing.ActorTaskDispatcher,
		Action:   ActionBatchSummary,
		Status:   leasing.AuditSuccess,
		Message:  fmt.Sprintf("processed %d due tasks", len(due)),
		Details: map[string]any{
			"dispatched":       result.Dispatched,
			"skipped":          result.Skipped,
			"failed":           result.Failed,
			"human_controlled": result.HumanControlled,
		},
		ExecutionMs: time.Since(start).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	})

	slog.Info("dispatch batch completed",
		"dispatched", result.Dispatched,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"human_controlled", result.HumanControlled,
		"duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// processTask runs the per-task gating pipeline. Each step short-circuits to
// a terminal outcome and an audit event; agent status is re-read here, never
// cached, so a degrade signal from a concurrent health run is seen.
func (d *Dispatcher) processTask(ctx context.Context, task *leasing.Task) taskOutcome {
	start := time.Now()

	// Step 1: resolve the subject record. A store error is not the same as an
	// absent record; only the latter is subject_not_found.
	subject, err := d.subjects.GetSubject(ctx, task.OrganizationID, task.SubjectID)
	if err != nil {
		return d.failTask(ctx, task, leasing.TaskPending, ReasonStoreError,
			fmt.Sprintf("resolve subject %s: %v", task.SubjectID, err))
	}
	if subject == nil {
		return d.failTask(ctx, task, leasing.TaskPending, ReasonSubjectNotFound,
			fmt.Sprintf("subject %s not found", task.SubjectID))
	}

	// Step 2: human takeover pre-empts automation deterministically, before
	// any claim is attempted.
	if subject.UnderHumanControl {
		return d.pauseTask(ctx, task)
	}

	// Step 3: resolve the owning agent and its gates.
	agent, err := d.agents.GetAgent(ctx, task.OrganizationID, task.AgentKey)
	if err != nil {
		return d.failTask(ctx, task, leasing.TaskPending, ReasonStoreError,
			fmt.Sprintf("resolve agent %s: %v", task.AgentKey, err))
	}
	if agent == nil {
		return d.failTask(ctx, task, leasing.TaskPending, ReasonAgentNotFound,
			fmt.Sprintf("agent %s not found", task.AgentKey))
	}
	if !agent.IsEnabled {
		// Disabled is an explicit operator decision: hard stop, not a skip.
		return d.failTask(ctx, task, leasing.TaskPending, ReasonAgentDisabled,
			fmt.Sprintf("agent %s is disabled", task.AgentKey))
	}
	if agent.Status == leasing.AgentDegraded {
		// Degraded is transient provider health: leave the task pending so it
		// dispatches on a later run once the agent recovers.
		return d.skipTask(ctx, task, ReasonAgentDegraded,
			fmt.Sprintf("agent %s is degraded", task.AgentKey))
	}

	// Step 4: compliance gate for regulated channels.
	if task.ActionKind.Regulated() {
		gctx, cancel := context.WithTimeout(ctx, d.config.ComplianceTimeout)
		verdict, err := d.gate.Check(gctx, task.OrganizationID, task.SubjectID, task.ActionKind, task.AgentKey)
		cancel()
		if err != nil {
			return d.failTask(ctx, task, leasing.TaskPending, ReasonComplianceError,
				fmt.Sprintf("compliance check: %v", err))
		}
		if !verdict.Passed {
			codes := make([]string, 0, len(verdict.Violations))
			for _, v := range verdict.Violations {
				codes = append(codes, v.Code)
			}
			// Not retried automatically: clearing the violation needs a human
			// or a config change, not another dispatch attempt.
			return d.failTask(ctx, task, leasing.TaskPending, ReasonComplianceBlocked,
				strings.Join(codes, ","))
		}
	}

	// Step 5: claim the task. Losing the swap means another instance already
	// owns it; abandon silently.
	now := time.Now().UTC()
	claimed, err := d.tasks.CompareAndSetStatus(ctx, task.ID, leasing.TaskPending, leasing.TaskInProgress,
		TaskStatusFields{ExecutedAt: &now})
	if err != nil {
		return d.failTask(ctx, task, leasing.TaskPending, ReasonStoreError,
			fmt.Sprintf("claim task: %v", err))
	}
	if !claimed {
		slog.Debug("task claimed by another instance", "task_id", task.ID)
		return outcomeConflict
	}

	// Step 6: dispatch to the matching handler.
	handler, ok := d.registry[task.AgentKey]
	if !ok {
		return d.failTask(ctx, task, leasing.TaskInProgress, ReasonUnknownHandler,
			fmt.Sprintf("no handler registered for agent %s", task.AgentKey))
	}

	hctx, cancel := context.WithTimeout(ctx, d.config.HandlerTimeout)
	outcome, err := handler.Handle(hctx, task, subject, agent)
	cancel()
	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.handlerDuration.WithLabelValues(task.AgentKey).Observe(elapsed.Seconds())
	}

	if err != nil {
		return d.failTask(ctx, task, leasing.TaskInProgress, ReasonHandlerError, err.Error())
	}
	if outcome == nil || !outcome.Success {
		msg := "handler reported failure"
		if outcome != nil && outcome.Detail != nil {
			if m, ok := outcome.Detail["message"].(string); ok && m != "" {
				msg = m
			}
		}
		return d.failTask(ctx, task, leasing.TaskInProgress, ReasonHandlerError, msg)
	}

	// Step 7: mark completed and record the handler's reported details.
	completedAt := time.Now().UTC()
	if _, err := d.tasks.CompareAndSetStatus(ctx, task.ID, leasing.TaskInProgress, leasing.TaskCompleted,
		TaskStatusFields{CompletedAt: &completedAt}); err != nil {
		slog.Error("failed to mark task completed", "task_id", task.ID, "error", err)
	}
	if d.metrics != nil {
		d.metrics.tasksProcessed.WithLabelValues(string(task.ActionKind), "dispatched").Inc()
	}

	d.append(ctx, leasing.AuditEvent{
		ID:             uuid.NewString(),
		OrganizationID: task.OrganizationID,
		ActorKey:       leasing.ActorTaskDispatcher,
		Action:         ActionTaskDispatched,
		Status:         leasing.AuditSuccess,
		Message:        fmt.Sprintf("%s dispatched via %s", task.ActionKind, task.AgentKey),
		Details:        outcome.Detail,
		SubjectID:      &task.SubjectID,
		TaskID:         &task.ID,
		ExecutionMs:    elapsed.Milliseconds(),
		Cost:           outcome.Cost,
		CreatedAt:      completedAt,
	})

	slog.Info("task dispatched",
		"task_id", task.ID,
		"agent_key", task.AgentKey,
		"action_kind", task.ActionKind,
		"duration_ms", elapsed.Milliseconds())

	return outcomeDispatched
}

// pauseTask routes a task under human control to paused_human_control.
func (d *Dispatcher) pauseTask(ctx context.Context, task *leasing.Task) taskOutcome {
	reason := ReasonHumanControlled
	swapped, err := d.tasks.CompareAndSetStatus(ctx, task.ID, leasing.TaskPending, leasing.TaskPausedHumanControl,
		TaskStatusFields{PauseReason: &reason})
	if err != nil {
		slog.Error("failed to pause task", "task_id", task.ID, "error", err)
		return outcomeFailed
	}
	if !swapped {
		return outcomeConflict
	}

	if d.metrics != nil {
		d.metrics.tasksProcessed.WithLabelValues(string(task.ActionKind), "human_controlled").Inc()
	}
	d.append(ctx, leasing.AuditEvent{
		ID:             uuid.NewString(),
		OrganizationID: task.OrganizationID,
		ActorKey:       leasing.ActorTaskDispatcher,
		Action:         ActionTaskPaused,
		Status:         leasing.AuditSkipped,
		Message:        "subject is under human control",
		Details:        map[string]any{"reason": ReasonHumanControlled},
		SubjectID:      &task.SubjectID,
		TaskID:         &task.ID,
		CreatedAt:      time.Now().UTC(),
	})

	slog.Info("task paused for human control", "task_id", task.ID, "subject_id", task.SubjectID)
	return outcomeHumanControlled
}

// skipTask leaves a task pending and records why it was not dispatched.
func (d *Dispatcher) skipTask(ctx context.Context, task *leasing.Task, reason, message string) taskOutcome {
	if d.metrics != nil {
		d.metrics.dispatchSkips.WithLabelValues(reason).Inc()
	}
	d.append(ctx, leasing.AuditEvent{
		ID:             uuid.NewString(),
		OrganizationID: task.OrganizationID,
		ActorKey:       leasing.ActorTaskDispatcher,
		Action:         ActionTaskSkipped,
		Status:         leasing.AuditSkipped,
		Message:        message,
		Details:        map[string]any{"reason": reason},
		SubjectID:      &task.SubjectID,
		TaskID:         &task.ID,
		CreatedAt:      time.Now().UTC(),
	})

	slog.Info("task skipped", "task_id", task.ID, "reason", reason)
	return outcomeSkipped
}

// failTask transitions a task to failed from whichever status it currently
// holds. A lost swap means another instance owns the task now; the failure is
// theirs to record.
func (d *Dispatcher) failTask(ctx context.Context, task *leasing.Task, from leasing.TaskStatus, reason, message string) taskOutcome {
	failure := reason
	if reason == ReasonComplianceBlocked {
		// The concatenated violation codes are the reason, per the audit
		// contract with compliance tooling.
		failure = message
	}
	swapped, err := d.tasks.CompareAndSetStatus(ctx, task.ID, from, leasing.TaskFailed,
		TaskStatusFields{FailureReason: &failure})
	if err != nil {
		slog.Error("failed to mark task failed", "task_id", task.ID, "reason", reason, "error", err)
	} else if !swapped && from == leasing.TaskPending {
		return outcomeConflict
	}

	if d.metrics != nil {
		d.metrics.tasksProcessed.WithLabelValues(string(task.ActionKind), "failed").Inc()
	}
	d.append(ctx, leasing.AuditEvent{
		ID:             uuid.NewString(),
		OrganizationID: task.OrganizationID,
		ActorKey:       leasing.ActorTaskDispatcher,
		Action:         ActionTaskFailed,
		Status:         leasing.AuditFailure,
		Message:        message,
		Details:        map[string]any{"reason": reason},
		SubjectID:      &task.SubjectID,
		TaskID:         &task.ID,
		CreatedAt:      time.Now().UTC(),
	})

	slog.Warn("task failed", "task_id", task.ID, "reason", reason, "message", message)
	return outcomeFailed
}

// append writes an audit event, absorbing sink failures: logging must never
// fail the task it describes.
func (d *Dispatcher) append(ctx context.Context, event leasing.AuditEvent) {
	if d.activity == nil {
		return
	}
	if err := d.activity.Append(ctx, event); err != nil {
		if d.metrics != nil {
			d.metrics.auditAppendFailures.Inc()
		}
		slog.Warn("failed to append audit event", "action", event.Action, "error", err)
	}
}
