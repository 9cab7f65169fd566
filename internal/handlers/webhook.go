package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// WebhookHandler delivers a task to an external endpoint with an HTTP POST.
// Delivery is at-least-once: the task id rides along as the idempotency key
// so the receiver can deduplicate a redelivery.
type WebhookHandler struct {
	endpoint string
	client   *http.Client
}

// NewWebhookHandler creates a webhook handler for one endpoint.
func NewWebhookHandler(endpoint string, client *http.Client) *WebhookHandler {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookHandler{endpoint: endpoint, client: client}
}

type webhookPayload struct {
	TaskID      string          `json:"task_id"`
	ActionKind  string          `json:"action_kind"`
	AgentKey    string          `json:"agent_key"`
	SubjectID   string          `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Handle POSTs the task context to the endpoint.
func (h *WebhookHandler) Handle(ctx context.Context, task *leasing.Task,
	subject *leasing.Subject, agent *leasing.Agent) (*orchestrator.ActionResult, error) {
	body, err := json.Marshal(webhookPayload{
		TaskID:      task.ID,
		ActionKind:  string(task.ActionKind),
		AgentKey:    agent.AgentKey,
		SubjectID:   subject.ID,
		SubjectName: subject.FullName,
		Payload:     task.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", task.ID)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return &orchestrator.ActionResult{
		Success: true,
		Detail: map[string]any{
			"endpoint":    h.endpoint,
			"status_code": resp.StatusCode,
		},
	}, nil
}

// LogHandler records the task in the structured log and succeeds. The default
// handler for deployments that have not wired a real channel yet.
type LogHandler struct{}

// Handle logs the task.
func (LogHandler) Handle(_ context.Context, task *leasing.Task,
	subject *leasing.Subject, agent *leasing.Agent) (*orchestrator.ActionResult, error) {
	slog.Info("task handled",
		"task_id", task.ID,
		"action_kind", task.ActionKind,
		"agent_key", agent.AgentKey,
		"subject_id", subject.ID)
	return &orchestrator.ActionResult{
		Success: true,
		Detail:  map[string]any{"handler": "log"},
	}, nil
}

// FailingHandler rejects every task. Registered against a throwaway agent
// key to exercise the failure path end to end in staging.
type FailingHandler struct{}

// Handle always fails.
func (FailingHandler) Handle(_ context.Context, task *leasing.Task,
	_ *leasing.Subject, _ *leasing.Agent) (*orchestrator.ActionResult, error) {
	return nil, fmt.Errorf("handler configured to fail task %s", task.ID)
}

var (
	_ orchestrator.ActionHandler = (*WebhookHandler)(nil)
	_ orchestrator.ActionHandler = LogHandler{}
	_ orchestrator.ActionHandler = FailingHandler{}
)
