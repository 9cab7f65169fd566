// Package compliance holds clients for the external compliance gate that
// screens regulated outreach before it is dispatched.
package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// HTTPGate calls a remote compliance service over HTTP. The service owns the
// consent and quiet-hours rules; this client only transports the verdict.
type HTTPGate struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGate creates a gate client for the given endpoint. The caller's
// context deadline bounds each check; the client carries no timeout of its
// own.
func NewHTTPGate(endpoint string, client *http.Client) *HTTPGate {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPGate{endpoint: endpoint, client: client}
}

type checkRequest struct {
	OrganizationID string `json:"organization_id"`
	SubjectID      string `json:"subject_id"`
	ActionKind     string `json:"action_kind"`
	AgentKey       string `json:"agent_key"`
}

type checkResponse struct {
	Passed     bool `json:"passed"`
	Violations []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"violations"`
}

// Check submits the action for screening and returns the verdict.
func (g *HTTPGate) Check(ctx context.Context, orgID, subjectID string, kind leasing.ActionKind, agentKey string) (*orchestrator.ComplianceResult, error) {
	body, err := json.Marshal(checkRequest{
		OrganizationID: orgID,
		SubjectID:      subjectID,
		ActionKind:     string(kind),
		AgentKey:       agentKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode compliance request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build compliance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compliance check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("compliance service returned status %d", resp.StatusCode)
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode compliance response: %w", err)
	}

	result := &orchestrator.ComplianceResult{Passed: decoded.Passed}
	for _, v := range decoded.Violations {
		result.Violations = append(result.Violations, orchestrator.ComplianceViolation{
			Code:   v.Code,
			Detail: v.Detail,
		})
	}
	return result, nil
}

// AllowAll passes every check. Used when no compliance endpoint is
// configured, for example in local development.
type AllowAll struct{}

// Check always passes.
func (AllowAll) Check(ctx context.Context, orgID, subjectID string, kind leasing.ActionKind, agentKey string) (*orchestrator.ComplianceResult, error) {
	return &orchestrator.ComplianceResult{Passed: true}, nil
}

var (
	_ orchestrator.ComplianceGate = (*HTTPGate)(nil)
	_ orchestrator.ComplianceGate = AllowAll{}
)
