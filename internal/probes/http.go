package probes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// HTTPProbe checks a provider by issuing one lightweight GET against its
// health URL from the organization's credential set. Any transport error,
// timeout, or non-2xx response is an unhealthy result, never an error: the
// monitor owns the decision of what unhealthy means.
type HTTPProbe struct {
	client *http.Client
}

// NewHTTPProbe creates an HTTP probe. The per-probe deadline comes from the
// caller's context, so the client carries no timeout of its own.
func NewHTTPProbe(client *http.Client) *HTTPProbe {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProbe{client: client}
}

// Check performs the probe.
func (p *HTTPProbe) Check(ctx context.Context, _ string, creds orchestrator.ProviderCredentials) leasing.ProviderHealthResult {
	start := time.Now()
	result := leasing.ProviderHealthResult{
		Provider: creds.Provider,
		TestedAt: start.UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.HealthURL, nil)
	if err != nil {
		result.Message = fmt.Sprintf("build request: %v", err)
		return result
	}
	if creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	}

	resp, err := p.client.Do(req)
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Message = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}

	result.Healthy = true
	result.Message = "ok"
	return result
}

var _ orchestrator.ProviderProbe = (*HTTPProbe)(nil)
