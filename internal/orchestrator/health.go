package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// HealthMonitor fans out provider probes in parallel, persists the latest
// snapshot per provider, and flips agents between degraded and idle based on
// their required-provider sets. It is the sole writer of health-driven agent
// transitions; operator-owned statuses (disabled, error) are never touched.
type HealthMonitor struct {
	agents   AgentStore
	health   HealthStore
	creds    CredentialSource
	probes   map[string]ProviderProbe
	activity ActivityLogger
	metrics  *Metrics
	config   *Config
}

// NewHealthMonitor creates a new HealthMonitor. probes maps provider
// identifiers to their probe implementations; providers without a probe are
// unknown to the monitor.
func NewHealthMonitor(agents AgentStore, health HealthStore, creds CredentialSource,
	probes map[string]ProviderProbe, activity ActivityLogger, metrics *Metrics, config *Config) *HealthMonitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &HealthMonitor{
		agents:   agents,
		health:   health,
		creds:    creds,
		probes:   probes,
		activity: activity,
		metrics:  metrics,
		config:   config,
	}
}

// CheckAll probes every known provider for one organization concurrently and
// applies the resulting agent status transitions. Probe errors and timeouts
// become unhealthy results, never errors; only an unreachable store aborts
// the run.
func (m *HealthMonitor) CheckAll(ctx context.Context, orgID string) (*leasing.HealthReport, error) {
	start := time.Now()

	credentials, err := m.creds.ProviderCredentials(ctx, orgID)
	if err != nil {
		slog.Error("failed to load provider credentials", "org_id", orgID, "error", err)
		return nil, fmt.Errorf("load provider credentials: %w", err)
	}

	results := make(map[string]leasing.ProviderHealthResult, len(m.probes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.ProbeParallelism)
	for provider, probe := range m.probes {
		provider, probe := provider, probe
		g.Go(func() error {
			res := m.runProbe(gctx, orgID, provider, probe, credentials)
			mu.Lock()
			results[provider] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // probes never return errors

	// Persist snapshots and audit each probe in a stable order.
	providers := make([]string, 0, len(results))
	for p := range results {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	for _, provider := range providers {
		res := results[provider]
		if err := m.health.UpsertProviderHealth(ctx, orgID, res); err != nil {
			slog.Warn("failed to persist provider health", "org_id", orgID, "provider", provider, "error", err)
		}
		if m.metrics != nil {
			healthy := 0.0
			if res.Healthy {
				healthy = 1.0
			}
			m.metrics.providerHealthy.WithLabelValues(orgID, provider).Set(healthy)
			m.metrics.probeDuration.WithLabelValues(provider).Observe(float64(res.LatencyMs) / 1000)
		}

		status := leasing.AuditSuccess
		if !res.Healthy {
			status = leasing.AuditFailure
		}
		m.append(ctx, leasing.AuditEvent{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			ActorKey:       leasing.ActorHealthMonitor,
			Action:         ActionProviderProbe,
			Status:         status,
			Message:        res.Message,
			Details: map[string]any{
				"provider":   provider,
				"healthy":    res.Healthy,
				"latency_ms": res.LatencyMs,
			},
			ExecutionMs: res.LatencyMs,
			CreatedAt:   res.TestedAt,
		})
	}

	affected, err := m.applyAgentTransitions(ctx, orgID, results)
	if err != nil {
		slog.Error("failed to apply agent transitions", "org_id", orgID, "error", err)
		return nil, err
	}

	report := &leasing.HealthReport{
		Services:       results,
		AgentsAffected: affected,
		ExecutionMs:    time.Since(start).Milliseconds(),
	}

	m.append(ctx, leasing.AuditEvent{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		ActorKey:       leasing.ActorHealthMonitor,
		Action:         ActionHealthSummary,
		Status:         leasing.AuditSuccess,
		Message:        fmt.Sprintf("checked %d providers, %d agents affected", len(results), affected),
		Details: map[string]any{
			"providers_checked": len(results),
			"agents_affected":   affected,
		},
		ExecutionMs: report.ExecutionMs,
		CreatedAt:   time.Now().UTC(),
	})

	slog.Info("health check completed",
		"org_id", orgID,
		"providers", len(results),
		"agents_affected", affected,
		"duration_ms", report.ExecutionMs)

	return report, nil
}

// runProbe executes one probe under its own timeout. A probe that ignores its
// deadline is abandoned, not waited on, so a hung provider cannot stall the
// fan-out.
func (m *HealthMonitor) runProbe(ctx context.Context, orgID, provider string,
	probe ProviderProbe, credentials map[string]ProviderCredentials) leasing.ProviderHealthResult {
	creds, ok := credentials[provider]
	if !ok {
		return leasing.ProviderHealthResult{
			Provider: provider,
			Healthy:  false,
			Message:  "no credentials configured",
			TestedAt: time.Now().UTC(),
		}
	}

	pctx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	defer cancel()

	done := make(chan leasing.ProviderHealthResult, 1)
	started := time.Now()
	go func() {
		done <- probe.Check(pctx, orgID, creds)
	}()

	select {
	case res := <-done:
		return res
	case <-pctx.Done():
		return leasing.ProviderHealthResult{
			Provider:  provider,
			Healthy:   false,
			Message:   fmt.Sprintf("probe timed out: %v", pctx.Err()),
			LatencyMs: time.Since(started).Milliseconds(),
			TestedAt:  time.Now().UTC(),
		}
	}
}

// applyAgentTransitions flips agents between degraded and idle based on the
// probe results. The only permitted transitions move between degraded and idle, which
// makes this idempotent: rerunning with unchanged results writes nothing.
func (m *HealthMonitor) applyAgentTransitions(ctx context.Context, orgID string,
	results map[string]leasing.ProviderHealthResult) (int, error) {
	agents, err := m.agents.ListEnabledAgents(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("list enabled agents: %w", err)
	}

	affected := 0
	degraded := 0
	for _, agent := range agents {
		if len(agent.RequiredProviders) == 0 {
			// No dependencies, never degraded by health.
			continue
		}

		var unhealthy []string
		for _, provider := range agent.RequiredProviders {
			res, ok := results[provider]
			if !ok || !res.Healthy {
				unhealthy = append(unhealthy, provider)
			}
		}

		next, changed := leasing.HealthTransition(agent.Status, len(unhealthy) == 0)
		if next == leasing.AgentDegraded {
			degraded++
		}
		if !changed {
			continue
		}

		var errMsg *string
		var errAt *time.Time
		if next == leasing.AgentDegraded {
			msg := fmt.Sprintf("unhealthy providers: %s", strings.Join(unhealthy, ", "))
			now := time.Now().UTC()
			errMsg, errAt = &msg, &now
		}
		if err := m.agents.UpdateStatus(ctx, agent.ID, next, errMsg, errAt); err != nil {
			slog.Error("failed to update agent status",
				"org_id", orgID, "agent_key", agent.AgentKey, "next", next, "error", err)
			continue
		}
		affected++

		action := ActionAgentRecovered
		status := leasing.AuditSuccess
		message := fmt.Sprintf("agent %s recovered, all required providers healthy", agent.AgentKey)
		if next == leasing.AgentDegraded {
			action = ActionAgentDegraded
			status = leasing.AuditFailure
			message = fmt.Sprintf("agent %s degraded: %s", agent.AgentKey, strings.Join(unhealthy, ", "))
		}
		m.append(ctx, leasing.AuditEvent{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			ActorKey:       leasing.ActorHealthMonitor,
			Action:         action,
			Status:         status,
			Message:        message,
			Details: map[string]any{
				"agent_key":           agent.AgentKey,
				"previous_status":     string(agent.Status),
				"next_status":         string(next),
				"unhealthy_providers": unhealthy,
			},
			CreatedAt: time.Now().UTC(),
		})

		slog.Info("agent status changed by health",
			"org_id", orgID,
			"agent_key", agent.AgentKey,
			"from", agent.Status,
			"to", next)
	}

	if m.metrics != nil {
		m.metrics.agentsDegraded.WithLabelValues(orgID).Set(float64(degraded))
	}
	return affected, nil
}

func (m *HealthMonitor) append(ctx context.Context, event leasing.AuditEvent) {
	if m.activity == nil {
		return
	}
	if err := m.activity.Append(ctx, event); err != nil {
		if m.metrics != nil {
			m.metrics.auditAppendFailures.Inc()
		}
		slog.Warn("failed to append audit event", "action", event.Action, "error", err)
	}
}
