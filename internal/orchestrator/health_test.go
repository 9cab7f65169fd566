package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

type fakeHealthStore struct {
	mu      sync.Mutex
	upserts []leasing.ProviderHealthResult
	err     error
}

func (s *fakeHealthStore) UpsertProviderHealth(_ context.Context, _ string, result leasing.ProviderHealthResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, result)
	return nil
}

type fakeCredSource struct {
	creds map[string]ProviderCredentials
	err   error
}

func (s *fakeCredSource) ProviderCredentials(context.Context, string) (map[string]ProviderCredentials, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.creds, nil
}

type probeFunc func(ctx context.Context, orgID string, creds ProviderCredentials) leasing.ProviderHealthResult

func (f probeFunc) Check(ctx context.Context, orgID string, creds ProviderCredentials) leasing.ProviderHealthResult {
	return f(ctx, orgID, creds)
}

func staticProbe(healthy bool, message string) ProviderProbe {
	return probeFunc(func(_ context.Context, _ string, creds ProviderCredentials) leasing.ProviderHealthResult {
		return leasing.ProviderHealthResult{
			Provider:  creds.Provider,
			Healthy:   healthy,
			Message:   message,
			LatencyMs: 3,
			TestedAt:  time.Now().UTC(),
		}
	})
}

type monitorEnv struct {
	agents   *fakeAgentStore
	health   *fakeHealthStore
	creds    *fakeCredSource
	probes   map[string]ProviderProbe
	activity *recordingActivity
	config   *Config
}

func newMonitorEnv() *monitorEnv {
	return &monitorEnv{
		agents: &fakeAgentStore{agents: map[string]*leasing.Agent{
			agentKey("org-1", "leasing_assistant"): {
				ID: "agent-1", OrganizationID: "org-1", AgentKey: "leasing_assistant",
				RequiredProviders: []string{"telephony", "messaging"},
				IsEnabled:         true, Status: leasing.AgentIdle,
			},
			agentKey("org-1", "scoring_bot"): {
				ID: "agent-2", OrganizationID: "org-1", AgentKey: "scoring_bot",
				RequiredProviders: []string{"screening"},
				IsEnabled:         true, Status: leasing.AgentIdle,
			},
		}},
		health: &fakeHealthStore{},
		creds: &fakeCredSource{creds: map[string]ProviderCredentials{
			"telephony": {Provider: "telephony", HealthURL: "https://telephony.test/health"},
			"messaging": {Provider: "messaging", HealthURL: "https://messaging.test/health"},
			"screening": {Provider: "screening", HealthURL: "https://screening.test/health"},
		}},
		probes: map[string]ProviderProbe{
			"telephony": staticProbe(true, "ok"),
			"messaging": staticProbe(true, "ok"),
			"screening": staticProbe(true, "ok"),
		},
		activity: &recordingActivity{},
		config:   DefaultConfig(),
	}
}

func (e *monitorEnv) monitor() *HealthMonitor {
	return NewHealthMonitor(e.agents, e.health, e.creds, e.probes, e.activity,
		NewMetrics(prometheus.NewRegistry()), e.config)
}

func TestCheckAllAllHealthy(t *testing.T) {
	env := newMonitorEnv()

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, report.Services, 3)
	for provider, res := range report.Services {
		assert.True(t, res.Healthy, "provider %s", provider)
	}
	assert.Zero(t, report.AgentsAffected)

	// One snapshot per provider, one probe audit event each, plus summary.
	assert.Len(t, env.health.upserts, 3)
	assert.Len(t, env.activity.byAction(ActionProviderProbe), 3)
	assert.Len(t, env.activity.byAction(ActionHealthSummary), 1)
	assert.Empty(t, env.agents.updates)
}

func TestCheckAllDegradesAgentsOnUnhealthyProvider(t *testing.T) {
	env := newMonitorEnv()
	env.probes["telephony"] = staticProbe(false, "status 503")

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AgentsAffected)

	// Only the agent requiring telephony degrades.
	degraded := env.agents.agents[agentKey("org-1", "leasing_assistant")]
	assert.Equal(t, leasing.AgentDegraded, degraded.Status)
	require.NotNil(t, degraded.LastErrorMessage)
	assert.Contains(t, *degraded.LastErrorMessage, "telephony")
	require.NotNil(t, degraded.LastErrorAt)

	untouched := env.agents.agents[agentKey("org-1", "scoring_bot")]
	assert.Equal(t, leasing.AgentIdle, untouched.Status)

	events := env.activity.byAction(ActionAgentDegraded)
	require.Len(t, events, 1)
	assert.Equal(t, leasing.AuditFailure, events[0].Status)
	assert.Equal(t, "leasing_assistant", events[0].Details["agent_key"])
}

func TestCheckAllRecoversDegradedAgent(t *testing.T) {
	env := newMonitorEnv()
	msg := "unhealthy providers: telephony"
	at := time.Now().UTC()
	env.agents.agents[agentKey("org-1", "leasing_assistant")].Status = leasing.AgentDegraded
	env.agents.agents[agentKey("org-1", "leasing_assistant")].LastErrorMessage = &msg
	env.agents.agents[agentKey("org-1", "leasing_assistant")].LastErrorAt = &at

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AgentsAffected)

	recovered := env.agents.agents[agentKey("org-1", "leasing_assistant")]
	assert.Equal(t, leasing.AgentIdle, recovered.Status)
	assert.Nil(t, recovered.LastErrorMessage)
	assert.Nil(t, recovered.LastErrorAt)

	require.Len(t, env.activity.byAction(ActionAgentRecovered), 1)
}

func TestCheckAllIdempotentWhenNothingChanges(t *testing.T) {
	env := newMonitorEnv()
	env.probes["telephony"] = staticProbe(false, "status 503")
	m := env.monitor()

	_, err := m.CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, env.agents.updates, 1)

	// Same results again: already degraded, nothing to write.
	report, err := m.CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Zero(t, report.AgentsAffected)
	assert.Len(t, env.agents.updates, 1)
	assert.Len(t, env.activity.byAction(ActionAgentDegraded), 1)
}

func TestCheckAllNeverTouchesOperatorStatuses(t *testing.T) {
	env := newMonitorEnv()
	env.probes["telephony"] = staticProbe(false, "status 503")
	env.probes["screening"] = staticProbe(false, "status 503")
	env.agents.agents[agentKey("org-1", "leasing_assistant")].Status = leasing.AgentError
	env.agents.agents[agentKey("org-1", "scoring_bot")].Status = leasing.AgentDisabled

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Zero(t, report.AgentsAffected)

	assert.Equal(t, leasing.AgentError, env.agents.agents[agentKey("org-1", "leasing_assistant")].Status)
	assert.Equal(t, leasing.AgentDisabled, env.agents.agents[agentKey("org-1", "scoring_bot")].Status)
	assert.Empty(t, env.agents.updates)
}

func TestCheckAllIgnoresAgentsWithoutProviders(t *testing.T) {
	env := newMonitorEnv()
	env.agents.agents[agentKey("org-1", "concierge")] = &leasing.Agent{
		ID: "agent-3", OrganizationID: "org-1", AgentKey: "concierge",
		RequiredProviders: []string{},
		IsEnabled:         true, Status: leasing.AgentIdle,
	}
	for p := range env.probes {
		env.probes[p] = staticProbe(false, "status 503")
	}

	_, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)

	assert.Equal(t, leasing.AgentIdle, env.agents.agents[agentKey("org-1", "concierge")].Status)
}

func TestCheckAllMissingCredentialsUnhealthy(t *testing.T) {
	env := newMonitorEnv()
	delete(env.creds.creds, "telephony")

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)

	res, ok := report.Services["telephony"]
	require.True(t, ok)
	assert.False(t, res.Healthy)
	assert.Equal(t, "no credentials configured", res.Message)

	// Missing credentials still degrade the dependent agent.
	assert.Equal(t, leasing.AgentDegraded,
		env.agents.agents[agentKey("org-1", "leasing_assistant")].Status)
}

func TestCheckAllUnknownRequiredProviderCountsUnhealthy(t *testing.T) {
	env := newMonitorEnv()
	env.agents.agents[agentKey("org-1", "scoring_bot")].RequiredProviders = []string{"credit_bureau"}

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AgentsAffected)
	assert.Equal(t, leasing.AgentDegraded,
		env.agents.agents[agentKey("org-1", "scoring_bot")].Status)
}

func TestCheckAllHungProbeTimesOut(t *testing.T) {
	env := newMonitorEnv()
	env.config.ProbeTimeout = 20 * time.Millisecond
	env.probes["telephony"] = probeFunc(func(context.Context, string, ProviderCredentials) leasing.ProviderHealthResult {
		// Ignores its deadline on purpose.
		time.Sleep(500 * time.Millisecond)
		return leasing.ProviderHealthResult{Provider: "telephony", Healthy: true}
	})

	start := time.Now()
	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "hung probe must be abandoned")

	res := report.Services["telephony"]
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "probe timed out")
}

func TestCheckAllBoundsProbeConcurrency(t *testing.T) {
	env := newMonitorEnv()
	env.config.ProbeParallelism = 2

	var mu sync.Mutex
	current, peak := 0, 0
	slow := probeFunc(func(_ context.Context, _ string, creds ProviderCredentials) leasing.ProviderHealthResult {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		current--
		mu.Unlock()
		return leasing.ProviderHealthResult{Provider: creds.Provider, Healthy: true, TestedAt: time.Now().UTC()}
	})
	for p := range env.probes {
		env.probes[p] = slow
	}

	_, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestCheckAllCredentialErrorAborts(t *testing.T) {
	env := newMonitorEnv()
	env.creds.err = errors.New("connection refused")

	_, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load provider credentials")
	assert.Empty(t, env.health.upserts)
}

func TestCheckAllUpsertFailureDoesNotAbort(t *testing.T) {
	env := newMonitorEnv()
	env.health.err = errors.New("disk full")
	env.probes["telephony"] = staticProbe(false, "status 503")

	report, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.AgentsAffected)
	assert.Len(t, env.activity.byAction(ActionHealthSummary), 1)
}

func TestCheckAllSummaryCounts(t *testing.T) {
	env := newMonitorEnv()
	env.probes["messaging"] = staticProbe(false, "status 502")

	_, err := env.monitor().CheckAll(context.Background(), "org-1")
	require.NoError(t, err)

	summaries := env.activity.byAction(ActionHealthSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].Details["providers_checked"])
	assert.Equal(t, 1, summaries[0].Details["agents_affected"])
	assert.Equal(t, fmt.Sprintf("checked %d providers, %d agents affected", 3, 1), summaries[0].Message)
}
