package store

import (
	"context"
	"fmt"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// UpsertProviderHealth stores the latest probe result, keyed by
// organization+provider. Only the newest snapshot is kept.
func (s *Postgres) UpsertProviderHealth(ctx context.Context, orgID string, result leasing.ProviderHealthResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_health (organization_id, provider, healthy, message, latency_ms, tested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, provider) DO UPDATE
		SET healthy = EXCLUDED.healthy,
			message = EXCLUDED.message,
			latency_ms = EXCLUDED.latency_ms,
			tested_at = EXCLUDED.tested_at
	`, orgID, result.Provider, result.Healthy, result.Message, result.LatencyMs, result.TestedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert provider health: %w", err)
	}
	return nil
}

// ListProviderHealth returns the latest snapshot per provider for an
// organization.
func (s *Postgres) ListProviderHealth(ctx context.Context, orgID string) ([]leasing.ProviderHealthResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, healthy, message, latency_ms, tested_at
		FROM provider_health
		WHERE organization_id = $1
		ORDER BY provider ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider health: %w", err)
	}
	defer rows.Close()

	var results []leasing.ProviderHealthResult
	for rows.Next() {
		var r leasing.ProviderHealthResult
		if err := rows.Scan(&r.Provider, &r.Healthy, &r.Message, &r.LatencyMs, &r.TestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider health: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
