package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
)

// ProviderCredentials loads an organization's provider configuration, keyed
// by provider identifier.
func (s *Postgres) ProviderCredentials(ctx context.Context, orgID string) (map[string]orchestrator.ProviderCredentials, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, health_url, api_key, extra
		FROM provider_credentials
		WHERE organization_id = $1
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider credentials: %w", err)
	}
	defer rows.Close()

	creds := make(map[string]orchestrator.ProviderCredentials)
	for rows.Next() {
		var c orchestrator.ProviderCredentials
		var extra []byte
		if err := rows.Scan(&c.Provider, &c.HealthURL, &c.APIKey, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan provider credentials: %w", err)
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &c.Extra); err != nil {
				return nil, fmt.Errorf("failed to unmarshal credential extras: %w", err)
			}
		}
		creds[c.Provider] = c
	}
	return creds, rows.Err()
}
