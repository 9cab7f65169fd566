package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// GetSubject resolves a subject within an organization, or (nil, nil) if
// absent. The human-control flag is read fresh here on every call; the
// dispatcher relies on that to pre-empt automation deterministically.
func (s *Postgres) GetSubject(ctx context.Context, orgID, subjectID string) (*leasing.Subject, error) {
	subject := &leasing.Subject{}
	var phone, email, controlledBy sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, full_name, phone, email,
		       under_human_control, human_controlled_by
		FROM subjects
		WHERE organization_id = $1
		  AND id = $2
	`, orgID, subjectID).Scan(
		&subject.ID, &subject.OrganizationID, &subject.FullName, &phone, &email,
		&subject.UnderHumanControl, &controlledBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	if phone.Valid {
		subject.Phone = phone.String
	}
	if email.Valid {
		subject.Email = email.String
	}
	if controlledBy.Valid {
		subject.HumanControlledBy = &controlledBy.String
	}
	return subject, nil
}
