package activity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/internal/orchestrator"
	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

// Multi fans one audit event out to several sinks. Every sink is attempted
// even when earlier ones fail; the errors are joined.
type Multi []orchestrator.ActivityLogger

// NewMulti combines sinks, skipping nils.
func NewMulti(sinks ...orchestrator.ActivityLogger) Multi {
	var m Multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Append delivers the event to every sink.
func (m Multi) Append(ctx context.Context, event leasing.AuditEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SlogLogger mirrors audit events into the structured log. Added to the sink
// fan-out for debug runs.
type SlogLogger struct{}

// Append logs the event.
func (SlogLogger) Append(_ context.Context, event leasing.AuditEvent) error {
	slog.Info("audit event",
		"actor", event.ActorKey,
		"action", event.Action,
		"status", event.Status,
		"org_id", event.OrganizationID,
		"message", event.Message)
	return nil
}
