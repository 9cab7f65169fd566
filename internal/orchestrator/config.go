package orchestrator

import (
	"time"
)

// Config holds the orchestrator configuration
type Config struct {
	// Dispatch
	BatchSize         int           // Max due tasks per RunOnce (default: 20)
	DispatchInterval  time.Duration // How often RunOnce is scheduled (default: 15s)
	HandlerTimeout    time.Duration // Per-task handler budget (default: 60s)
	ComplianceTimeout time.Duration // Per-task compliance gate budget (default: 10s)

	// Health
	HealthInterval   time.Duration // How often CheckAll runs per org (default: 1m)
	ProbeTimeout     time.Duration // Per-provider probe budget (default: 10s)
	ProbeParallelism int           // Max concurrent probes (default: 4)
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BatchSize:         20,
		DispatchInterval:  15 * time.Second,
		HandlerTimeout:    60 * time.Second,
		ComplianceTimeout: 10 * time.Second,
		HealthInterval:    1 * time.Minute,
		ProbeTimeout:      10 * time.Second,
		ProbeParallelism:  4,
	}
}
