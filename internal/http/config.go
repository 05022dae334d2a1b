package http

import (
	"context"
	"time"

	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/syncer"
)

// SyncTrigger starts manual runs and reports the schedule.
type SyncTrigger interface {
	Trigger(ctx context.Context, kind entities.SyncKind) (*entities.SyncRun, error)
	NextRun() *time.Time
}

// SyncStatusReader summarizes the run ledger.
type SyncStatusReader interface {
	Status(ctx context.Context, limit int) (*syncer.Status, error)
}

// RunReader loads a single run with its error entries.
type RunReader interface {
	GetByRunID(ctx context.Context, runID string) (*entities.SyncRun, error)
}

// ListingCounter counts stored listings.
type ListingCounter interface {
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[entities.PropertyStatus]int64, error)
}

// AgentCounter counts stored agents.
type AgentCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Pinger checks a dependency is reachable.
type Pinger interface {
	Ping() error
}

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Sync operations
	Trigger SyncTrigger
	Status  SyncStatusReader
	Runs    RunReader

	// Admin stats
	Listings ListingCounter
	Agents   AgentCounter

	// Health
	Database Pinger
	Version  string

	// AdminTokenHash is the bcrypt hash guarding /api/admin. Empty leaves
	// the admin API open.
	AdminTokenHash string
	// AdminAttempts limits bad admin tokens per client. Nil uses the defaults.
	AdminAttempts *AttemptLimiter

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool
}
