package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/mlssync/internal/database"
	"github.com/mrlokans/mlssync/internal/database/agents"
	"github.com/mrlokans/mlssync/internal/database/properties"
	"github.com/mrlokans/mlssync/internal/database/syncruns"
	"github.com/mrlokans/mlssync/internal/events"
	"github.com/mrlokans/mlssync/internal/http"
	"github.com/mrlokans/mlssync/internal/mls"
	"github.com/mrlokans/mlssync/internal/scheduler"
	"github.com/mrlokans/mlssync/internal/syncer"
	"github.com/mrlokans/mlssync/internal/tasks"
)

// =============================================================================
// Data Access Layer
// =============================================================================

// Canonical store implementations
var _ syncer.PropertyStore = (*properties.Repository)(nil)
var _ syncer.AgentStore = (*agents.Repository)(nil)

// Run ledger implementations
var _ syncer.Ledger = (*syncruns.Repository)(nil)
var _ http.RunReader = (*syncruns.Repository)(nil)
var _ tasks.RunLoader = (*syncruns.Repository)(nil)
var _ tasks.SyncRunCleaner = (*syncruns.Repository)(nil)
var _ scheduler.RunCleaner = (*syncruns.Repository)(nil)

// Admin stats implementations
var _ http.ListingCounter = (*properties.Repository)(nil)
var _ http.AgentCounter = (*agents.Repository)(nil)
var _ http.Pinger = (*database.Database)(nil)

// =============================================================================
// Upstream MLS
// =============================================================================

// TokenSource implementations
var _ mls.TokenSource = (*mls.TokenManager)(nil)

// ListingSource implementations
var _ syncer.ListingSource = (*mls.Client)(nil)
var _ syncer.ListingSource = (*mls.FixtureSource)(nil)

// =============================================================================
// Sync Execution
// =============================================================================

// Runner implementations
var _ scheduler.Runner = (*syncer.Orchestrator)(nil)
var _ tasks.RunExecutor = (*syncer.Orchestrator)(nil)
var _ http.SyncStatusReader = (*syncer.Orchestrator)(nil)

// Dispatcher implementations
var _ scheduler.Dispatcher = (*tasks.Client)(nil)

// SyncTrigger implementations
var _ http.SyncTrigger = (*scheduler.ListingSyncScheduler)(nil)

// Publisher implementations
var _ events.Publisher = (*events.KafkaPublisher)(nil)
var _ events.Publisher = events.NopPublisher{}
