// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Sync Engine Interfaces (internal/syncer)
//
//   - ListingSource: upstream listings, optionally modified after a watermark
//     (mls.Client, mls.FixtureSource)
//   - PropertyStore: canonical listing upsert and removal reconciliation
//   - AgentStore: create-if-absent listing agents
//   - Ledger: the run ledger and single-flight authority
//
// ## Execution Interfaces
//
//   - scheduler.Runner: Begin and Execute of a run (syncer.Orchestrator)
//   - scheduler.Dispatcher: background execution (tasks.Client)
//   - tasks.RunLoader, tasks.RunExecutor: what the execute_sync_run queue needs
//
// ## Operator Surface Interfaces (internal/http)
//
//   - SyncTrigger, SyncStatusReader, RunReader: sync endpoints
//   - ListingCounter, AgentCounter: admin stats
//   - Pinger: health checks
//
// ## Event Interfaces
//
//   - events.Publisher: listing change events (Kafka or no-op)
//
// # Adding a New Listing Source
//
//  1. Implement syncer.ListingSource in internal/mls or a new package:
//
//     func (s *FeedSource) FetchAll(ctx context.Context, since *time.Time) ([]mls.Listing, error) {
//         // Return records with Raw set to the upstream bytes
//     }
//
//  2. Add a compile-time check to checks.go:
//
//     var _ syncer.ListingSource = (*FeedSource)(nil)
//
//  3. Select it in entrypoint.newListingSource.
package interfaces
