// Package database provides the data access layer for the sync engine.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, DSN parameters, migrations
//	├── agents/          # Agent lookup and create-if-absent
//	├── properties/      # Listing upserts, removal marking, counts
//	└── syncruns/        # The run ledger (single-flight, history, retention)
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./mlssync.db")
//
//	listings := properties.NewRepository(db.DB)
//	agentRepo := agents.NewRepository(db.DB)
//	ledger := syncruns.NewRepository(db.DB)
//
// # Concurrency
//
// Connections open every transaction with BEGIN IMMEDIATE and wait up to
// five seconds on a locked database. Migrate also creates a partial unique
// index so the sync_runs table can hold at most one in_progress row.
package database
