package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrlokans/mlssync/internal/config"
	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/entrypoint"
	"github.com/mrlokans/mlssync/internal/syncer"
)

// SyncCommand runs a single listing sync in the foreground
type SyncCommand struct {
	Kind         string
	DatabasePath string
	DryRun       bool
	ShowErrors   int

	Out io.Writer
}

// NewSyncCommand creates a new SyncCommand
func NewSyncCommand() *SyncCommand {
	return &SyncCommand{Out: os.Stdout}
}

// ParseFlags parses command line flags
func (cmd *SyncCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)

	fs.StringVar(&cmd.Kind, "kind", "incremental", "Sync kind: full or incremental")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the database file (default: DATABASE_PATH)")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Use built-in fixture listings instead of the MLS")
	fs.IntVar(&cmd.ShowErrors, "show-errors", 10, "Number of record errors to print")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sync [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run one listing sync and print its outcome.\n\n")
		fmt.Fprintf(os.Stderr, "The run is recorded in the run ledger like a scheduled one and is refused\n")
		fmt.Fprintf(os.Stderr, "while another run is in progress.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s sync\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -kind full\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sync -dry-run -db ./demo.db\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, ok := entities.ParseSyncKind(cmd.Kind); !ok {
		return fmt.Errorf("invalid kind %q: must be full or incremental", cmd.Kind)
	}
	return nil
}

// Run executes one sync run. Interrupting it marks the run failed.
func (cmd *SyncCommand) Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return cmd.run(ctx, cfg)
}

func (cmd *SyncCommand) run(ctx context.Context, cfg *config.Config) error {
	if cmd.DatabasePath != "" {
		cfg.Database.Path = cmd.DatabasePath
	}
	if cmd.DryRun {
		cfg.MLS.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	kind, _ := entities.ParseSyncKind(cmd.Kind)

	engine, err := entrypoint.NewEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(cmd.Out, "Listing sync (%s)\n", kind)
	fmt.Fprintf(cmd.Out, "Database: %s\n", cfg.Database.Path)

	run, err := engine.Orchestrator.Run(ctx, kind)
	var conflict *syncer.ConflictError
	if errors.As(err, &conflict) {
		return fmt.Errorf("another sync run is in progress (%s), try again later", conflict.RunningRunID)
	}
	if run != nil {
		cmd.printRun(run)
	}
	if err != nil {
		return fmt.Errorf("sync run failed: %w", err)
	}
	return nil
}

func (cmd *SyncCommand) printRun(run *entities.SyncRun) {
	fmt.Fprintf(cmd.Out, "\nRun %s %s in %s\n", run.RunID, run.Status, run.Duration().Round(time.Millisecond))
	if run.DryRun {
		fmt.Fprintln(cmd.Out, "  (dry run: fixture listings)")
	}
	fmt.Fprintf(cmd.Out, "  fetched: %d\n", run.Fetched)
	fmt.Fprintf(cmd.Out, "  created: %d\n", run.Created)
	fmt.Fprintf(cmd.Out, "  updated: %d\n", run.Updated)
	fmt.Fprintf(cmd.Out, "  removed: %d\n", run.Removed)
	fmt.Fprintf(cmd.Out, "  errors:  %d\n", run.Errors)

	for i, entry := range run.ErrorEntries {
		if i >= cmd.ShowErrors {
			fmt.Fprintf(cmd.Out, "  ... and %d more\n", len(run.ErrorEntries)-i)
			break
		}
		if entry.ExternalID != "" {
			fmt.Fprintf(cmd.Out, "  - %s: %s\n", entry.ExternalID, entry.Message)
		} else {
			fmt.Fprintf(cmd.Out, "  - %s\n", entry.Message)
		}
	}
}
