package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/mlssync/internal/config"
	http_controllers "github.com/mrlokans/mlssync/internal/http"
	"github.com/mrlokans/mlssync/internal/scheduler"
	"github.com/mrlokans/mlssync/internal/tasks"
)

const interruptedRunMessage = "sync run interrupted: service restarted before it finished"

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting triggers before the runners go away.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting mlssync v%s", version)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Nothing of this process is running yet, so any in_progress run was
	// orphaned by a crash or kill.
	interrupted, err := engine.Ledger.FailInterrupted(context.Background(), interruptedRunMessage)
	if err != nil {
		log.Fatalf("Failed to recover interrupted sync runs: %v", err)
	}
	if interrupted > 0 {
		log.Printf("Listing sync: marked %d interrupted run(s) as failed", interrupted)
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			taskClient.ExecuteSyncRunQueue(engine.Ledger, engine.Orchestrator),
			tasks.NewCleanupSyncRunsQueue(engine.Ledger),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	schedOpts := []scheduler.Option{scheduler.WithCleaner(engine.Ledger)}
	if taskClient != nil {
		schedOpts = append(schedOpts, scheduler.WithDispatcher(taskClient))
	}
	sched := scheduler.NewListingSyncScheduler(engine.Orchestrator, scheduler.Config{
		Schedule:          cfg.Sync.Schedule,
		FullSchedule:      cfg.Sync.FullSchedule,
		RetentionSchedule: cfg.Sync.RetentionSchedule,
		HistoryRetention:  cfg.Sync.HistoryRetention,
		RunOnStartup:      cfg.Sync.RunOnStartup,
		StartupDelay:      cfg.Sync.StartupDelay,
	}, schedOpts...)

	if cfg.Sync.Enabled {
		if err := sched.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start listing sync scheduler: %v", err)
		}
	} else {
		log.Printf("Listing sync scheduler: disabled, runs start only on demand")
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Trigger:        sched,
		Status:         engine.Orchestrator,
		Runs:           engine.Ledger,
		Listings:       engine.Listings,
		Agents:         engine.Agents,
		Database:       engine.DB,
		Version:        version,
		AdminTokenHash: cfg.Admin.TokenHash,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	onShutdown := func(ctx context.Context) {
		sched.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			// Cancel first so queued runs finalize as failed before the
			// database is closed.
			taskCtxCancel()
			taskClient.Stop(ctx)
		}
	}

	Serve(router, cfg, onShutdown)
}
