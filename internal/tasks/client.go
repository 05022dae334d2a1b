// Package tasks runs sync work on a persistent backlite queue kept in its
// own SQLite database next to the main one.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// ErrStopping is returned for tasks picked up while the queue shuts down.
var ErrStopping = errors.New("task queue is stopping")

// Client wraps backlite and dispatches sync work onto its queues.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	// work is cancelled by Stop so runs still executing finalize as failed.
	work       context.Context
	cancelWork context.CancelFunc
	inflight   sync.WaitGroup

	mu       sync.RWMutex
	started  bool
	stopping bool
}

// TasksDBPath returns where the queue database lives for a given main database.
func TasksDBPath(mainDBPath string) string {
	dir := filepath.Dir(mainDBPath)
	base := filepath.Base(mainDBPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"-tasks"+ext)
}

// NewClient opens the queue database and installs the backlite schema.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	db, err := sql.Open("sqlite3", TasksDBPath(mainDBPath)+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          &stdLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}

	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	work, cancelWork := context.WithCancel(context.Background())
	return &Client{
		client:     client,
		db:         db,
		config:     cfg,
		work:       work,
		cancelWork: cancelWork,
	}, nil
}

// Register registers task queues with the client.
// Must be called before Start().
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start begins processing tasks. It does not block.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	log.Printf("Task queue started with %d workers", c.config.Workers)
	c.client.Start(ctx)
}

// Stop cancels sync runs the queue is executing, then waits for them to
// finalize and for the workers to exit. It returns false if the context
// expired first.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.Lock()
	started := c.started
	c.stopping = true
	c.mu.Unlock()

	c.cancelWork()
	if !started {
		return true
	}

	log.Println("Stopping task queue...")
	stopped := c.client.Stop(ctx)
	drained := c.waitInflight(ctx)
	success := stopped && drained
	if success {
		log.Println("Task queue stopped gracefully")
	} else {
		log.Println("Task queue stopped with timeout (some sync work may not have completed)")
	}
	return success
}

func (c *Client) waitInflight(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// tracked runs a processor under the client's work context and lets Stop
// wait for it.
func tracked[T backlite.Task](c *Client, processor backlite.QueueProcessor[T]) backlite.QueueProcessor[T] {
	return func(ctx context.Context, task T) error {
		c.mu.Lock()
		if c.stopping {
			c.mu.Unlock()
			return ErrStopping
		}
		c.inflight.Add(1)
		c.mu.Unlock()
		defer c.inflight.Done()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(c.work, cancel)
		defer stop()

		return processor(ctx, task)
	}
}

// Close releases the queue database. Call it after Stop.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// DispatchRun enqueues execution of a run that Begin already created.
func (c *Client) DispatchRun(_ context.Context, runID string) error {
	if _, err := c.client.Add(ExecuteSyncRunTask{RunID: runID}).Save(); err != nil {
		return fmt.Errorf("enqueue sync run %s: %w", runID, err)
	}
	return nil
}

// DispatchCleanup enqueues removal of finished runs older than retention.
func (c *Client) DispatchCleanup(_ context.Context, retention time.Duration) error {
	hours := int(retention / time.Hour)
	if _, err := c.client.Add(CleanupSyncRunsTask{RetentionHours: hours}).Save(); err != nil {
		return fmt.Errorf("enqueue sync run cleanup: %w", err)
	}
	return nil
}

// stdLogger implements backlite.Logger using standard library log.
type stdLogger struct{}

func (l *stdLogger) Info(message string, params ...any) {
	log.Printf("[TASK] "+message, params...)
}

func (l *stdLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] "+message, params...)
}
