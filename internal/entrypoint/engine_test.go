package entrypoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/mlssync/internal/config"
	"github.com/mrlokans/mlssync/internal/entities"
	"github.com/mrlokans/mlssync/internal/events"
	"github.com/mrlokans/mlssync/internal/mls"
)

func dryRunConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.Database{Path: filepath.Join(t.TempDir(), "mlssync.db")},
		MLS:      config.MLS{DryRun: true, PageSize: 100},
		Sync:     config.Sync{RunTimeout: time.Minute, ProgressEvery: 100},
	}
}

func TestNewEngine_DryRunSync(t *testing.T) {
	engine, err := NewEngine(dryRunConfig(t))
	require.NoError(t, err)
	defer engine.Close()

	assert.IsType(t, events.NopPublisher{}, engine.Publisher)
	assert.True(t, engine.Orchestrator.DryRun())

	run, err := engine.Orchestrator.Run(context.Background(), entities.SyncKindFull)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusCompleted, run.Status)
	assert.True(t, run.DryRun)
	assert.Equal(t, 20, run.Created)

	count, err := engine.Listings.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
}

func TestNewEngine_InterruptedRunAfterRestart(t *testing.T) {
	cfg := dryRunConfig(t)
	engine, err := NewEngine(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	orphan, err := engine.Ledger.CreateInProgressIfNoneRunning(ctx, entities.SyncKindIncremental, true)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	// A fresh process sees the orphan and clears it before scheduling.
	engine, err = NewEngine(cfg)
	require.NoError(t, err)
	defer engine.Close()

	n, err := engine.Ledger.FailInterrupted(ctx, interruptedRunMessage)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := engine.Ledger.GetByRunID(ctx, orphan.RunID)
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, loaded.Status)

	_, err = engine.Orchestrator.Run(ctx, entities.SyncKindIncremental)
	assert.NoError(t, err)
}

func TestNewEngine_KafkaPublisher(t *testing.T) {
	cfg := dryRunConfig(t)
	cfg.Kafka = config.Kafka{Brokers: "localhost:9092", Topic: "listing-changes"}

	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	defer engine.Close()

	assert.IsType(t, &events.KafkaPublisher{}, engine.Publisher)
}

func TestNewListingSource(t *testing.T) {
	assert.IsType(t, &mls.FixtureSource{}, newListingSource(config.MLS{DryRun: true}))

	source := newListingSource(config.MLS{
		TokenURL:       "https://mls.example.com/oauth/token",
		APIURL:         "https://mls.example.com/reso",
		ClientID:       "client",
		ClientSecret:   "secret",
		RequestTimeout: time.Second,
		PageSize:       50,
		MaxPages:       10,
	})
	assert.IsType(t, &mls.Client{}, source)
}
