package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestNewConfig_Defaults(t *testing.T) {
	noEnvFile(t)

	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.MLS.RequestTimeout)
	assert.Equal(t, 100, cfg.MLS.PageSize)
	assert.Equal(t, 1000, cfg.MLS.MaxPages)
	assert.False(t, cfg.MLS.DryRun)
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, "*/30 * * * *", cfg.Sync.Schedule)
	assert.Empty(t, cfg.Sync.FullSchedule)
	assert.Equal(t, 10*time.Second, cfg.Sync.StartupDelay)
	assert.Equal(t, 30*time.Minute, cfg.Sync.RunTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Sync.HistoryRetention)
	assert.True(t, cfg.Tasks.Enabled)
	assert.Equal(t, 45*time.Minute, cfg.Tasks.ReleaseAfter)
	assert.Equal(t, DefaultKafkaTopic, cfg.Kafka.Topic)
	assert.Empty(t, cfg.Admin.TokenHash)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	noEnvFile(t)
	t.Setenv("PORT", "9000")
	t.Setenv("MLS_DRY_RUN", "true")
	t.Setenv("MLS_PAGE_SIZE", "50")
	t.Setenv("SYNC_FULL_SCHEDULE", "0 2 * * *")
	t.Setenv("SYNC_RUN_TIMEOUT", "5m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg := NewConfig()

	assert.Equal(t, int32(9000), cfg.HTTP.Port)
	assert.True(t, cfg.MLS.DryRun)
	assert.Equal(t, 50, cfg.MLS.PageSize)
	assert.Equal(t, "0 2 * * *", cfg.Sync.FullSchedule)
	assert.Equal(t, 5*time.Minute, cfg.Sync.RunTimeout)
	assert.Equal(t, "kafka-1:9092,kafka-2:9092", cfg.Kafka.Brokers)
}

func TestNewConfig_LoadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MLSSYNC_TEST_CLIENT_ID=from-file\nMLS_TOKEN_URL=https://mls.example.com/oauth/token\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	// Explicit environment wins over the file.
	t.Setenv("MLS_TOKEN_URL", "https://override.example.com/token")
	t.Cleanup(func() { os.Unsetenv("MLSSYNC_TEST_CLIENT_ID") })

	cfg := NewConfig()

	assert.Equal(t, "from-file", os.Getenv("MLSSYNC_TEST_CLIENT_ID"))
	assert.Equal(t, "https://override.example.com/token", cfg.MLS.TokenURL)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(""))
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	dir := t.TempDir()
	assert.Error(t, LoadEnvFile(dir), "a directory is not a readable env file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: Database{Path: "./mlssync.db"},
			MLS: MLS{
				TokenURL:     "https://mls.example.com/oauth/token",
				APIURL:       "https://mls.example.com/reso",
				ClientID:     "client",
				ClientSecret: "secret",
				PageSize:     100,
			},
			Sync:  Sync{RunTimeout: 30 * time.Minute},
			Tasks: Tasks{Enabled: true, ReleaseAfter: 45 * time.Minute},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := valid()
		cfg.MLS.ClientID = ""
		cfg.MLS.APIURL = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "MLS_CLIENT_ID")
		assert.Contains(t, err.Error(), "MLS_API_URL")
	})

	t.Run("dry run needs no credentials", func(t *testing.T) {
		cfg := valid()
		cfg.MLS = MLS{DryRun: true, PageSize: 100}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("release after must exceed run timeout", func(t *testing.T) {
		cfg := valid()
		cfg.Tasks.ReleaseAfter = 10 * time.Minute
		assert.ErrorContains(t, cfg.Validate(), "TASK_RELEASE_AFTER")

		cfg.Tasks.Enabled = false
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad page size", func(t *testing.T) {
		cfg := valid()
		cfg.MLS.PageSize = 0
		assert.ErrorContains(t, cfg.Validate(), "MLS_PAGE_SIZE")
	})
}
