package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		MLS
		Sync
		Tasks
		Kafka
		Admin
		Metrics
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	MLS struct {
		TokenURL       string
		APIURL         string
		ClientID       string
		ClientSecret   string
		APIKey         string // Optional bearer for the token endpoint
		RequestTimeout time.Duration
		PageSize       int
		MaxPages       int
		RefreshMargin  time.Duration // Refresh tokens this long before they expire
		DryRun         bool          // Serve fixture listings instead of calling the MLS
	}
	Sync struct {
		Enabled           bool
		Schedule          string // Cron format: "*/30 * * * *" = every 30 minutes
		FullSchedule      string // Empty disables scheduled full syncs
		RunOnStartup      bool
		StartupDelay      time.Duration
		RunTimeout        time.Duration
		ProgressEvery     int
		HistoryRetention  time.Duration
		RetentionSchedule string
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Kafka struct {
		Brokers string // Comma-separated; empty disables change events
		Topic   string
	}
	Admin struct {
		TokenHash  string // bcrypt hash of the admin bearer token
		BcryptCost int
	}
	Metrics struct {
		Enabled bool
	}
)

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Printf("Loaded environment from %s", path)
	return nil
}

func NewConfig() *Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := LoadEnvFile(envFile); err != nil {
		log.Printf("Warning: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 10)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Upstream MLS defaults
	v.SetDefault("mls_request_timeout", "30s")
	v.SetDefault("mls_page_size", 100)
	v.SetDefault("mls_max_pages", 1000)
	v.SetDefault("mls_token_refresh_margin", "60s")
	v.SetDefault("mls_dry_run", false)

	// Sync defaults
	v.SetDefault("sync_enabled", true)
	v.SetDefault("sync_schedule", "*/30 * * * *") // Every 30 minutes
	v.SetDefault("sync_full_schedule", "")
	v.SetDefault("sync_run_on_startup", true)
	v.SetDefault("sync_startup_delay", "10s")
	v.SetDefault("sync_run_timeout", "30m")
	v.SetDefault("sync_progress_every", 100)
	v.SetDefault("sync_history_retention", "720h") // 30 days
	v.SetDefault("sync_retention_schedule", "0 3 * * *")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", DefaultKafkaTopic)

	v.SetDefault("admin_token_hash", "")
	v.SetDefault("admin_bcrypt_cost", 12)

	v.SetDefault("metrics_enabled", true)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		MLS: MLS{
			TokenURL:       v.GetString("MLS_TOKEN_URL"),
			APIURL:         v.GetString("MLS_API_URL"),
			ClientID:       v.GetString("MLS_CLIENT_ID"),
			ClientSecret:   v.GetString("MLS_CLIENT_SECRET"),
			APIKey:         v.GetString("MLS_API_KEY"),
			RequestTimeout: v.GetDuration("MLS_REQUEST_TIMEOUT"),
			PageSize:       v.GetInt("MLS_PAGE_SIZE"),
			MaxPages:       v.GetInt("MLS_MAX_PAGES"),
			RefreshMargin:  v.GetDuration("MLS_TOKEN_REFRESH_MARGIN"),
			DryRun:         v.GetBool("MLS_DRY_RUN"),
		},
		Sync: Sync{
			Enabled:           v.GetBool("SYNC_ENABLED"),
			Schedule:          v.GetString("SYNC_SCHEDULE"),
			FullSchedule:      v.GetString("SYNC_FULL_SCHEDULE"),
			RunOnStartup:      v.GetBool("SYNC_RUN_ON_STARTUP"),
			StartupDelay:      v.GetDuration("SYNC_STARTUP_DELAY"),
			RunTimeout:        v.GetDuration("SYNC_RUN_TIMEOUT"),
			ProgressEvery:     v.GetInt("SYNC_PROGRESS_EVERY"),
			HistoryRetention:  v.GetDuration("SYNC_HISTORY_RETENTION"),
			RetentionSchedule: v.GetString("SYNC_RETENTION_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Kafka: Kafka{
			Brokers: v.GetString("KAFKA_BROKERS"),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Admin: Admin{
			TokenHash:  v.GetString("ADMIN_TOKEN_HASH"),
			BcryptCost: v.GetInt("ADMIN_BCRYPT_COST"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}

	if !c.MLS.DryRun {
		required := []struct{ name, value string }{
			{"MLS_TOKEN_URL", c.MLS.TokenURL},
			{"MLS_API_URL", c.MLS.APIURL},
			{"MLS_CLIENT_ID", c.MLS.ClientID},
			{"MLS_CLIENT_SECRET", c.MLS.ClientSecret},
		}
		for _, r := range required {
			if r.value == "" {
				errs = append(errs, fmt.Errorf("%s is required unless MLS_DRY_RUN=true", r.name))
			}
		}
	}

	if c.MLS.PageSize <= 0 {
		errs = append(errs, errors.New("MLS_PAGE_SIZE must be positive"))
	}
	if c.Sync.RunTimeout < 0 {
		errs = append(errs, errors.New("SYNC_RUN_TIMEOUT must not be negative"))
	}
	if c.Tasks.Enabled && c.Sync.RunTimeout > 0 && c.Tasks.ReleaseAfter <= c.Sync.RunTimeout {
		errs = append(errs, fmt.Errorf("TASK_RELEASE_AFTER (%s) must exceed SYNC_RUN_TIMEOUT (%s)", c.Tasks.ReleaseAfter, c.Sync.RunTimeout))
	}

	return errors.Join(errs...)
}
