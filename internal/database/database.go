package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/mlssync/internal/entities"
)

// connParams makes every transaction take the write lock up front
// (BEGIN IMMEDIATE) and wait for it instead of failing with SQLITE_BUSY.
// The ledger relies on this for its check-and-insert.
const connParams = "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"

// singleInProgressIndex guarantees at most one in_progress sync run.
const singleInProgressIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_runs_single_in_progress
ON sync_runs(status) WHERE status = 'in_progress'`

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(DSN(dbPath)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

// Migrate creates or updates the schema on an open connection.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entities.Agent{},
		&entities.Property{},
		&entities.SyncRun{},
		&entities.SyncRunError{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec(singleInProgressIndex).Error; err != nil {
		return fmt.Errorf("failed to create sync run index: %w", err)
	}
	return nil
}

// DSN appends the connection parameters the service needs to a SQLite path.
func DSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + connParams
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the underlying connection is usable.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
