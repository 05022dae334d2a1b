package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the listings database
	DefaultDatabasePath = "./mlssync.db"

	// DefaultEnvFile is loaded into the environment before configuration is read
	DefaultEnvFile = ".env"

	// DefaultKafkaTopic receives listing change events
	DefaultKafkaTopic = "listing-changes"
)
