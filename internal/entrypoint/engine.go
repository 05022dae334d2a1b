package entrypoint

import (
	"fmt"
	"log"
	"net/http"

	"github.com/mrlokans/mlssync/internal/config"
	"github.com/mrlokans/mlssync/internal/database"
	"github.com/mrlokans/mlssync/internal/database/agents"
	"github.com/mrlokans/mlssync/internal/database/properties"
	"github.com/mrlokans/mlssync/internal/database/syncruns"
	"github.com/mrlokans/mlssync/internal/events"
	"github.com/mrlokans/mlssync/internal/mls"
	"github.com/mrlokans/mlssync/internal/syncer"
)

// Engine is the sync engine wired to its store, upstream and event sink.
type Engine struct {
	DB           *database.Database
	Ledger       *syncruns.Repository
	Listings     *properties.Repository
	Agents       *agents.Repository
	Publisher    events.Publisher
	Orchestrator *syncer.Orchestrator
}

// NewEngine opens the database and builds the orchestrator from cfg.
func NewEngine(cfg *config.Config) (*Engine, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	e := &Engine{
		DB:       db,
		Ledger:   syncruns.NewRepository(db.DB),
		Listings: properties.NewRepository(db.DB),
		Agents:   agents.NewRepository(db.DB),
	}

	e.Publisher = events.NopPublisher{}
	if brokers := events.ParseBrokers(cfg.Kafka.Brokers); len(brokers) > 0 {
		log.Printf("Events: publishing listing changes to topic %s on %v", cfg.Kafka.Topic, brokers)
		e.Publisher = events.NewKafkaPublisher(events.KafkaConfig{Brokers: brokers, Topic: cfg.Kafka.Topic})
	}

	e.Orchestrator = syncer.NewOrchestrator(
		newListingSource(cfg.MLS),
		e.Listings,
		e.Agents,
		e.Ledger,
		syncer.WithPublisher(e.Publisher),
		syncer.WithDryRun(cfg.MLS.DryRun),
		syncer.WithRunTimeout(cfg.Sync.RunTimeout),
		syncer.WithProgressEvery(cfg.Sync.ProgressEvery),
	)

	return e, nil
}

func newListingSource(cfg config.MLS) syncer.ListingSource {
	if cfg.DryRun {
		log.Printf("WARNING: MLS_DRY_RUN is enabled. Listings come from built-in fixtures, not the MLS.")
		return mls.NewFixtureSource()
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	tokens := mls.NewTokenManager(mls.Credentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		APIKey:       cfg.APIKey,
	},
		mls.WithRefreshMargin(cfg.RefreshMargin),
		mls.WithTokenHTTPClient(httpClient),
	)

	return mls.NewClient(cfg.APIURL, tokens,
		mls.WithHTTPClient(httpClient),
		mls.WithPageSize(cfg.PageSize),
		mls.WithMaxPages(cfg.MaxPages),
	)
}

// Close flushes the event publisher and closes the database.
func (e *Engine) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Printf("Error closing event publisher: %v", err)
	}
	return e.DB.Close()
}
