package container

import (
	"context"
	"fmt"
	"log"

	"kickchoice/adapters/postgres"
	"kickchoice/app"
	"kickchoice/internal/api"
	"kickchoice/internal/config"
	"kickchoice/internal/errors"
	"kickchoice/internal/migration"
	"kickchoice/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure; nil when persistence is disabled
	DB *sqlx.DB

	RunRepo           ports.RunRepository
	SSEHub            *api.SSEHub
	EstimationService *app.EstimationService
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return &Container{Config: cfg}, nil
}

// Init connects the database when one is configured and builds the
// services
func (c *Container) Init(ctx context.Context) error {
	if c.Config.PersistenceEnabled() {
		db, err := Open(c.Config.Database)
		if err != nil {
			return err
		}
		if err := c.InitWithDatabase(ctx, db); err != nil {
			db.Close()
			return err
		}
	} else {
		log.Printf("[Container] DATABASE_URL not set, runs will not be stored")
	}

	c.SSEHub = api.NewSSEHub()
	c.EstimationService = app.NewEstimationService(c.RunRepo, c.Config.Estimation).WithEvents(c.SSEHub)
	log.Printf("[Container] initialized (model %s, %d %s draws, %d concurrent runs)",
		c.Config.Estimation.Model, c.Config.Estimation.Draws, c.Config.Estimation.DrawMethod, c.Config.Estimation.MaxConcurrentRuns)
	return nil
}

// InitWithDatabase migrates the schema and initializes the repositories
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.PingContext(ctx); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "database connection test failed"))
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return err
	}
	c.DB = db
	c.RunRepo = postgres.NewRunRepository(db)
	return nil
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Open connects to the configured database. SQLite connections are
// limited to one so in-memory databases are shared.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to open %s database", cfg.Driver))
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}
