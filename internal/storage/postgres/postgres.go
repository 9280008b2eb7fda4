// Package postgres implements the storage.Backend interface on PostgreSQL.
// It owns the connection and hands it to the GORM backend.
package postgres

import (
	"fmt"

	"github.com/OCAP2/telemetry-synth/internal/config"
	"github.com/OCAP2/telemetry-synth/internal/database"
	"github.com/OCAP2/telemetry-synth/internal/geo"
	"github.com/OCAP2/telemetry-synth/internal/logging"
	gormstorage "github.com/OCAP2/telemetry-synth/internal/storage/gorm"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB         config.DBConfig
	LogManager *logging.SlogManager
	Anchor     *geo.Anchor
	BatchSize  int
	Truncate   bool
}

// Backend wraps the GORM backend with a Postgres connection made in Init.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
	open func(config.DBConfig) (*gorm.DB, error)
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	return &Backend{
		deps: deps,
		open: database.GetPostgresDB,
	}
}

// Init connects to Postgres, then initializes the embedded GORM backend.
func (b *Backend) Init() error {
	db, err := b.open(b.deps.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.deps.LogManager.Logger().Info("Connected to database", "host", b.deps.DB.Host, "database", b.deps.DB.Database)

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: b.deps.LogManager,
		Anchor:     b.deps.Anchor,
		BatchSize:  b.deps.BatchSize,
		Truncate:   b.deps.Truncate,
	})
	return b.Backend.Init()
}

// Close closes the embedded GORM backend and the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
