// Package backend opens a store.Store from a driver name and DSN, or from
// an already connected grove.DB.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/fulfill/store"
	"github.com/xraph/fulfill/store/memory"
	"github.com/xraph/fulfill/store/mongo"
	"github.com/xraph/fulfill/store/postgres"
	"github.com/xraph/fulfill/store/sqlite"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config selects and connects a backend.
type Config struct {
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`
	DSN    string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database names the MongoDB database. Ignored by SQL drivers.
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// PoolSize caps open connections for SQL drivers. Zero keeps the driver default.
	PoolSize int `json:"pool_size" mapstructure:"pool_size" yaml:"pool_size"`
}

// Open connects the configured driver and wraps it in the matching store.
// An empty driver name selects the in-memory store.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	var opts []driver.Option
	if cfg.PoolSize > 0 {
		opts = append(opts, driver.WithPoolSize(cfg.PoolSize))
	}

	switch normalize(cfg.Driver) {
	case DriverMemory:
		return memory.New(), nil

	case DriverPostgres:
		drv := pgdriver.New()
		if err := drv.Open(ctx, cfg.DSN, opts...); err != nil {
			return nil, fmt.Errorf("fulfill/backend: open postgres: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("fulfill/backend: open postgres: %w", err)
		}
		return postgres.New(db), nil

	case DriverSQLite:
		drv := sqlitedriver.New()
		if err := drv.Open(ctx, cfg.DSN, opts...); err != nil {
			return nil, fmt.Errorf("fulfill/backend: open sqlite: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("fulfill/backend: open sqlite: %w", err)
		}
		return sqlite.New(db), nil

	case DriverMongo:
		if cfg.Database == "" {
			return nil, fmt.Errorf("fulfill/backend: mongo requires a database name")
		}
		drv := mongodriver.New()
		if err := drv.Open(ctx, cfg.DSN, mongodriver.WithDatabase(cfg.Database)); err != nil {
			return nil, fmt.Errorf("fulfill/backend: open mongo: %w", err)
		}
		db, err := grove.Open(drv)
		if err != nil {
			return nil, fmt.Errorf("fulfill/backend: open mongo: %w", err)
		}
		return mongo.New(db), nil

	default:
		return nil, fmt.Errorf("fulfill/backend: unknown driver %q", cfg.Driver)
	}
}

// FromGrove builds the store matching db's driver.
func FromGrove(db *grove.DB) (store.Store, error) {
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("fulfill/backend: unsupported grove driver %q", name)
	}
}

func normalize(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mem", DriverMemory:
		return DriverMemory
	case "pg", "postgresql", DriverPostgres:
		return DriverPostgres
	case "sqlite3", DriverSQLite:
		return DriverSQLite
	case "mongodb", DriverMongo:
		return DriverMongo
	default:
		return name
	}
}
