// Package persistence stores the inventory, order and payment aggregates in a
// relational database through gorm. Postgres is the production target;
// SQLite serves local runs and tests.
package persistence

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var ErrUnknownDriver = errors.New("persistence: unknown driver")

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Database holds the connection pool shared by the repositories.
type Database struct {
	DB *gorm.DB
}

// Open connects, applies the pool settings and pings the server.
func Open(cfg Config) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Database{DB: db}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

// Migrate creates or alters the tables the repositories use.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(
		&productModel{},
		&ledgerModel{},
		&reservationModel{},
		&orderModel{},
		&paymentModel{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

func (d *Database) Catalog() *CatalogRepository          { return NewCatalogRepository(d.DB) }
func (d *Database) Ledgers() *LedgerRepository           { return NewLedgerRepository(d.DB) }
func (d *Database) Reservations() *ReservationRepository { return NewReservationRepository(d.DB) }
func (d *Database) Orders() *OrderRepository             { return NewOrderRepository(d.DB) }
func (d *Database) Payments() *PaymentRepository         { return NewPaymentRepository(d.DB) }

// translate maps driver errors onto the shared taxonomy. Callers pass the
// sentinel that a unique violation means for their table.
func translate(op string, err error, onDuplicate error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) && onDuplicate != nil {
		return onDuplicate
	}
	return fmt.Errorf("persistence: %s: %w", op, err)
}
