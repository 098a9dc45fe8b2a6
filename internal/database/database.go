package database

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"example.com/backstage/services/provenance/config"
)

// Connect opens the configured database and sizes its connection pool
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Source)
	case "sqlite":
		dialector = sqlite.Dialector{DriverName: "sqlite", DSN: cfg.Source}
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get DB instance")
	}

	// SQLite allows a single writer; one connection keeps transactions from
	// failing with SQLITE_BUSY instead of queueing.
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	lifetime := cfg.ConnMaxLifetime
	if lifetime == 0 {
		lifetime = time.Hour
	}
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
