package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/backstage/services/giftcard/config"
	"example.com/backstage/services/giftcard/models"
)

// Connect opens the write handle and, when configured, a separate read-only handle.
// Without a read-only source both return values are the same handle.
func Connect(cfg config.DatabaseConfig) (db *gorm.DB, readOnly *gorm.DB, err error) {
	db, err = open(cfg.Source, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ReadOnlySource == "" {
		return db, db, nil
	}
	readOnly, err = open(cfg.ReadOnlySource, cfg)
	if err != nil {
		Close(db)
		return nil, nil, err
	}
	return db, readOnly, nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	// Configure GORM logger
	logLevel := logger.Error
	if cfg.Debug {
		logLevel = logger.Info
	}

	gormLogger := logger.New(
		&logAdapter{},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Register hooks for metrics
	if err := RegisterMetricsHooks(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs database migrations
func Migrate(db *gorm.DB) error {
	log.Info().Msg("Running database migrations")
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the pool behind db
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

// logAdapter adapts the GORM logger to zerolog
type logAdapter struct{}

func (l *logAdapter) Printf(format string, args ...any) {
	log.Debug().Str("component", "gorm").Msgf(format, args...)
}
