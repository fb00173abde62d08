// Package db persists users and their provider credentials with gorm.
package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Tandem/internal/config"
)

type Client struct {
	DB *gorm.DB
}

func New(cfg config.Database) (*Client, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info().Str("module", "db").Str("driver", cfg.Driver).Msg("database connected")
	return &Client{DB: db}, nil
}

// AutoMigrate creates/updates tables based on struct definitions.
func (c *Client) AutoMigrate() error {
	if err := c.DB.AutoMigrate(&UserRecord{}, &CredentialRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("module", "db").Msg("migrations complete")
	return nil
}

func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
