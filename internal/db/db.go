// Package db opens and migrates the Switchboard audit database.
package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"switchboard/internal/models"
)

// AllModels returns the GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.AuditEntry{},
	}
}

// Connect opens a GORM connection for the given driver ("sqlite" or
// "mysql") and DSN.
func Connect(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	var (
		gdb *gorm.DB
		err error
	)
	switch driver {
	case "sqlite":
		gdb, err = gorm.Open(sqlite.Open(dsn), cfg)
	case "mysql":
		gdb, err = gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", driver, err)
	}
	return gdb, nil
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
