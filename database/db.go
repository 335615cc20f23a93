package database

import (
	"fmt"

	"github.com/chxlky/trello-archiver/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Init opens (or creates) the archive database and migrates the schema.
// Migrations are additive only; the read-side consumers depend on the tables
// staying stable across archiver versions.
func Init(dbPath string) (*gorm.DB, error) {
	dbFile := sqlite.Open(dbPath + "?_foreign_keys=on")
	db, err := gorm.Open(dbFile, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database at %s: %w", dbPath, err)
	}

	// Sub-entity upserts are multi-statement; a single connection serialises
	// writers while WAL keeps readers unblocked.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	zap.L().Info("Database initialised and migrated successfully", zap.String("path", dbPath))

	return db, nil
}
