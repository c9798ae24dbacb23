package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/campus-connect/internal/config"
)

// NewDB opens the configured database and migrates the schema.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DB.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DB.SQLitePath + "?_busy_timeout=5000&_journal_mode=WAL")
	default:
		dialector = mysql.Open(cfg.DB.DSN)
	}

	level := logger.Warn
	if cfg.Log.Level == "debug" {
		level = logger.Info // log SQL queries
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: Now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if cfg.DB.Driver == "sqlite" {
		// sqlite has a single writer; one connection avoids SQLITE_BUSY storms.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate ensures schema is in sync with models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Now is the clock used for every timestamp this service writes: UTC at
// microsecond precision, matching datetime(6) columns.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
