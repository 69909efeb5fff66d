package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/undercurrent-backend/internal/platform/envutil"
	"github.com/yungbote/undercurrent-backend/internal/platform/logger"
)

// NewSQLite opens a file backed store for local development. Path defaults to
// undercurrent.db in the working directory.
func NewSQLite(logg *logger.Logger, path string) (*gorm.DB, error) {
	if path == "" {
		path = envutil.String("SQLITE_PATH", "undercurrent.db")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY under load.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	logg.With("service", "SQLite").Info("Opened SQLite store", "path", path)
	return db, nil
}

// Open selects the store from DB_DRIVER (postgres by default).
func Open(logg *logger.Logger) (*gorm.DB, error) {
	switch envutil.String("DB_DRIVER", "postgres") {
	case "sqlite":
		return NewSQLite(logg, "")
	case "postgres":
		return NewPostgres(logg, PostgresConfigFromEnv())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", envutil.String("DB_DRIVER", ""))
	}
}
