package db

import (
	"fmt"

	"github.com/wada/backend/internal/config"
	"github.com/wada/backend/internal/logger"
	"github.com/wada/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect opens the relational database that holds guests and chat rooms.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", cfg.DBDriver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.DBDriver, err)
	}

	DB = conn
	logger.Info("Database connected successfully", map[string]interface{}{
		"driver": cfg.DBDriver,
	})
	return conn, nil
}

// AutoMigrate creates or updates the identity tables.
func AutoMigrate(conn *gorm.DB) error {
	for _, model := range []interface{}{&models.Guest{}, &models.ChatRoom{}} {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration of %T failed: %w", model, err)
		}
		logger.Debug("Table migrated", map[string]interface{}{"model": fmt.Sprintf("%T", model)})
	}
	logger.Info("All database migrations completed successfully", nil)
	return nil
}

// Ping checks the underlying connection, used by the health endpoint.
func Ping(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
