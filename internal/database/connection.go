// internal/database/connection.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/contract-engine/internal/config"
	"github.com/javajoker/contract-engine/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established successfully")
	return db, nil
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed successfully")
	}
}

// Tables owned by the engine plus the read-only collaborator tables it joins.
func migratedModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Order{},
		&models.Service{},
		&models.Contract{},
		&models.ContractEvent{},
		&models.AddonAttachment{},
		&models.SigningOtp{},
		&models.PaymentIntent{},
		&models.PaymentIntentAddon{},
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations...")

	if err := db.AutoMigrate(migratedModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	// One live contract per order. Cancelled contracts free the order again.
	constraints := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_contracts_order_active ON contracts(order_id) WHERE status <> 'CANCELLED'",
	}

	for _, stmt := range constraints {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_addon_attachments_contract_payer ON addon_attachments(contract_id, charged_to, payment_status)",
		"CREATE INDEX IF NOT EXISTS idx_addon_attachments_created ON addon_attachments(contract_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_payment_intents_contract_payer ON payment_intents(contract_id, charged_to, status)",
		"CREATE INDEX IF NOT EXISTS idx_contract_events_contract_created ON contract_events(contract_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_signing_otps_issued ON signing_otps(contract_id, role, issued_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			logrus.WithError(err).WithField("index", index).Warn("Failed to create index")
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// WithTransaction runs fn inside a transaction bound to ctx, committing when
// fn returns nil and rolling back otherwise.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
