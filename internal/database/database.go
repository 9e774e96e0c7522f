package database

import (
	"fmt"

	"admissions-go/internal/config"
	logging "admissions-go/internal/logging"
	"admissions-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DSN builds the Postgres connection string from config.
func DSN(dbConf config.DatabaseConfig) string {
	sslMode := dbConf.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		dbConf.Host, dbConf.User, dbConf.Password, dbConf.DBName, dbConf.Port, sslMode)
}

// Open connects to Postgres with GORM logging routed through zap.
func Open(dbConf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	return OpenDialector(postgres.Open(DSN(dbConf)), log)
}

// OpenDialector is Open for an arbitrary dialector; tests pass SQLite.
func OpenDialector(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logging.NewGormZapLogger(log),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully.")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB, log *zap.Logger) error {
	// AutoMigrate creates tables, columns and the indexes declared in struct tags.
	err := db.AutoMigrate(
		&models.Attendee{},
		&models.Notification{},
		&models.SystemSettings{},
		&models.Role{},
		&models.User{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	// The dashboards list one test type at a time, newest first.
	listIndex := `CREATE INDEX IF NOT EXISTS idx_attendees_type_created ON attendees (test_type, created_at DESC);`
	if err := db.Exec(listIndex).Error; err != nil {
		return fmt.Errorf("failed to create custom index on attendees table: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
