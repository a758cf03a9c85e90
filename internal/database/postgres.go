package database

import (
	"fmt"
	"log"

	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Connect(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db
	log.Println("Database connected successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")
	err := db.AutoMigrate(
		&models.Agent{},
		&models.Company{},
		&models.Customer{},
		&models.Ticket{},
		// Workflow models
		&models.WorkflowInstance{},
		&models.StepState{},
		&models.StepAuditRecord{},
		&models.StepAttachment{},
		&models.ServiceReport{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed")
	return nil
}

// Seed creates the default admin agent so a fresh install is usable.
func Seed(db *gorm.DB) error {
	log.Println("Seeding database...")

	var admin models.Agent
	result := db.Where("email = ?", "admin@servicehub.local").First(&admin)
	if result.Error == gorm.ErrRecordNotFound {
		hashedPassword, err := utils.HashPassword("admin123")
		if err != nil {
			return fmt.Errorf("failed to hash seed password: %w", err)
		}
		admin = models.Agent{
			Email:     "admin@servicehub.local",
			Username:  "admin",
			Password:  hashedPassword,
			FirstName: "System",
			LastName:  "Admin",
			Role:      models.RoleAdmin,
			IsActive:  true,
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create admin agent: %w", err)
		}
	}

	log.Println("Database seeding completed")
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
