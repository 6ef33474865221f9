package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gozmanthefirst/ahianeo/config"
	"github.com/gozmanthefirst/ahianeo/models"
)

// Connect opens the Postgres connection. The handle is passed to repositories
// explicitly; there is no package-level connection.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// Migrate runs the schema migrations for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Product{},
		&models.ProductImage{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
	)
}
