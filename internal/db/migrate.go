package db

import (
	"fmt"

	"github.com/dinepoint/dinepoint/internal/models"
	"gorm.io/gorm"
)

// Models lists every table managed by Migrate, in dependency order.
func Models() []any {
	return []any{
		&models.Diner{},
		&models.Eatery{},
		&models.LoyaltyConfig{},
		&models.LoyaltyPoint{},
		&models.LoyaltyVoucher{},
		&models.DistributionSchedule{},
		&models.Voucher{},
		&models.VoucherCode{},
		&models.Review{},
		&models.EateryReviewer{},
		&models.Session{},
		&models.PasswordReset{},
		&models.Setting{},
	}
}

// Migrate creates or updates all tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(Models()...); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
