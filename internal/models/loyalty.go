package models

import "time"

// LoyaltyConfig is the per-eatery loyalty program configuration.
type LoyaltyConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EateryID uint64 `gorm:"not null;uniqueIndex"` // Owning eatery.

	Enabled     bool   `gorm:"not null;default:false"` // Whether points accrue.
	RewardType  string `gorm:"type:text"`              // Reward category, e.g. "free item".
	Item        string `gorm:"type:text"`              // Rewarded item.
	PointGoal   int    `gorm:"not null;default:10"`    // Points required for a reward.
	Description string `gorm:"type:text"`              // Program description shown to diners.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// LoyaltyPoint holds one entry of a diner's points map.
type LoyaltyPoint struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	DinerID  uint64 `gorm:"not null;uniqueIndex:idx_loyalty_points_diner_eatery"` // Point holder.
	EateryID uint64 `gorm:"not null;uniqueIndex:idx_loyalty_points_diner_eatery"` // Eatery the points belong to.
	Points   int    `gorm:"not null;default:0"`                                   // Current count, never negative.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// LoyaltyVoucher is a reward issued when a diner cashes in points.
type LoyaltyVoucher struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EateryID   uint64 `gorm:"not null;index"` // Issuing eatery.
	RewardType string `gorm:"type:text"`      // Reward type copied from the config.
	Item       string `gorm:"type:text"`      // Reward item copied from the config.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Issue timestamp.
}
