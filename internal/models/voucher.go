package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a stock-limited, time-windowed discount voucher.
type Voucher struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EateryID    uint64          `gorm:"not null;index"`             // Owning eatery.
	Name        string          `gorm:"type:text;not null"`         // Voucher name.
	Description string          `gorm:"type:text"`                  // Voucher description.
	Discount    decimal.Decimal `gorm:"type:decimal(5,2);not null"` // Discount rate in percent.
	Remaining   int             `gorm:"not null;default:0"`         // Units left to acquire.

	StartAt time.Time `gorm:"not null"` // Window start, inclusive.
	EndAt   time.Time `gorm:"not null"` // Window end, exclusive.

	ScheduleID *uint64 `gorm:"index"` // Schedule that produced the voucher, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// VoucherCode is a single-use redemption code held by a diner.
// Exactly one of VoucherID and LoyaltyVoucherID is set.
type VoucherCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Code string `gorm:"type:text;not null;uniqueIndex"` // Redeemable code.

	VoucherID        *uint64 `gorm:"uniqueIndex:idx_voucher_codes_voucher_diner"`                // Primary voucher reference.
	LoyaltyVoucherID *uint64 `gorm:"index"`                                                      // Loyalty voucher reference.
	DinerID          uint64  `gorm:"not null;uniqueIndex:idx_voucher_codes_voucher_diner;index"` // Holder.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Issue timestamp.
}

// DistributionSchedule drives recurring voucher creation.
type DistributionSchedule struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EateryID    uint64 `gorm:"not null;index"`     // Owning eatery.
	Name        string `gorm:"type:text;not null"` // Name given to produced vouchers.
	Description string `gorm:"type:text"`          // Description given to produced vouchers.

	Weekly          bool   `gorm:"not null"`           // Weekly cadence when true, interval otherwise.
	Weekday         string `gorm:"type:text;not null"` // Weekday name the schedule fires on.
	IntervalMinutes int    `gorm:"not null;default:0"` // Minutes between firings for interval schedules.

	StartTime string          `gorm:"type:varchar(8);not null"`   // Time of day, HH:MM:SS.
	EndTime   string          `gorm:"type:varchar(8);not null"`   // Time of day, HH:MM:SS.
	Discount  decimal.Decimal `gorm:"type:decimal(5,2);not null"` // Discount rate in percent.
	Stock     int             `gorm:"not null"`                   // Units per produced voucher.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
