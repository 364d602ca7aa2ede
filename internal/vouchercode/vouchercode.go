// Package vouchercode issues the single-use codes shared by primary and
// loyalty vouchers. A code is a random alphanumeric prefix followed by the
// holder's diner ID and the voucher ID.
package vouchercode

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/security"
	"github.com/dinepoint/dinepoint/internal/settings"
	"gorm.io/gorm"
)

const maxAttempts = 16

// ErrExhausted is returned when no unused code could be generated.
var ErrExhausted = errors.New("vouchercode: no unique code after retries")

// Target names the voucher a code redeems. Exactly one field must be set.
type Target struct {
	VoucherID        *uint64
	LoyaltyVoucherID *uint64
}

// Primary targets a stock-limited voucher.
func Primary(id uint64) Target { return Target{VoucherID: &id} }

// Loyalty targets a loyalty reward voucher.
func Loyalty(id uint64) Target { return Target{LoyaltyVoucherID: &id} }

func (t Target) id() (uint64, error) {
	switch {
	case t.VoucherID != nil && t.LoyaltyVoucherID == nil:
		return *t.VoucherID, nil
	case t.LoyaltyVoucherID != nil && t.VoucherID == nil:
		return *t.LoyaltyVoucherID, nil
	default:
		return 0, errors.New("vouchercode: target must reference exactly one voucher")
	}
}

// Compose joins a random prefix with the diner and voucher identifiers.
func Compose(random string, dinerID, voucherID uint64) string {
	return random + strconv.FormatUint(dinerID, 10) + strconv.FormatUint(voucherID, 10)
}

// Issue generates an unused code for dinerID and stores it inside tx.
func Issue(ctx context.Context, tx *gorm.DB, dinerID uint64, target Target) (models.VoucherCode, error) {
	voucherID, errTarget := target.id()
	if errTarget != nil {
		return models.VoucherCode{}, errTarget
	}
	length := settings.Int(settings.VoucherCodeLengthKey, settings.DefaultVoucherCodeLength)
	if length <= 0 {
		length = settings.DefaultVoucherCodeLength
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		random, errGen := security.GenerateCode(length)
		if errGen != nil {
			return models.VoucherCode{}, errGen
		}
		code := Compose(random, dinerID, voucherID)

		var taken int64
		if errCount := tx.WithContext(ctx).Model(&models.VoucherCode{}).Where("code = ?", code).Count(&taken).Error; errCount != nil {
			return models.VoucherCode{}, fmt.Errorf("vouchercode: check code: %w", errCount)
		}
		if taken > 0 {
			continue
		}

		row := models.VoucherCode{
			Code:             code,
			VoucherID:        target.VoucherID,
			LoyaltyVoucherID: target.LoyaltyVoucherID,
			DinerID:          dinerID,
		}
		if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
			return models.VoucherCode{}, fmt.Errorf("vouchercode: create: %w", errCreate)
		}
		return row, nil
	}
	return models.VoucherCode{}, ErrExhausted
}
