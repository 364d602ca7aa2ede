// Package loyalty keeps per-diner, per-eatery point counters and issues
// loyalty reward vouchers.
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/vouchercode"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger is the loyalty points ledger.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Increment adds one point for dinerID at eateryID inside tx. It does nothing
// when the eatery has no enabled loyalty program. There is no upper bound;
// reaching the goal does not issue anything on its own.
func (l *Ledger) Increment(ctx context.Context, tx *gorm.DB, dinerID, eateryID uint64) error {
	var cfg models.LoyaltyConfig
	errFind := tx.WithContext(ctx).Where("eatery_id = ?", eateryID).Take(&cfg).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil
	}
	if errFind != nil {
		return fmt.Errorf("loyalty: load config: %w", errFind)
	}
	if !cfg.Enabled {
		return nil
	}

	row := models.LoyaltyPoint{DinerID: dinerID, EateryID: eateryID, Points: 1}
	if errUpsert := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "diner_id"}, {Name: "eatery_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"points":     gorm.Expr("loyalty_points.points + 1"),
			"updated_at": tx.NowFunc(),
		}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("loyalty: increment points: %w", errUpsert)
	}
	return nil
}

// Reward is the result of cashing in loyalty points.
type Reward struct {
	Code       string `json:"code"`
	RewardType string `json:"type"`
	Item       string `json:"item"`
}

// ObtainVoucher issues a loyalty voucher for dinerID at eateryID, resets the
// diner's points there to zero and returns the redeemable code. The point goal
// is not checked here.
func (l *Ledger) ObtainVoucher(ctx context.Context, dinerID, eateryID uint64) (Reward, error) {
	var reward Reward
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDiner := identity.RequireAccount(tx, models.AccountRef{ID: dinerID, Kind: models.KindDiner}, apperr.ErrInvalidReference); errDiner != nil {
			return errDiner
		}
		if errEatery := identity.RequireAccount(tx, models.AccountRef{ID: eateryID, Kind: models.KindEatery}, apperr.ErrInvalidReference); errEatery != nil {
			return errEatery
		}

		var cfg models.LoyaltyConfig
		if errFind := tx.Where("eatery_id = ?", eateryID).Take(&cfg).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.Input(apperr.ErrInvalidReference, "Eatery has no loyalty program.")
			}
			return fmt.Errorf("loyalty: load config: %w", errFind)
		}

		voucher := models.LoyaltyVoucher{EateryID: eateryID, RewardType: cfg.RewardType, Item: cfg.Item}
		if errCreate := tx.Create(&voucher).Error; errCreate != nil {
			return fmt.Errorf("loyalty: create voucher: %w", errCreate)
		}

		reset := models.LoyaltyPoint{DinerID: dinerID, EateryID: eateryID, Points: 0}
		if errReset := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "diner_id"}, {Name: "eatery_id"}},
			DoUpdates: clause.Assignments(map[string]any{"points": 0, "updated_at": tx.NowFunc()}),
		}).Create(&reset).Error; errReset != nil {
			return fmt.Errorf("loyalty: reset points: %w", errReset)
		}

		code, errIssue := vouchercode.Issue(ctx, tx, dinerID, vouchercode.Loyalty(voucher.ID))
		if errIssue != nil {
			return errIssue
		}
		reward = Reward{Code: code.Code, RewardType: voucher.RewardType, Item: voucher.Item}
		return nil
	})
	if errTx != nil {
		return Reward{}, errTx
	}
	log.WithFields(log.Fields{"diner_id": dinerID, "eatery_id": eateryID}).Info("loyalty voucher issued")
	return reward, nil
}

// HeldReward is a loyalty code a diner has not redeemed yet.
type HeldReward struct {
	EateryID   uint64 `json:"eatery_id"`
	EateryName string `json:"eatery_name"`
	RewardType string `json:"type"`
	Item       string `json:"item"`
	Code       string `json:"code"`
}

// ListVouchers returns the unredeemed loyalty codes held by dinerID.
func (l *Ledger) ListVouchers(ctx context.Context, dinerID uint64) ([]HeldReward, error) {
	var rows []HeldReward
	if errFind := l.db.WithContext(ctx).
		Table("voucher_codes AS c").
		Select("e.id AS eatery_id, e.name AS eatery_name, lv.reward_type, lv.item, c.code").
		Joins("JOIN loyalty_vouchers AS lv ON lv.id = c.loyalty_voucher_id").
		Joins("JOIN eateries AS e ON e.id = lv.eatery_id").
		Where("c.diner_id = ?", dinerID).
		Order("c.id ASC").
		Scan(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: list vouchers: %w", errFind)
	}
	return rows, nil
}

// Points returns the diner's points keyed by eatery ID.
func (l *Ledger) Points(ctx context.Context, dinerID uint64) (map[uint64]int, error) {
	var rows []models.LoyaltyPoint
	if errFind := l.db.WithContext(ctx).Where("diner_id = ?", dinerID).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("loyalty: load points: %w", errFind)
	}
	points := make(map[uint64]int, len(rows))
	for _, row := range rows {
		points[row.EateryID] = row.Points
	}
	return points, nil
}

// Config returns the eatery's loyalty configuration.
func (l *Ledger) Config(ctx context.Context, eateryID uint64) (models.LoyaltyConfig, error) {
	var cfg models.LoyaltyConfig
	if errFind := l.db.WithContext(ctx).Where("eatery_id = ?", eateryID).Take(&cfg).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.LoyaltyConfig{}, apperr.Input(apperr.ErrInvalidReference, "Invalid eatery id.")
		}
		return models.LoyaltyConfig{}, fmt.Errorf("loyalty: load config: %w", errFind)
	}
	return cfg, nil
}

// Program is the public face of an eatery's loyalty configuration.
type Program struct {
	Enabled     bool   `json:"enabled"`
	RewardType  string `json:"type"`
	Item        string `json:"item"`
	PointGoal   int    `json:"point_goal"`
	Description string `json:"description"`
}

// ProgramOf renders cfg for clients.
func ProgramOf(cfg models.LoyaltyConfig) Program {
	return Program{
		Enabled:     cfg.Enabled,
		RewardType:  cfg.RewardType,
		Item:        cfg.Item,
		PointGoal:   cfg.PointGoal,
		Description: cfg.Description,
	}
}

// ConfigInput carries an eatery owner's loyalty program settings.
type ConfigInput struct {
	Enabled     bool   `json:"enabled"`
	RewardType  string `json:"type"`
	Item        string `json:"item"`
	PointGoal   int    `json:"point_goal"`
	Description string `json:"description"`
}

// UpdateConfig replaces the eatery's loyalty configuration.
func (l *Ledger) UpdateConfig(ctx context.Context, eateryID uint64, in ConfigInput) (models.LoyaltyConfig, error) {
	if in.PointGoal < 1 {
		return models.LoyaltyConfig{}, apperr.Input(apperr.ErrInvalidInput, "Point goal must be at least 1.")
	}
	if in.Enabled && strings.TrimSpace(in.Item) == "" {
		return models.LoyaltyConfig{}, apperr.Input(apperr.ErrInvalidInput, "A reward item is required.")
	}

	cfg := models.LoyaltyConfig{
		EateryID:    eateryID,
		Enabled:     in.Enabled,
		RewardType:  strings.TrimSpace(in.RewardType),
		Item:        strings.TrimSpace(in.Item),
		PointGoal:   in.PointGoal,
		Description: strings.TrimSpace(in.Description),
	}
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEatery := identity.RequireAccount(tx, models.AccountRef{ID: eateryID, Kind: models.KindEatery}, apperr.ErrInvalidReference); errEatery != nil {
			return errEatery
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "eatery_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "reward_type", "item", "point_goal", "description", "updated_at"}),
		}).Create(&cfg).Error
	})
	if errTx != nil {
		if apperr.KindOf(errTx) != 0 {
			return models.LoyaltyConfig{}, errTx
		}
		return models.LoyaltyConfig{}, fmt.Errorf("loyalty: update config: %w", errTx)
	}
	return l.Config(ctx, eateryID)
}

