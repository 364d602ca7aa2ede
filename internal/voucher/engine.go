// Package voucher implements promotional vouchers: creation, recurring
// distribution schedules, per-diner acquisition and redemption.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/recommend"
	"github.com/dinepoint/dinepoint/internal/schedule"
	"github.com/dinepoint/dinepoint/internal/util"
	"github.com/dinepoint/dinepoint/internal/vouchercode"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var maxDiscount = decimal.NewFromInt(100)

// Engine is the voucher engine.
type Engine struct {
	db        *gorm.DB
	ledger    *loyalty.Ledger
	scheduler schedule.Scheduler
	now       func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock. The clock's location is the business
// time zone used for bare times of day and for rendering timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithScheduler registers distribution schedules with s.
func WithScheduler(s schedule.Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// NewEngine constructs an Engine.
func NewEngine(db *gorm.DB, ledger *loyalty.Ledger, opts ...Option) *Engine {
	e := &Engine{db: db, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VoucherInput is the textual voucher request as received from a client or
// produced by a schedule firing. Start and End accept DD-MM-YYYY HH:MM:SS or a
// bare HH:MM:SS placed on today's date.
type VoucherInput struct {
	Name        string
	Description string
	Discount    string
	Stock       string
	Start       string
	End         string
}

// View is a voucher as presented to clients.
type View struct {
	ID          uint64          `json:"id"`
	EateryID    uint64          `json:"eatery_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Discount    decimal.Decimal `json:"discount"`
	Remaining   int             `json:"num_vouchers"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
}

func (e *Engine) view(v models.Voucher) View {
	loc := e.now().Location()
	return View{
		ID:          v.ID,
		EateryID:    v.EateryID,
		Name:        v.Name,
		Description: v.Description,
		Discount:    v.Discount,
		Remaining:   v.Remaining,
		Start:       util.FormatDateTime(v.StartAt, loc),
		End:         util.FormatDateTime(v.EndAt, loc),
	}
}

// CreateVoucher creates a voucher with exactly the requested stock.
func (e *Engine) CreateVoucher(ctx context.Context, eateryID uint64, in VoucherInput) (View, error) {
	return e.createVoucher(ctx, eateryID, in, nil)
}

func (e *Engine) createVoucher(ctx context.Context, eateryID uint64, in VoucherInput, scheduleID *uint64) (View, error) {
	now := e.now()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return View{}, apperr.Input(apperr.ErrInvalidInput, "Voucher name is required.")
	}
	stock, errStock := parseStock(in.Stock)
	if errStock != nil {
		return View{}, errStock
	}
	discount, errDiscount := parseDiscount(in.Discount)
	if errDiscount != nil {
		return View{}, errDiscount
	}
	start, errStart := util.ParseDateTimeOrTimeOfDay(in.Start, now)
	if errStart != nil {
		return View{}, apperr.Input(apperr.ErrInvalidInput, "Invalid start time.")
	}
	end, errEnd := util.ParseDateTimeOrTimeOfDay(in.End, now)
	if errEnd != nil {
		return View{}, apperr.Input(apperr.ErrInvalidInput, "Invalid end time.")
	}
	if !end.After(now) {
		return View{}, apperr.Input(apperr.ErrInvalidInput, "End time must be later than the time right now.")
	}
	if !end.After(start) {
		return View{}, apperr.Input(apperr.ErrInvalidInput, "End time must be later than start time.")
	}

	row := models.Voucher{
		EateryID:    eateryID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Discount:    discount,
		Remaining:   stock,
		StartAt:     start,
		EndAt:       end,
		ScheduleID:  scheduleID,
	}
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEatery := requireEatery(tx, eateryID); errEatery != nil {
			return errEatery
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		return View{}, wrap("create voucher", errTx)
	}
	return e.view(row), nil
}

// Code is a freshly issued voucher code.
type Code struct {
	Code string `json:"code"`
}

// Acquire gives dinerID one unit of voucherID and returns the diner's code.
func (e *Engine) Acquire(ctx context.Context, dinerID, voucherID uint64) (Code, error) {
	now := e.now()
	var issued models.VoucherCode
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held int64
		if errCount := tx.Model(&models.VoucherCode{}).
			Where("voucher_id = ? AND diner_id = ?", voucherID, dinerID).
			Count(&held).Error; errCount != nil {
			return errCount
		}
		if held > 0 {
			return apperr.Input(apperr.ErrAlreadyObtained, "Voucher has already been obtained.")
		}

		var v models.Voucher
		if errFind := tx.Take(&v, voucherID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.Input(apperr.ErrInvalidOrExpired, "Invalid voucher.")
			}
			return errFind
		}
		if v.Remaining <= 0 || !now.Before(v.EndAt) {
			return apperr.Input(apperr.ErrInvalidOrExpired, "Invalid voucher.")
		}

		taken, errTake := takeUnit(tx, voucherID)
		if errTake != nil {
			return errTake
		}
		if !taken {
			return apperr.Input(apperr.ErrInvalidOrExpired, "Invalid voucher.")
		}

		var eatery models.Eatery
		if errFind := tx.Select("id", "name", "tags").Take(&eatery, v.EateryID).Error; errFind != nil {
			return errFind
		}
		if errRecord := recommend.Record(ctx, tx, dinerID, eatery, true); errRecord != nil {
			return errRecord
		}

		code, errIssue := vouchercode.Issue(ctx, tx, dinerID, vouchercode.Primary(voucherID))
		if errIssue != nil {
			if errors.Is(errIssue, gorm.ErrDuplicatedKey) {
				return apperr.Input(apperr.ErrAlreadyObtained, "Voucher has already been obtained.")
			}
			return errIssue
		}
		issued = code
		return nil
	})
	if errTx != nil {
		return Code{}, wrap("acquire", errTx)
	}
	log.WithFields(log.Fields{"diner_id": dinerID, "voucher_id": voucherID, "code": util.MaskCode(issued.Code)}).Info("voucher acquired")
	return Code{Code: issued.Code}, nil
}

// Redemption describes what a redeemed code was worth.
type Redemption struct {
	Kind        string           `json:"kind"`
	DinerID     uint64           `json:"diner_id"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Discount    *decimal.Decimal `json:"discount,omitempty"`
	RewardType  string           `json:"type,omitempty"`
	Item        string           `json:"item,omitempty"`
}

// Redemption kinds.
const (
	KindPrimary = "voucher"
	KindLoyalty = "loyalty"
)

// Redeem consumes code at eateryID. Primary voucher codes are looked up first
// and must be used inside [start, end); loyalty codes are tried only when no
// primary code matches.
func (e *Engine) Redeem(ctx context.Context, eateryID uint64, code string) (Redemption, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Redemption{}, apperr.Input(apperr.ErrInvalidCode, "The inputted code is invalid.")
	}
	now := e.now()

	var out Redemption
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var primary models.VoucherCode
		errPrimary := tx.Joins("JOIN vouchers ON vouchers.id = voucher_codes.voucher_id").
			Where("voucher_codes.code = ? AND vouchers.eatery_id = ?", code, eateryID).
			Take(&primary).Error
		switch {
		case errPrimary == nil:
			var v models.Voucher
			if errFind := tx.Take(&v, *primary.VoucherID).Error; errFind != nil {
				return errFind
			}
			if now.Before(v.StartAt) || !now.Before(v.EndAt) {
				return apperr.Input(apperr.ErrOutOfWindow, "The code cannot be used outside of valid time period.")
			}
			if errInc := e.ledger.Increment(ctx, tx, primary.DinerID, eateryID); errInc != nil {
				return errInc
			}
			if errDelete := tx.Delete(&primary).Error; errDelete != nil {
				return errDelete
			}
			discount := v.Discount
			out = Redemption{Kind: KindPrimary, DinerID: primary.DinerID, Name: v.Name, Description: v.Description, Discount: &discount}
			return nil
		case !errors.Is(errPrimary, gorm.ErrRecordNotFound):
			return errPrimary
		}

		var reward models.VoucherCode
		errReward := tx.Joins("JOIN loyalty_vouchers ON loyalty_vouchers.id = voucher_codes.loyalty_voucher_id").
			Where("voucher_codes.code = ? AND loyalty_vouchers.eatery_id = ?", code, eateryID).
			Take(&reward).Error
		if errors.Is(errReward, gorm.ErrRecordNotFound) {
			return apperr.Input(apperr.ErrInvalidCode, "The inputted code is invalid.")
		}
		if errReward != nil {
			return errReward
		}
		var lv models.LoyaltyVoucher
		if errFind := tx.Take(&lv, *reward.LoyaltyVoucherID).Error; errFind != nil {
			return errFind
		}
		if errDelete := tx.Delete(&reward).Error; errDelete != nil {
			return errDelete
		}
		out = Redemption{Kind: KindLoyalty, DinerID: reward.DinerID, RewardType: lv.RewardType, Item: lv.Item}
		return nil
	})
	if errTx != nil {
		return Redemption{}, wrap("redeem", errTx)
	}
	log.WithFields(log.Fields{"eatery_id": eateryID, "kind": out.Kind, "code": util.MaskCode(code)}).Info("voucher redeemed")
	return out, nil
}

// Held is a primary voucher code a diner has not redeemed yet.
type Held struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Discount    decimal.Decimal `json:"discount"`
	Start       string          `json:"start"`
	End         string          `json:"end"`
	Code        string          `json:"code"`
	EateryID    uint64          `json:"eatery_id"`
	EateryName  string          `json:"eatery_name"`
}

// ListForDiner returns the diner's unredeemed primary voucher codes.
func (e *Engine) ListForDiner(ctx context.Context, dinerID uint64) ([]Held, error) {
	db := e.db.WithContext(ctx)
	var codes []models.VoucherCode
	if errFind := db.Where("diner_id = ? AND voucher_id IS NOT NULL", dinerID).Order("id ASC").Find(&codes).Error; errFind != nil {
		return nil, wrap("list diner vouchers", errFind)
	}
	if len(codes) == 0 {
		return []Held{}, nil
	}

	voucherIDs := make([]uint64, 0, len(codes))
	for _, c := range codes {
		voucherIDs = append(voucherIDs, *c.VoucherID)
	}
	var vouchers []models.Voucher
	if errFind := db.Where("id IN ?", voucherIDs).Find(&vouchers).Error; errFind != nil {
		return nil, wrap("list diner vouchers", errFind)
	}
	byID := make(map[uint64]models.Voucher, len(vouchers))
	eateryIDs := make([]uint64, 0, len(vouchers))
	for _, v := range vouchers {
		byID[v.ID] = v
		eateryIDs = append(eateryIDs, v.EateryID)
	}
	var eateries []models.Eatery
	if errFind := db.Select("id", "name").Where("id IN ?", eateryIDs).Find(&eateries).Error; errFind != nil {
		return nil, wrap("list diner vouchers", errFind)
	}
	names := make(map[uint64]string, len(eateries))
	for _, eatery := range eateries {
		names[eatery.ID] = eatery.Name
	}

	loc := e.now().Location()
	out := make([]Held, 0, len(codes))
	for _, c := range codes {
		v, ok := byID[*c.VoucherID]
		if !ok {
			continue
		}
		out = append(out, Held{
			ID:          v.ID,
			Name:        v.Name,
			Description: v.Description,
			Discount:    v.Discount,
			Start:       util.FormatDateTime(v.StartAt, loc),
			End:         util.FormatDateTime(v.EndAt, loc),
			Code:        c.Code,
			EateryID:    v.EateryID,
			EateryName:  names[v.EateryID],
		})
	}
	return out, nil
}

// Listing is an eatery's acquirable vouchers and its distribution schedules.
type Listing struct {
	Vouchers  []View         `json:"vouchers"`
	Schedules []ScheduleView `json:"schedules"`
}

// ListForEatery returns the vouchers with stock left and all schedules of eateryID.
func (e *Engine) ListForEatery(ctx context.Context, eateryID uint64) (Listing, error) {
	db := e.db.WithContext(ctx)
	var vouchers []models.Voucher
	if errFind := db.Where("eatery_id = ? AND remaining > 0", eateryID).Order("start_at ASC, id ASC").Find(&vouchers).Error; errFind != nil {
		return Listing{}, wrap("list vouchers", errFind)
	}
	var schedules []models.DistributionSchedule
	if errFind := db.Where("eatery_id = ?", eateryID).Order("id ASC").Find(&schedules).Error; errFind != nil {
		return Listing{}, wrap("list schedules", errFind)
	}

	out := Listing{Vouchers: make([]View, 0, len(vouchers)), Schedules: make([]ScheduleView, 0, len(schedules))}
	for _, v := range vouchers {
		out.Vouchers = append(out.Vouchers, e.view(v))
	}
	for _, s := range schedules {
		out.Schedules = append(out.Schedules, scheduleView(s))
	}
	return out, nil
}

func parseStock(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, apperr.Input(apperr.ErrInvalidInput, "Missing number of vouchers.")
	}
	n, errAtoi := strconv.Atoi(trimmed)
	if errAtoi != nil {
		return 0, apperr.Input(apperr.ErrInvalidInput, "Number of vouchers must be a whole number.")
	}
	if n < 1 {
		return 0, apperr.Input(apperr.ErrInvalidInput, "Number of vouchers must be greater than 0.")
	}
	return n, nil
}

func parseDiscount(raw string) (decimal.Decimal, error) {
	d, errParse := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if errParse != nil {
		return decimal.Decimal{}, apperr.Input(apperr.ErrInvalidInput, "Invalid discount.")
	}
	if !d.IsPositive() || d.GreaterThan(maxDiscount) {
		return decimal.Decimal{}, apperr.Input(apperr.ErrInvalidInput, "Discount must be between 0 and 100.")
	}
	return d.Round(2), nil
}

// takeUnit decrements the voucher's stock only while some is left and reports
// whether a unit was taken. The stock read earlier may be stale by now.
func takeUnit(tx *gorm.DB, voucherID uint64) (bool, error) {
	res := tx.Model(&models.Voucher{}).
		Where("id = ? AND remaining > 0", voucherID).
		UpdateColumn("remaining", gorm.Expr("remaining - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func requireEatery(tx *gorm.DB, eateryID uint64) error {
	return identity.RequireAccount(tx, models.AccountRef{ID: eateryID, Kind: models.KindEatery}, apperr.ErrInvalidReference)
}

// wrap leaves classified errors untouched and annotates storage failures.
func wrap(op string, err error) error {
	if err == nil || apperr.KindOf(err) != 0 {
		return err
	}
	return fmt.Errorf("voucher: %s: %w", op, err)
}
