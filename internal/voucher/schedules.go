package voucher

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/schedule"
	"github.com/dinepoint/dinepoint/internal/util"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ScheduleInput is the textual schedule request. Start and End are HH:MM:SS.
// Weekly schedules fire on Weekday at Start; the others fire every
// IntervalMinutes and take today's weekday as their day.
type ScheduleInput struct {
	Name            string
	Description     string
	Discount        string
	Stock           string
	Start           string
	End             string
	Weekly          bool
	Weekday         string
	IntervalMinutes int
}

// ScheduleView is a distribution schedule as presented to clients.
type ScheduleView struct {
	ID              uint64          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Weekly          bool            `json:"weekly"`
	Day             string          `json:"day"`
	IntervalMinutes int             `json:"interval_minutes,omitempty"`
	Start           string          `json:"start"`
	End             string          `json:"end"`
	Discount        decimal.Decimal `json:"discount"`
	Stock           int             `json:"num_vouchers"`
}

func scheduleView(s models.DistributionSchedule) ScheduleView {
	return ScheduleView{
		ID:              s.ID,
		Name:            s.Name,
		Description:     s.Description,
		Weekly:          s.Weekly,
		Day:             s.Weekday,
		IntervalMinutes: s.IntervalMinutes,
		Start:           s.StartTime,
		End:             s.EndTime,
		Discount:        s.Discount,
		Stock:           s.Stock,
	}
}

// CreateSchedule stores a distribution schedule and registers its trigger.
// Registration happens inside the transaction so a schedule never exists
// without a trigger.
func (e *Engine) CreateSchedule(ctx context.Context, eateryID uint64, in ScheduleInput) (ScheduleView, error) {
	now := e.now()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "Voucher name is required.")
	}
	stock, errStock := parseStock(in.Stock)
	if errStock != nil {
		return ScheduleView{}, errStock
	}
	discount, errDiscount := parseDiscount(in.Discount)
	if errDiscount != nil {
		return ScheduleView{}, errDiscount
	}
	startOffset, errStart := util.ParseTimeOfDay(in.Start)
	if errStart != nil {
		return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "Invalid start time.")
	}
	endOffset, errEnd := util.ParseTimeOfDay(in.End)
	if errEnd != nil {
		return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "Invalid end time.")
	}
	if endOffset <= startOffset {
		return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "End time must be later than start time.")
	}

	row := models.DistributionSchedule{
		EateryID:    eateryID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Weekly:      in.Weekly,
		StartTime:   formatOffset(startOffset),
		EndTime:     formatOffset(endOffset),
		Discount:    discount,
		Stock:       stock,
	}
	if in.Weekly {
		day, errDay := schedule.ParseWeekday(in.Weekday)
		if errDay != nil {
			return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "Invalid day.")
		}
		row.Weekday = day.String()
	} else {
		if in.IntervalMinutes < 1 {
			return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "Interval must be at least 1 minute.")
		}
		if endOffset <= util.SinceMidnight(now) {
			return ScheduleView{}, apperr.Input(apperr.ErrInvalidInput, "End time must be later than the time right now.")
		}
		row.Weekday = now.Weekday().String()
		row.IntervalMinutes = in.IntervalMinutes
	}

	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEatery := requireEatery(tx, eateryID); errEatery != nil {
			return errEatery
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}
		return e.register(row)
	})
	if errTx != nil {
		if e.scheduler != nil && row.ID != 0 {
			e.scheduler.Remove(scheduleKey(row.ID))
		}
		return ScheduleView{}, wrap("create schedule", errTx)
	}
	return scheduleView(row), nil
}

// RemoveSchedule deletes the schedule and then cancels its trigger. Vouchers
// it already produced are kept.
func (e *Engine) RemoveSchedule(ctx context.Context, eateryID, scheduleID uint64) error {
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.DistributionSchedule
		if errFind := tx.Where("id = ? AND eatery_id = ?", scheduleID, eateryID).Take(&row).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.Input(apperr.ErrInvalidReference, "Invalid schedule id.")
			}
			return errFind
		}
		return tx.Delete(&row).Error
	})
	if errTx != nil {
		return wrap("remove schedule", errTx)
	}
	if e.scheduler != nil {
		e.scheduler.Remove(scheduleKey(scheduleID))
	}
	return nil
}

// RestoreSchedules registers every stored schedule with the scheduler and
// returns how many were registered. A schedule that fails to register is
// logged and skipped.
func (e *Engine) RestoreSchedules(ctx context.Context) (int, error) {
	if e.scheduler == nil {
		return 0, nil
	}
	var rows []models.DistributionSchedule
	if errFind := e.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; errFind != nil {
		return 0, wrap("restore schedules", errFind)
	}
	restored := 0
	for _, row := range rows {
		if errRegister := e.register(row); errRegister != nil {
			log.WithError(errRegister).WithField("schedule_id", row.ID).Warn("voucher: restore schedule failed")
			continue
		}
		restored++
	}
	return restored, nil
}

// register hands the schedule's trigger spec and fixed payload to the scheduler.
func (e *Engine) register(row models.DistributionSchedule) error {
	if e.scheduler == nil {
		return nil
	}
	spec, errSpec := triggerSpec(row)
	if errSpec != nil {
		return errSpec
	}
	return e.scheduler.Add(scheduleKey(row.ID), spec, func() { e.Fire(context.Background(), row) })
}

// Fire creates one voucher from the schedule's parameters dated today. A
// failed firing is logged and does not affect later firings.
func (e *Engine) Fire(ctx context.Context, row models.DistributionSchedule) {
	scheduleID := row.ID
	in := VoucherInput{
		Name:        row.Name,
		Description: row.Description,
		Discount:    row.Discount.String(),
		Stock:       strconv.Itoa(row.Stock),
		Start:       row.StartTime,
		End:         row.EndTime,
	}
	entry := log.WithFields(log.Fields{"schedule_id": scheduleID, "eatery_id": row.EateryID})
	v, err := e.createVoucher(ctx, row.EateryID, in, &scheduleID)
	if err != nil {
		entry.WithError(err).Warn("voucher: scheduled creation failed")
		return
	}
	entry.WithField("voucher_id", v.ID).Info("voucher: scheduled voucher created")
}

func triggerSpec(row models.DistributionSchedule) (schedule.Spec, error) {
	if !row.Weekly {
		return schedule.Every(time.Duration(row.IntervalMinutes) * time.Minute), nil
	}
	day, errDay := schedule.ParseWeekday(row.Weekday)
	if errDay != nil {
		return schedule.Spec{}, errDay
	}
	at, errAt := util.ParseTimeOfDay(row.StartTime)
	if errAt != nil {
		return schedule.Spec{}, errAt
	}
	return schedule.Weekly(day, at), nil
}

func scheduleKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func formatOffset(d time.Duration) string {
	return time.Time{}.Add(d).Format(util.TimeOfDayLayout)
}
