package voucher

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/schedule"
	"gorm.io/gorm"
)

type fakeScheduler struct {
	mu   sync.Mutex
	jobs map[string]fakeJob
}

type fakeJob struct {
	spec schedule.Spec
	run  func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: map[string]fakeJob{}}
}

func (s *fakeScheduler) Add(id string, spec schedule.Spec, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = fakeJob{spec: spec, run: job}
	return nil
}

func (s *fakeScheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *fakeScheduler) job(id uint64) (fakeJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[strconv.FormatUint(id, 10)]
	return j, ok
}

func TestWeeklyScheduleRegistersAndFires(t *testing.T) {
	sched := newFakeScheduler()
	f := newFixture(t, 0, WithScheduler(sched))
	ctx := context.Background()

	created, errCreate := f.engine.CreateSchedule(ctx, f.eatery.ID, ScheduleInput{
		Name: "Friday lunch", Discount: "25", Stock: "10",
		Start: "11:30:00", End: "14:00:00", Weekly: true, Weekday: "friday",
	})
	if errCreate != nil {
		t.Fatalf("create schedule: %v", errCreate)
	}
	if created.Day != "Friday" || created.Start != "11:30:00" || created.Stock != 10 {
		t.Fatalf("unexpected schedule %+v", created)
	}

	job, ok := sched.job(created.ID)
	if !ok {
		t.Fatalf("expected trigger registered for schedule %d", created.ID)
	}
	if !job.spec.Weekly || job.spec.Weekday != time.Friday || job.spec.At != 11*time.Hour+30*time.Minute {
		t.Fatalf("unexpected trigger spec %+v", job.spec)
	}

	job.run()
	var produced []models.Voucher
	if errFind := f.db.Where("schedule_id = ?", created.ID).Find(&produced).Error; errFind != nil {
		t.Fatalf("find produced: %v", errFind)
	}
	if len(produced) != 1 || produced[0].Remaining != 10 || produced[0].Name != "Friday lunch" {
		t.Fatalf("unexpected produced vouchers %+v", produced)
	}
	wantStart := time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC)
	if !produced[0].StartAt.Equal(wantStart) {
		t.Fatalf("expected start %s, got %s", wantStart, produced[0].StartAt)
	}

	f.clock.Set(time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC))
	job.run()
	var count int64
	if errCount := f.db.Model(&models.Voucher{}).Where("schedule_id = ?", created.ID).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected a firing after the end time to be skipped, got %d vouchers", count)
	}
}

func TestIntervalScheduleValidation(t *testing.T) {
	sched := newFakeScheduler()
	f := newFixture(t, 0, WithScheduler(sched))
	ctx := context.Background()

	base := ScheduleInput{Name: "Demo", Discount: "5", Stock: "2", Start: "09:00:00", End: "11:00:00", IntervalMinutes: 1}
	if _, err := f.engine.CreateSchedule(ctx, f.eatery.ID, base); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected end before now to fail, got %v", err)
	}

	zeroStock := base
	zeroStock.Stock = "0"
	zeroStock.End = "13:00:00"
	if _, err := f.engine.CreateSchedule(ctx, f.eatery.ID, zeroStock); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected zero stock to fail, got %v", err)
	}

	valid := base
	valid.End = "13:00:00"
	valid.IntervalMinutes = 5
	created, errCreate := f.engine.CreateSchedule(ctx, f.eatery.ID, valid)
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	if created.Day != "Saturday" || created.Weekly {
		t.Fatalf("expected today's weekday on interval schedule, got %+v", created)
	}
	job, ok := sched.job(created.ID)
	if !ok || job.spec.Weekly || job.spec.Every != 5*time.Minute {
		t.Fatalf("unexpected trigger %+v (%v)", job.spec, ok)
	}

	weeklyBadDay := ScheduleInput{Name: "X", Discount: "5", Stock: "1", Start: "09:00:00", End: "10:00:00", Weekly: true, Weekday: "Someday"}
	if _, err := f.engine.CreateSchedule(ctx, f.eatery.ID, weeklyBadDay); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid day, got %v", err)
	}
}

func TestRemoveScheduleKeepsProducedVouchers(t *testing.T) {
	sched := newFakeScheduler()
	f := newFixture(t, 0, WithScheduler(sched))
	ctx := context.Background()

	created, errCreate := f.engine.CreateSchedule(ctx, f.eatery.ID, ScheduleInput{
		Name: "Tea time", Discount: "10", Stock: "3", Start: "12:30:00", End: "16:00:00", Weekly: true, Weekday: "Saturday",
	})
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	job, _ := sched.job(created.ID)
	job.run()

	if err := f.engine.RemoveSchedule(ctx, f.eatery.ID+1, created.ID); !errors.Is(err, apperr.ErrInvalidReference) {
		t.Fatalf("expected other eatery to be rejected, got %v", err)
	}
	if err := f.engine.RemoveSchedule(ctx, f.eatery.ID, created.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := sched.job(created.ID); ok {
		t.Fatalf("expected trigger cancelled")
	}

	listing, errList := f.engine.ListForEatery(ctx, f.eatery.ID)
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if len(listing.Schedules) != 0 || len(listing.Vouchers) != 1 {
		t.Fatalf("expected voucher kept and schedule gone, got %+v", listing)
	}
}

func TestRemoveScheduleKeepsTriggerWhenDeleteFails(t *testing.T) {
	sched := newFakeScheduler()
	f := newFixture(t, 0, WithScheduler(sched))
	ctx := context.Background()

	created, errCreate := f.engine.CreateSchedule(ctx, f.eatery.ID, ScheduleInput{
		Name: "Brunch", Discount: "15", Stock: "2", Start: "09:00:00", End: "11:00:00", Weekly: true, Weekday: "Sunday",
	})
	if errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	errRegister := f.db.Callback().Delete().Before("gorm:delete").Register("test:fail_schedule_delete", func(tx *gorm.DB) {
		if tx.Statement.Table == "distribution_schedules" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	if errRegister != nil {
		t.Fatalf("register callback: %v", errRegister)
	}

	if err := f.engine.RemoveSchedule(ctx, f.eatery.ID, created.ID); err == nil {
		t.Fatalf("expected remove to fail")
	}
	if _, ok := sched.job(created.ID); !ok {
		t.Fatalf("expected trigger kept while the schedule row survives")
	}
	var rows int64
	if errCount := f.db.Model(&models.DistributionSchedule{}).Where("id = ?", created.ID).Count(&rows).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if rows != 1 {
		t.Fatalf("expected schedule row kept, got %d", rows)
	}
}

func TestRestoreSchedules(t *testing.T) {
	f := newFixture(t, 0, WithScheduler(newFakeScheduler()))
	ctx := context.Background()
	for _, day := range []string{"Monday", "Tuesday"} {
		if _, err := f.engine.CreateSchedule(ctx, f.eatery.ID, ScheduleInput{
			Name: day, Discount: "10", Stock: "1", Start: "10:00:00", End: "11:00:00", Weekly: true, Weekday: day,
		}); err != nil {
			t.Fatalf("create %s: %v", day, err)
		}
	}

	fresh := newFakeScheduler()
	restarted := NewEngine(f.db, f.ledger, WithClock(f.clock.Now), WithScheduler(fresh))
	restored, errRestore := restarted.RestoreSchedules(ctx)
	if errRestore != nil {
		t.Fatalf("restore: %v", errRestore)
	}
	if restored != 2 || len(fresh.jobs) != 2 {
		t.Fatalf("expected 2 restored schedules, got %d (%d jobs)", restored, len(fresh.jobs))
	}
}
