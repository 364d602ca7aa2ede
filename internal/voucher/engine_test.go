package voucher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	internaldb "github.com/dinepoint/dinepoint/internal/db"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/util"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	db     *gorm.DB
	clock  *testClock
	ledger *loyalty.Ledger
	engine *Engine
	eatery models.Eatery
	diners []models.Diner
}

func setupVoucherDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:voucher_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errSQL := db.DB()
	if errSQL != nil {
		t.Fatalf("sql db: %v", errSQL)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := internaldb.Migrate(db); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func newFixture(t *testing.T, dinerCount int, opts ...Option) *fixture {
	t.Helper()
	db := setupVoucherDB(t)
	clock := &testClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}

	eatery := models.Eatery{Email: "owner@noodles.test", Password: "x", Name: "Noodle Bar", Tags: []string{"vegan", "cheap"}}
	if errCreate := db.Create(&eatery).Error; errCreate != nil {
		t.Fatalf("create eatery: %v", errCreate)
	}
	cfg := models.LoyaltyConfig{EateryID: eatery.ID, Enabled: true, RewardType: "free item", Item: "bao", PointGoal: 3}
	if errCreate := db.Create(&cfg).Error; errCreate != nil {
		t.Fatalf("create loyalty config: %v", errCreate)
	}
	diners := make([]models.Diner, 0, dinerCount)
	for i := 0; i < dinerCount; i++ {
		d := models.Diner{Email: fmt.Sprintf("diner%d@example.com", i), Password: "x", Name: fmt.Sprintf("Diner %d", i)}
		if errCreate := db.Create(&d).Error; errCreate != nil {
			t.Fatalf("create diner: %v", errCreate)
		}
		diners = append(diners, d)
	}

	ledger := loyalty.NewLedger(db)
	engine := NewEngine(db, ledger, append([]Option{WithClock(clock.Now)}, opts...)...)
	return &fixture{db: db, clock: clock, ledger: ledger, engine: engine, eatery: eatery, diners: diners}
}

func (f *fixture) createVoucher(t *testing.T, stock string, start, end time.Time) View {
	t.Helper()
	v, err := f.engine.CreateVoucher(context.Background(), f.eatery.ID, VoucherInput{
		Name:        "Lunch deal",
		Description: "20% off noodles",
		Discount:    "20",
		Stock:       stock,
		Start:       util.FormatDateTime(start, time.UTC),
		End:         util.FormatDateTime(end, time.UTC),
	})
	if err != nil {
		t.Fatalf("create voucher: %v", err)
	}
	return v
}

func TestCreateVoucherValidatesStockAndEnd(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	now := f.clock.Now()
	base := VoucherInput{Name: "Deal", Discount: "10", Start: util.FormatDateTime(now, time.UTC), End: util.FormatDateTime(now.Add(time.Hour), time.UTC)}

	for _, stock := range []string{"0", "abc", "", "-3"} {
		in := base
		in.Stock = stock
		if _, err := f.engine.CreateVoucher(ctx, f.eatery.ID, in); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Fatalf("stock %q: expected invalid input, got %v", stock, err)
		}
	}

	expired := base
	expired.Stock = "5"
	expired.End = util.FormatDateTime(now, time.UTC)
	if _, err := f.engine.CreateVoucher(ctx, f.eatery.ID, expired); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for end == now, got %v", err)
	}

	badDiscount := base
	badDiscount.Stock = "5"
	badDiscount.Discount = "150"
	if _, err := f.engine.CreateVoucher(ctx, f.eatery.ID, badDiscount); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for discount, got %v", err)
	}

	ok := base
	ok.Stock = "7"
	v, err := f.engine.CreateVoucher(ctx, f.eatery.ID, ok)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Remaining != 7 || v.Discount.String() != "10" {
		t.Fatalf("unexpected voucher %+v", v)
	}
}

func TestCreateVoucherAcceptsBareTimes(t *testing.T) {
	f := newFixture(t, 0)
	v, err := f.engine.CreateVoucher(context.Background(), f.eatery.ID, VoucherInput{
		Name: "Happy hour", Discount: "15", Stock: "3", Start: "11:00:00", End: "18:30:00",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.Start != "14-03-2026 11:00:00" || v.End != "14-03-2026 18:30:00" {
		t.Fatalf("expected today's date on bare times, got %s - %s", v.Start, v.End)
	}
}

func TestLastUnitScenario(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	now := f.clock.Now()
	v := f.createVoucher(t, "1", now.Add(-time.Hour), now.Add(time.Hour))
	a, b := f.diners[0], f.diners[1]

	code, errA := f.engine.Acquire(ctx, a.ID, v.ID)
	if errA != nil {
		t.Fatalf("diner A acquire: %v", errA)
	}
	if _, errB := f.engine.Acquire(ctx, b.ID, v.ID); !errors.Is(errB, apperr.ErrInvalidOrExpired) {
		t.Fatalf("expected invalid or expired for diner B, got %v", errB)
	}

	var stored models.Voucher
	if errFind := f.db.First(&stored, v.ID).Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if stored.Remaining != 0 {
		t.Fatalf("expected stock 0, got %d", stored.Remaining)
	}

	redemption, errRedeem := f.engine.Redeem(ctx, f.eatery.ID, code.Code)
	if errRedeem != nil {
		t.Fatalf("redeem: %v", errRedeem)
	}
	if redemption.Kind != KindPrimary || redemption.Name != "Lunch deal" || redemption.Description != "20% off noodles" || redemption.Discount == nil || redemption.Discount.String() != "20" {
		t.Fatalf("unexpected redemption %+v", redemption)
	}
	if _, errAgain := f.engine.Redeem(ctx, f.eatery.ID, code.Code); !errors.Is(errAgain, apperr.ErrInvalidCode) {
		t.Fatalf("expected invalid code on second redemption, got %v", errAgain)
	}

	points, errPoints := f.ledger.Points(ctx, a.ID)
	if errPoints != nil {
		t.Fatalf("points: %v", errPoints)
	}
	if points[f.eatery.ID] != 1 {
		t.Fatalf("expected redemption to award one point, got %d", points[f.eatery.ID])
	}
}

func TestAcquireTwiceFailsAlreadyObtained(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	now := f.clock.Now()
	v := f.createVoucher(t, "5", now, now.Add(time.Hour))
	diner := f.diners[0]

	if _, err := f.engine.Acquire(ctx, diner.ID, v.ID); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := f.engine.Acquire(ctx, diner.ID, v.ID); !errors.Is(err, apperr.ErrAlreadyObtained) {
		t.Fatalf("expected already obtained, got %v", err)
	}

	var stored models.Voucher
	if errFind := f.db.First(&stored, v.ID).Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if stored.Remaining != 4 {
		t.Fatalf("expected one unit consumed, got remaining %d", stored.Remaining)
	}

	var reloaded models.Diner
	if errFind := f.db.First(&reloaded, diner.ID).Error; errFind != nil {
		t.Fatalf("reload diner: %v", errFind)
	}
	if fmt.Sprint([]string(reloaded.RecommendTags)) != "[vegan cheap]" || fmt.Sprint([]string(reloaded.Visited)) != "[Noodle Bar]" {
		t.Fatalf("unexpected diner lists tags=%v visited=%v", reloaded.RecommendTags, reloaded.Visited)
	}
}

func TestAcquireUnknownOrExpiredVoucher(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	now := f.clock.Now()
	v := f.createVoucher(t, "5", now, now.Add(time.Hour))

	if _, err := f.engine.Acquire(ctx, f.diners[0].ID, v.ID+100); !errors.Is(err, apperr.ErrInvalidOrExpired) {
		t.Fatalf("expected invalid or expired for unknown id, got %v", err)
	}
	f.clock.Set(now.Add(time.Hour))
	if _, err := f.engine.Acquire(ctx, f.diners[0].ID, v.ID); !errors.Is(err, apperr.ErrInvalidOrExpired) {
		t.Fatalf("expected invalid or expired at end, got %v", err)
	}
}

func TestConcurrentAcquireNeverOversells(t *testing.T) {
	const stock, contenders = 3, 10
	f := newFixture(t, contenders)
	now := f.clock.Now()
	v := f.createVoucher(t, fmt.Sprint(stock), now, now.Add(time.Hour))

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for _, d := range f.diners {
		wg.Add(1)
		go func(dinerID uint64) {
			defer wg.Done()
			_, err := f.engine.Acquire(context.Background(), dinerID, v.ID)
			results <- err
		}(d.ID)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperr.ErrInvalidOrExpired):
		default:
			t.Fatalf("unexpected acquire error: %v", err)
		}
	}
	if succeeded != stock {
		t.Fatalf("expected %d successful acquisitions, got %d", stock, succeeded)
	}
	var stored models.Voucher
	if errFind := f.db.First(&stored, v.ID).Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if stored.Remaining != 0 {
		t.Fatalf("expected stock 0, got %d", stored.Remaining)
	}
}

func TestTakeUnitNeverGoesBelowZero(t *testing.T) {
	f := newFixture(t, 1)
	now := f.clock.Now()
	v := f.createVoucher(t, "1", now, now.Add(time.Hour))

	taken, errTake := takeUnit(f.db, v.ID)
	if errTake != nil || !taken {
		t.Fatalf("expected last unit taken: %v %v", taken, errTake)
	}
	// A second writer that read stock 1 before the first commit lands here.
	taken, errTake = takeUnit(f.db, v.ID)
	if errTake != nil {
		t.Fatalf("take drained voucher: %v", errTake)
	}
	if taken {
		t.Fatalf("expected no unit taken from a drained voucher")
	}
	var stored models.Voucher
	if errFind := f.db.First(&stored, v.ID).Error; errFind != nil {
		t.Fatalf("reload voucher: %v", errFind)
	}
	if stored.Remaining != 0 {
		t.Fatalf("expected stock 0, got %d", stored.Remaining)
	}
}

func TestRedeemWindowIsHalfOpen(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	now := f.clock.Now()
	start, end := now.Add(time.Hour), now.Add(2*time.Hour)
	v := f.createVoucher(t, "2", start, end)

	first, errFirst := f.engine.Acquire(ctx, f.diners[0].ID, v.ID)
	if errFirst != nil {
		t.Fatalf("acquire: %v", errFirst)
	}
	second, errSecond := f.engine.Acquire(ctx, f.diners[1].ID, v.ID)
	if errSecond != nil {
		t.Fatalf("acquire: %v", errSecond)
	}

	if _, err := f.engine.Redeem(ctx, f.eatery.ID, first.Code); !errors.Is(err, apperr.ErrOutOfWindow) {
		t.Fatalf("expected out of window before start, got %v", err)
	}
	f.clock.Set(start)
	if _, err := f.engine.Redeem(ctx, f.eatery.ID, first.Code); err != nil {
		t.Fatalf("expected redemption at start to succeed: %v", err)
	}
	f.clock.Set(end)
	if _, err := f.engine.Redeem(ctx, f.eatery.ID, second.Code); !errors.Is(err, apperr.ErrOutOfWindow) {
		t.Fatalf("expected out of window at end, got %v", err)
	}
}

func TestRedeemIsScopedToEateryAndFallsBackToLoyalty(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	now := f.clock.Now()
	v := f.createVoucher(t, "2", now, now.Add(time.Hour))
	diner := f.diners[0]

	other := models.Eatery{Email: "other@example.com", Password: "x", Name: "Other"}
	if errCreate := f.db.Create(&other).Error; errCreate != nil {
		t.Fatalf("create other eatery: %v", errCreate)
	}
	code, errAcquire := f.engine.Acquire(ctx, diner.ID, v.ID)
	if errAcquire != nil {
		t.Fatalf("acquire: %v", errAcquire)
	}
	if _, err := f.engine.Redeem(ctx, other.ID, code.Code); !errors.Is(err, apperr.ErrInvalidCode) {
		t.Fatalf("expected invalid code at another eatery, got %v", err)
	}

	reward, errObtain := f.ledger.ObtainVoucher(ctx, diner.ID, f.eatery.ID)
	if errObtain != nil {
		t.Fatalf("obtain loyalty voucher: %v", errObtain)
	}
	redemption, errRedeem := f.engine.Redeem(ctx, f.eatery.ID, reward.Code)
	if errRedeem != nil {
		t.Fatalf("redeem loyalty code: %v", errRedeem)
	}
	if redemption.Kind != KindLoyalty || redemption.RewardType != "free item" || redemption.Item != "bao" {
		t.Fatalf("unexpected loyalty redemption %+v", redemption)
	}
	if _, err := f.engine.Redeem(ctx, f.eatery.ID, reward.Code); !errors.Is(err, apperr.ErrInvalidCode) {
		t.Fatalf("expected invalid code after loyalty redemption, got %v", err)
	}
	if _, err := f.engine.Redeem(ctx, f.eatery.ID, "   "); !errors.Is(err, apperr.ErrInvalidCode) {
		t.Fatalf("expected invalid code for blank input, got %v", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	now := f.clock.Now()
	soldOut := f.createVoucher(t, "1", now, now.Add(time.Hour))
	open := f.createVoucher(t, "4", now, now.Add(time.Hour))

	if _, err := f.engine.Acquire(ctx, f.diners[0].ID, soldOut.ID); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	listing, errList := f.engine.ListForEatery(ctx, f.eatery.ID)
	if errList != nil {
		t.Fatalf("list for eatery: %v", errList)
	}
	if len(listing.Vouchers) != 1 || listing.Vouchers[0].ID != open.ID {
		t.Fatalf("expected only vouchers with stock, got %+v", listing.Vouchers)
	}

	held, errHeld := f.engine.ListForDiner(ctx, f.diners[0].ID)
	if errHeld != nil {
		t.Fatalf("list for diner: %v", errHeld)
	}
	if len(held) != 1 || held[0].ID != soldOut.ID || held[0].EateryName != "Noodle Bar" || held[0].Code == "" {
		t.Fatalf("unexpected held vouchers %+v", held)
	}
}
