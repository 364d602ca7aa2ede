package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/config"
	internaldb "github.com/dinepoint/dinepoint/internal/db"
	"github.com/dinepoint/dinepoint/internal/mail"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type captureSender struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (s *captureSender) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func setupIdentityDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:identity_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

var testJWT = config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}

func TestRegisterAndResolve(t *testing.T) {
	db := setupIdentityDB(t)
	p := NewProvider(db, testJWT)
	ctx := context.Background()

	grant, errRegister := p.RegisterDiner(ctx, DinerRegistration{Email: "kim@example.com", Name: "Kim", Password: "hunter22"})
	if errRegister != nil {
		t.Fatalf("register diner: %v", errRegister)
	}
	if !grant.IsDiner || grant.Token == "" {
		t.Fatalf("unexpected grant %+v", grant)
	}
	ref, errResolve := p.Resolve(ctx, grant.Token)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if ref.ID != grant.AccountID || ref.Kind != models.KindDiner {
		t.Fatalf("unexpected account %+v", ref)
	}

	if _, err := p.RegisterEatery(ctx, EateryRegistration{Email: "kim@example.com", Password: "hunter22", Name: "Kim's"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected email reuse across kinds to fail, got %v", err)
	}
	if _, err := p.RegisterDiner(ctx, DinerRegistration{Email: "not-an-email", Password: "hunter22"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected bad email to fail, got %v", err)
	}
	if _, err := p.RegisterDiner(ctx, DinerRegistration{Email: "lee@example.com", Password: "12345"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected short password to fail, got %v", err)
	}

	if _, err := p.Resolve(ctx, "garbage"); !apperr.IsAccess(err) {
		t.Fatalf("expected access error for garbage token, got %v", err)
	}
	exists, errExists := p.AccountExists(ctx, grant.AccountID, models.KindDiner)
	if errExists != nil || !exists {
		t.Fatalf("expected diner to exist: %v %v", exists, errExists)
	}
	if exists, _ = p.AccountExists(ctx, grant.AccountID, models.KindEatery); exists {
		t.Fatalf("expected no eatery with the diner's id")
	}
	if err := RequireAccount(db, models.AccountRef{ID: grant.AccountID, Kind: models.KindDiner}, apperr.ErrInvalidReference); err != nil {
		t.Fatalf("require diner: %v", err)
	}
	errMissing := RequireAccount(db, models.AccountRef{ID: grant.AccountID, Kind: models.KindEatery}, apperr.ErrInvalidReference)
	if !errors.Is(errMissing, apperr.ErrInvalidReference) || errMissing.Error() != "Invalid eatery id." {
		t.Fatalf("expected invalid eatery reference, got %v", errMissing)
	}
}

func TestRegisterEatery(t *testing.T) {
	db := setupIdentityDB(t)
	p := NewProvider(db, testJWT)
	ctx := context.Background()

	if _, err := p.RegisterEatery(ctx, EateryRegistration{Email: "a@bistro.test", Password: "secret1", Contact: "01234567890"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected long contact to fail, got %v", err)
	}
	grant, errRegister := p.RegisterEatery(ctx, EateryRegistration{
		Email: "b@bistro.test", Password: "secret1", Name: "Bistro", Contact: "0400111222",
		Latitude: "-33.8688197", Longitude: "151.20929551",
	})
	if errRegister != nil {
		t.Fatalf("register eatery: %v", errRegister)
	}
	if grant.IsDiner {
		t.Fatalf("expected eatery grant")
	}

	var eatery models.Eatery
	if errFind := db.Take(&eatery, grant.AccountID).Error; errFind != nil {
		t.Fatalf("load eatery: %v", errFind)
	}
	if eatery.Latitude != -33.86882 || eatery.Longitude != 151.209296 {
		t.Fatalf("expected coordinates rounded to 6 places, got %v %v", eatery.Latitude, eatery.Longitude)
	}
	var cfg models.LoyaltyConfig
	if errFind := db.Where("eatery_id = ?", grant.AccountID).Take(&cfg).Error; errFind != nil {
		t.Fatalf("expected loyalty config created with the eatery: %v", errFind)
	}
	if cfg.Enabled {
		t.Fatalf("expected loyalty program disabled until configured")
	}
}

func TestLoginLogout(t *testing.T) {
	db := setupIdentityDB(t)
	p := NewProvider(db, testJWT)
	ctx := context.Background()

	if _, err := p.RegisterEatery(ctx, EateryRegistration{Email: "hi@cafe.test", Password: "latte123", Name: "Cafe"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := p.Login(ctx, "hi@cafe.test", "wrong-pass"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected bad password to fail, got %v", err)
	}
	if _, err := p.Login(ctx, "nobody@cafe.test", "latte123"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected unknown email to fail, got %v", err)
	}
	grant, errLogin := p.Login(ctx, "hi@cafe.test", "latte123")
	if errLogin != nil {
		t.Fatalf("login: %v", errLogin)
	}
	if grant.IsDiner {
		t.Fatalf("expected eatery login")
	}

	if err := p.Logout(ctx, grant.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := p.Resolve(ctx, grant.Token); !errors.Is(err, apperr.ErrAccessDenied) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	if err := p.Logout(ctx, grant.Token); !errors.Is(err, apperr.ErrAccessDenied) {
		t.Fatalf("expected second logout to fail, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	db := setupIdentityDB(t)
	sender := &captureSender{}
	p := NewProvider(db, testJWT, WithSender(sender))
	ctx := context.Background()

	grant, errRegister := p.RegisterDiner(ctx, DinerRegistration{Email: "max@example.com", Name: "Max", Password: "oldpass"})
	if errRegister != nil {
		t.Fatalf("register: %v", errRegister)
	}
	if err := p.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email should succeed silently: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no mail for unknown email")
	}

	if err := p.RequestPasswordReset(ctx, "max@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "max@example.com" {
		t.Fatalf("expected one reset mail, got %+v", sender.sent)
	}
	if _, err := p.Resolve(ctx, grant.Token); !errors.Is(err, apperr.ErrAccessDenied) {
		t.Fatalf("expected sessions revoked by reset request, got %v", err)
	}

	var reset models.PasswordReset
	if errFind := db.Take(&reset).Error; errFind != nil {
		t.Fatalf("load reset code: %v", errFind)
	}
	late := NewProvider(db, testJWT, WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) }))
	if err := late.ResetPassword(ctx, reset.Code, "newpass"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected expired code to fail, got %v", err)
	}
	if err := p.ResetPassword(ctx, reset.Code, "short"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected short password to fail, got %v", err)
	}
	if err := p.ResetPassword(ctx, reset.Code, "newpass"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if err := p.ResetPassword(ctx, reset.Code, "another"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected used code to fail, got %v", err)
	}
	if _, err := p.Login(ctx, "max@example.com", "newpass"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	db := setupIdentityDB(t)
	p := NewProvider(db, testJWT)
	ctx := context.Background()

	grant, errRegister := p.RegisterDiner(ctx, DinerRegistration{Email: "ana@example.com", Name: "Ana", Password: "first1"})
	if errRegister != nil {
		t.Fatalf("register: %v", errRegister)
	}
	ref := models.AccountRef{ID: grant.AccountID, Kind: models.KindDiner}
	if err := p.ChangePassword(ctx, ref, "wrong1", "second2"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected wrong current password to fail, got %v", err)
	}
	if err := p.ChangePassword(ctx, ref, "first1", "second2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := p.Login(ctx, "ana@example.com", "second2"); err != nil {
		t.Fatalf("login after change: %v", err)
	}
}

func TestRetentionCleanerDeletesExpiredCredentials(t *testing.T) {
	db := setupIdentityDB(t)
	store := NewDBSessionStore(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

	for i, expires := range []time.Time{now.Add(-time.Minute), now.Add(time.Hour)} {
		if err := store.Save(ctx, models.Session{ID: fmt.Sprintf("s%d", i), AccountID: 1, Kind: models.KindDiner, ExpiresAt: expires}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	stale := models.PasswordReset{Code: "stale-code", AccountID: 1, Kind: models.KindDiner, ExpiresAt: now.Add(-time.Hour)}
	if errCreate := db.Create(&stale).Error; errCreate != nil {
		t.Fatalf("seed reset code: %v", errCreate)
	}

	cleaner := NewRetentionCleaner(db)
	cleaner.now = func() time.Time { return now }
	cleaner.batchSize = 1
	if deleted := cleaner.CleanupOnce(ctx); deleted != 2 {
		t.Fatalf("expected one session and one reset code deleted, got %d", deleted)
	}
	if _, err := store.Lookup(ctx, "s0"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session gone, got %v", err)
	}
	if _, err := store.Lookup(ctx, "s1"); err != nil {
		t.Fatalf("expected live session kept: %v", err)
	}
	if err := store.RevokeAll(ctx, models.AccountRef{ID: 1, Kind: models.KindDiner}); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if _, err := store.Lookup(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session revoked, got %v", err)
	}
}
