package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupSettingsDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:settings_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	t.Cleanup(func() { Store(time.Time{}, nil) })
	return db
}

func TestSetRefreshesSnapshot(t *testing.T) {
	db := setupSettingsDB(t)
	ctx := context.Background()

	if got := Float(RecommendMinRatingKey, DefaultRecommendMinRating); got != DefaultRecommendMinRating {
		t.Fatalf("expected default before set, got %v", got)
	}
	if errSet := Set(ctx, db, RecommendMinRatingKey, 4.0); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if got := Float(RecommendMinRatingKey, DefaultRecommendMinRating); got != 4.0 {
		t.Fatalf("expected 4.0 after set, got %v", got)
	}
	if errSet := Set(ctx, db, RecommendMinRatingKey, "4.5"); errSet != nil {
		t.Fatalf("overwrite: %v", errSet)
	}
	if got := Float(RecommendMinRatingKey, DefaultRecommendMinRating); got != 4.5 {
		t.Fatalf("expected string value to parse, got %v", got)
	}
	if UpdatedAt().IsZero() {
		t.Fatalf("expected updated timestamp")
	}
}

func TestIntRejectsFractions(t *testing.T) {
	Store(time.Now(), map[string]json.RawMessage{
		VoucherCodeLengthKey:   json.RawMessage(`8`),
		ResetCodeTTLMinutesKey: json.RawMessage(`1.5`),
	})
	t.Cleanup(func() { Store(time.Time{}, nil) })

	if got := Int(VoucherCodeLengthKey, DefaultVoucherCodeLength); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
	if got := Int(ResetCodeTTLMinutesKey, DefaultResetCodeTTLMinutes); got != DefaultResetCodeTTLMinutes {
		t.Fatalf("expected default for fractional value, got %d", got)
	}
}
