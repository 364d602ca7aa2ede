package identity

import (
	"errors"
	"fmt"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/models"
	"gorm.io/gorm"
)

// account is the kind-independent view of a diner or eatery row.
type account struct {
	ref      models.AccountRef
	email    string
	name     string
	password string
}

// accountModel returns the table model for kind.
func accountModel(kind models.AccountKind) (any, error) {
	switch kind {
	case models.KindDiner:
		return &models.Diner{}, nil
	case models.KindEatery:
		return &models.Eatery{}, nil
	default:
		return nil, fmt.Errorf("identity: unknown account kind %q", kind)
	}
}

// findAccount loads one account of kind matching query.
func findAccount(tx *gorm.DB, kind models.AccountKind, query string, args ...any) (account, bool, error) {
	var (
		acc     account
		errFind error
	)
	switch kind {
	case models.KindDiner:
		var d models.Diner
		errFind = tx.Select("id", "email", "name", "password").Where(query, args...).Take(&d).Error
		acc = account{ref: models.AccountRef{ID: d.ID, Kind: kind}, email: d.Email, name: d.Name, password: d.Password}
	case models.KindEatery:
		var e models.Eatery
		errFind = tx.Select("id", "email", "name", "password").Where(query, args...).Take(&e).Error
		acc = account{ref: models.AccountRef{ID: e.ID, Kind: kind}, email: e.Email, name: e.Name, password: e.Password}
	default:
		return account{}, false, fmt.Errorf("identity: unknown account kind %q", kind)
	}
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return account{}, false, nil
	}
	if errFind != nil {
		return account{}, false, errFind
	}
	return acc, true, nil
}

// findByEmail looks the email up among diners first, then eateries.
func findByEmail(tx *gorm.DB, email string) (account, bool, error) {
	for _, kind := range []models.AccountKind{models.KindDiner, models.KindEatery} {
		acc, found, err := findAccount(tx, kind, "email = ?", email)
		if err != nil || found {
			return acc, found, err
		}
	}
	return account{}, false, nil
}

func setPassword(tx *gorm.DB, ref models.AccountRef, hash string) error {
	model, errModel := accountModel(ref.Kind)
	if errModel != nil {
		return errModel
	}
	return tx.Model(model).Where("id = ?", ref.ID).Update("password", hash).Error
}

func accountExists(tx *gorm.DB, ref models.AccountRef) (bool, error) {
	model, errModel := accountModel(ref.Kind)
	if errModel != nil {
		return false, errModel
	}
	var count int64
	if errCount := tx.Model(model).Where("id = ?", ref.ID).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// RequireAccount fails with an input error carrying reason when ref names no
// account. It runs on tx so callers can check inside their own transaction.
func RequireAccount(tx *gorm.DB, ref models.AccountRef, reason error) error {
	exists, err := accountExists(tx, ref)
	if err != nil {
		return fmt.Errorf("identity: lookup %s: %w", ref.Kind, err)
	}
	if !exists {
		return apperr.Input(reason, "Invalid %s id.", ref.Kind)
	}
	return nil
}

// ValidEmail reports whether email is well formed.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// EmailInUse reports whether an account other than except already uses email.
func EmailInUse(tx *gorm.DB, email string, except models.AccountRef) (bool, error) {
	acc, found, err := findByEmail(tx, email)
	if err != nil || !found {
		return false, err
	}
	return acc.ref != except, nil
}
