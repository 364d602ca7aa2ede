// Package profile reads and edits diner and eatery profiles, eatery menus and
// the public eatery directory.
package profile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/voucher"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the profile service.
type Service struct {
	db       *gorm.DB
	ledger   *loyalty.Ledger
	vouchers *voucher.Engine
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(db *gorm.DB, ledger *loyalty.Ledger, vouchers *voucher.Engine, opts ...Option) *Service {
	s := &Service{db: db, ledger: ledger, vouchers: vouchers, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DinerProfile is a diner's own profile. Points are keyed by eatery id.
type DinerProfile struct {
	ID            uint64         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	Avatar        string         `json:"avatar"`
	RecommendTags []string       `json:"recommend_tags"`
	Visited       []string       `json:"visited"`
	Blacklist     []uint64       `json:"blacklist"`
	Points        map[string]int `json:"points"`
}

// DinerUpdate replaces a diner's editable details.
type DinerUpdate struct {
	Email  string
	Name   string
	Avatar string
}

// DinerDetails returns dinerID's profile.
func (s *Service) DinerDetails(ctx context.Context, dinerID uint64) (DinerProfile, error) {
	var diner models.Diner
	if errFind := s.db.WithContext(ctx).Take(&diner, dinerID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return DinerProfile{}, apperr.Input(apperr.ErrInvalidInput, "Invalid diner id.")
		}
		return DinerProfile{}, wrap("diner details", errFind)
	}
	points, errPoints := s.ledger.Points(ctx, dinerID)
	if errPoints != nil {
		return DinerProfile{}, errPoints
	}
	byEatery := make(map[string]int, len(points))
	for eateryID, p := range points {
		byEatery[strconv.FormatUint(eateryID, 10)] = p
	}
	return DinerProfile{
		ID:            diner.ID,
		Email:         diner.Email,
		Name:          diner.Name,
		Avatar:        diner.Avatar,
		RecommendTags: nonNil(diner.RecommendTags),
		Visited:       nonNil(diner.Visited),
		Blacklist:     nonNil(diner.Blacklist),
		Points:        byEatery,
	}, nil
}

// UpdateDiner replaces dinerID's email, name and avatar.
func (s *Service) UpdateDiner(ctx context.Context, dinerID uint64, in DinerUpdate) error {
	email := strings.TrimSpace(in.Email)
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEmail := checkEmail(tx, email, models.AccountRef{ID: dinerID, Kind: models.KindDiner}); errEmail != nil {
			return errEmail
		}
		res := tx.Model(&models.Diner{}).Where("id = ?", dinerID).Updates(map[string]any{
			"email":  email,
			"name":   strings.TrimSpace(in.Name),
			"avatar": in.Avatar,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Input(apperr.ErrInvalidInput, "Invalid diner id.")
		}
		return nil
	})
	return wrap("update diner", errTx)
}

// BlacklistEatery hides eateryID from dinerID's directory listings.
func (s *Service) BlacklistEatery(ctx context.Context, dinerID, eateryID uint64) error {
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEatery := requireEatery(tx, eateryID); errEatery != nil {
			return errEatery
		}
		var diner models.Diner
		if errFind := tx.Select("id", "blacklist").Take(&diner, dinerID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return apperr.Input(apperr.ErrInvalidInput, "Invalid diner id.")
			}
			return errFind
		}
		if slices.Contains(diner.Blacklist, eateryID) {
			return nil
		}
		blacklist := append(datatypes.JSONSlice[uint64]{}, diner.Blacklist...)
		blacklist = append(blacklist, eateryID)
		return tx.Model(&models.Diner{ID: dinerID}).Update("blacklist", blacklist).Error
	})
	return wrap("blacklist eatery", errTx)
}

func checkEmail(tx *gorm.DB, email string, self models.AccountRef) error {
	if !identity.ValidEmail(email) {
		return apperr.Input(apperr.ErrInvalidInput, "The provided email is not valid")
	}
	taken, errTaken := identity.EmailInUse(tx, email, self)
	if errTaken != nil {
		return errTaken
	}
	if taken {
		return apperr.Input(apperr.ErrInvalidInput, "This email address is already associated with an existing account")
	}
	return nil
}

func requireEatery(tx *gorm.DB, eateryID uint64) error {
	return identity.RequireAccount(tx, models.AccountRef{ID: eateryID, Kind: models.KindEatery}, apperr.ErrInvalidInput)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// wrap leaves classified errors untouched and annotates storage failures.
func wrap(op string, err error) error {
	if err == nil || apperr.KindOf(err) != 0 {
		return err
	}
	return fmt.Errorf("profile: %s: %w", op, err)
}
