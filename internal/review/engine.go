// Package review implements eatery review threads: top-level reviews, nested
// replies with bounded depth, edits, and deletes that tombstone nodes with
// children and compact tombstoned ancestors once they lose their last child.
package review

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/recommend"
	"github.com/dinepoint/dinepoint/internal/settings"
	"github.com/dinepoint/dinepoint/internal/util"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxDepth is the deepest reply level below a top-level review.
const MaxDepth = 5

// Engine is the review thread engine.
type Engine struct {
	db     *gorm.DB
	ledger *loyalty.Ledger
	now    func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(db *gorm.DB, ledger *loyalty.Ledger, opts ...Option) *Engine {
	e := &Engine{db: db, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReviewInput is a new top-level review. PostedAt is DD-MM-YYYY HH:MM:SS and
// defaults to now.
type ReviewInput struct {
	Rating      string
	Title       string
	Description string
	PostedAt    string
}

// ReplyInput is a new reply.
type ReplyInput struct {
	Description string
	PostedAt    string
}

// EditInput replaces the editable fields of a review or reply.
type EditInput struct {
	Rating      string
	Title       string
	Description string
}

// Create posts a top-level review by author on eateryID.
func (e *Engine) Create(ctx context.Context, eateryID uint64, author models.AccountRef, in ReviewInput) (uint64, error) {
	rating, given, errRating := parseRating(in.Rating)
	if errRating != nil {
		return 0, errRating
	}
	if rating == nil {
		return 0, apperr.Input(apperr.ErrInvalidInput, "Invalid rating.")
	}
	postedAt, errPosted := e.postedAt(in.PostedAt)
	if errPosted != nil {
		return 0, errPosted
	}

	row := models.Review{
		EateryID:    eateryID,
		AuthorID:    author.ID,
		AuthorKind:  author.Kind,
		Rating:      rating,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		PostedAt:    postedAt,
	}
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		eatery, errEatery := loadEatery(tx, eateryID)
		if errEatery != nil {
			return errEatery
		}
		if author.IsDiner() {
			first, errMark := markReviewed(tx, eateryID, author.ID)
			if errMark != nil {
				return errMark
			}
			if first {
				if errInc := e.ledger.Increment(ctx, tx, author.ID, eateryID); errInc != nil {
					return errInc
				}
			}
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}
		if !author.IsDiner() {
			return nil
		}
		withTags := given >= settings.Float(settings.RecommendMinRatingKey, settings.DefaultRecommendMinRating)
		return recommend.Record(ctx, tx, author.ID, eatery, withTags)
	})
	if errTx != nil {
		return 0, wrap("create", errTx)
	}
	log.WithFields(log.Fields{"review_id": row.ID, "eatery_id": eateryID}).Debug("review: created")
	return row.ID, nil
}

// Reply posts a reply by author to parentID within eateryID's thread.
func (e *Engine) Reply(ctx context.Context, eateryID uint64, author models.AccountRef, parentID uint64, in ReplyInput) (uint64, error) {
	postedAt, errPosted := e.postedAt(in.PostedAt)
	if errPosted != nil {
		return 0, errPosted
	}
	row := models.Review{
		EateryID:    eateryID,
		ParentID:    &parentID,
		AuthorID:    author.ID,
		AuthorKind:  author.Kind,
		Description: strings.TrimSpace(in.Description),
		PostedAt:    postedAt,
	}
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errEatery := loadEatery(tx, eateryID); errEatery != nil {
			return errEatery
		}
		parent, errParent := loadReview(tx, parentID)
		if errParent != nil {
			return errParent
		}
		if parent.EateryID != eateryID {
			return apperr.Input(apperr.ErrInvalidReference, "Review does not exist.")
		}
		if errDepth := checkDepth(tx, parent); errDepth != nil {
			return errDepth
		}
		return tx.Create(&row).Error
	})
	if errTx != nil {
		return 0, wrap("reply", errTx)
	}
	return row.ID, nil
}

// checkDepth walks from target towards the root and fails once MaxDepth hops
// have been taken, since a reply to target would then exceed MaxDepth.
func checkDepth(tx *gorm.DB, target models.Review) error {
	cur := target
	for hops := 1; cur.ParentID != nil; hops++ {
		if hops >= MaxDepth {
			return apperr.Input(apperr.ErrTooDeep, "Too many nested replies.")
		}
		next, errLoad := loadReview(tx, *cur.ParentID)
		if errLoad != nil {
			return errLoad
		}
		cur = next
	}
	return nil
}

// Edit replaces rating, title and description of reviewID and marks it edited.
// Replies may carry an empty rating; top-level reviews may not.
func (e *Engine) Edit(ctx context.Context, reviewID uint64, author models.AccountRef, in EditInput) error {
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errOwn := loadOwned(tx, reviewID, author)
		if errOwn != nil {
			return errOwn
		}
		if row.Deleted {
			return apperr.Input(apperr.ErrInvalidReference, "Invalid review id.")
		}
		rating, _, errRating := parseRating(in.Rating)
		if errRating != nil {
			return errRating
		}
		if rating == nil && row.ParentID == nil {
			return apperr.Input(apperr.ErrInvalidInput, "Invalid rating.")
		}
		return tx.Model(&models.Review{}).Where("id = ?", row.ID).Updates(map[string]any{
			"rating":      rating,
			"title":       strings.TrimSpace(in.Title),
			"description": strings.TrimSpace(in.Description),
			"edited":      true,
		}).Error
	})
	return wrap("edit", errTx)
}

// Delete removes reviewID. A node with replies becomes a tombstone. A leaf is
// removed and each tombstoned ancestor left without children goes with it.
func (e *Engine) Delete(ctx context.Context, reviewID uint64, author models.AccountRef) error {
	removed := 0
	errTx := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errOwn := loadOwned(tx, reviewID, author)
		if errOwn != nil {
			return errOwn
		}
		children, errChildren := hasChildren(tx, row.ID)
		if errChildren != nil {
			return errChildren
		}
		if children {
			return tx.Model(&models.Review{}).Where("id = ?", row.ID).Update("deleted", true).Error
		}

		cur := row
		for {
			if errDelete := tx.Delete(&models.Review{}, cur.ID).Error; errDelete != nil {
				return errDelete
			}
			removed++
			if cur.ParentID == nil {
				return nil
			}
			parent, errParent := loadReview(tx, *cur.ParentID)
			if errParent != nil {
				return errParent
			}
			if !parent.Deleted {
				return nil
			}
			more, errMore := hasChildren(tx, parent.ID)
			if errMore != nil {
				return errMore
			}
			if more {
				return nil
			}
			cur = parent
		}
	})
	if errTx != nil {
		return wrap("delete", errTx)
	}
	if removed > 1 {
		log.WithFields(log.Fields{"review_id": reviewID, "removed": removed}).Debug("review: compacted tombstones")
	}
	return nil
}

func (e *Engine) postedAt(raw string) (time.Time, error) {
	now := e.now()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, nil
	}
	t, err := util.ParseDateTime(raw, now.Location())
	if err != nil {
		return time.Time{}, apperr.Input(apperr.ErrInvalidInput, "Invalid timestamp.")
	}
	return t, nil
}

// parseRating returns nil for an empty rating. Otherwise it returns the
// rating kept to one decimal place, which must lie in (0, 5], and the value
// as given. Thresholds compare against the given value.
func parseRating(raw string) (*float64, float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, 0, nil
	}
	given, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(given) || given <= 0 || given > 5 {
		return nil, 0, apperr.Input(apperr.ErrInvalidInput, "Invalid rating.")
	}
	stored := math.Round(given*10) / 10
	if stored <= 0 {
		return nil, 0, apperr.Input(apperr.ErrInvalidInput, "Invalid rating.")
	}
	return &stored, given, nil
}

func loadEatery(tx *gorm.DB, eateryID uint64) (models.Eatery, error) {
	var eatery models.Eatery
	if errFind := tx.Select("id", "name", "tags").Take(&eatery, eateryID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Eatery{}, apperr.Input(apperr.ErrInvalidInput, "Invalid eatery id.")
		}
		return models.Eatery{}, errFind
	}
	return eatery, nil
}

func loadReview(tx *gorm.DB, reviewID uint64) (models.Review, error) {
	var row models.Review
	if errFind := tx.Take(&row, reviewID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Review{}, apperr.Input(apperr.ErrInvalidReference, "Review does not exist.")
		}
		return models.Review{}, errFind
	}
	return row, nil
}

func loadOwned(tx *gorm.DB, reviewID uint64, author models.AccountRef) (models.Review, error) {
	row, errLoad := loadReview(tx, reviewID)
	if errors.Is(errLoad, apperr.ErrInvalidReference) {
		return models.Review{}, apperr.Input(apperr.ErrInvalidReference, "Invalid review id.")
	}
	if errLoad != nil {
		return models.Review{}, errLoad
	}
	if row.AuthorID != author.ID || row.AuthorKind != author.Kind {
		return models.Review{}, apperr.Access(apperr.ErrForbidden, "Invalid user id.")
	}
	return row, nil
}

func hasChildren(tx *gorm.DB, reviewID uint64) (bool, error) {
	var count int64
	if errCount := tx.Model(&models.Review{}).Where("parent_id = ?", reviewID).Limit(1).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// markReviewed records dinerID in eateryID's reviewer set and reports whether
// this was the diner's first review there.
func markReviewed(tx *gorm.DB, eateryID, dinerID uint64) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.EateryReviewer{EateryID: eateryID, DinerID: dinerID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// wrap leaves classified errors untouched and annotates storage failures.
func wrap(op string, err error) error {
	if err == nil || apperr.KindOf(err) != 0 {
		return err
	}
	return fmt.Errorf("review: %s: %w", op, err)
}
