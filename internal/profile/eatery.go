package profile

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/dinepoint/dinepoint/internal/apperr"
	internaldb "github.com/dinepoint/dinepoint/internal/db"
	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/review"
	"github.com/dinepoint/dinepoint/internal/voucher"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxContactLength = 10

// maxPrice is the first price with more than five integer digits.
var maxPrice = decimal.NewFromInt(100000)

// EateryUpdate replaces an eatery's editable details.
type EateryUpdate struct {
	Email       string
	Name        string
	Description string
	Contact     string
	Address     string
	Avatar      string
	Images      []string
	Pricing     string
	Cuisine     string
	Tags        []string
	Latitude    string
	Longitude   string
}

// UpdateEatery replaces eateryID's public details.
func (s *Service) UpdateEatery(ctx context.Context, eateryID uint64, in EateryUpdate) error {
	email := strings.TrimSpace(in.Email)
	contact := strings.TrimSpace(in.Contact)
	if len(contact) > maxContactLength {
		return apperr.Input(apperr.ErrInvalidInput, "Phone number is too long")
	}
	lat, errLat := identity.ParseCoordinate(in.Latitude)
	if errLat != nil {
		return errLat
	}
	lng, errLng := identity.ParseCoordinate(in.Longitude)
	if errLng != nil {
		return errLng
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEatery := requireEatery(tx, eateryID); errEatery != nil {
			return errEatery
		}
		if errEmail := checkEmail(tx, email, models.AccountRef{ID: eateryID, Kind: models.KindEatery}); errEmail != nil {
			return errEmail
		}
		return tx.Model(&models.Eatery{}).Where("id = ?", eateryID).Updates(map[string]any{
			"email":       email,
			"name":        strings.TrimSpace(in.Name),
			"description": strings.TrimSpace(in.Description),
			"contact":     contact,
			"address":     strings.TrimSpace(in.Address),
			"avatar":      in.Avatar,
			"images":      datatypes.JSONSlice[string](nonNil(in.Images)),
			"pricing":     strings.TrimSpace(in.Pricing),
			"cuisine":     strings.TrimSpace(in.Cuisine),
			"tags":        datatypes.JSONSlice[string](cleanTags(in.Tags)),
			"latitude":    lat,
			"longitude":   lng,
		}).Error
	})
	return wrap("update eatery", errTx)
}

// MenuItem is one priced dish.
type MenuItem struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Vegan      bool            `json:"vegan"`
	GlutenFree bool            `json:"gluten_free"`
}

// MenuCategory groups dishes under a heading. A category may be empty.
type MenuCategory struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// MenuItemInput is a dish as submitted; Price is the textual amount.
type MenuItemInput struct {
	Name       string
	Price      string
	Vegan      bool
	GlutenFree bool
}

// MenuCategoryInput is a category as submitted.
type MenuCategoryInput struct {
	Name  string
	Items []MenuItemInput
}

// UpdateMenu replaces eateryID's menu. Prices are rounded to cents and must be
// non-negative with at most five integer digits.
func (s *Service) UpdateMenu(ctx context.Context, eateryID uint64, in []MenuCategoryInput) error {
	menu := make([]MenuCategory, 0, len(in))
	for _, cat := range in {
		out := MenuCategory{Name: strings.TrimSpace(cat.Name), Items: make([]MenuItem, 0, len(cat.Items))}
		for _, item := range cat.Items {
			price, errPrice := decimal.NewFromString(strings.TrimSpace(item.Price))
			if errPrice != nil {
				return apperr.Input(apperr.ErrInvalidInput, "Invalid price")
			}
			price = price.Round(2)
			if price.IsNegative() || price.GreaterThanOrEqual(maxPrice) {
				return apperr.Input(apperr.ErrInvalidInput, "Invalid price")
			}
			out.Items = append(out.Items, MenuItem{
				Name:       strings.TrimSpace(item.Name),
				Price:      price,
				Vegan:      item.Vegan,
				GlutenFree: item.GlutenFree,
			})
		}
		menu = append(menu, out)
	}
	payload, errMarshal := json.Marshal(menu)
	if errMarshal != nil {
		return wrap("update menu", errMarshal)
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errEatery := requireEatery(tx, eateryID); errEatery != nil {
			return errEatery
		}
		return tx.Model(&models.Eatery{}).Where("id = ?", eateryID).Update("menu", datatypes.JSON(payload)).Error
	})
	return wrap("update menu", errTx)
}

// Menu returns eateryID's menu in the order it was saved.
func (s *Service) Menu(ctx context.Context, eateryID uint64) ([]MenuCategory, error) {
	var eatery models.Eatery
	if errFind := s.db.WithContext(ctx).Select("id", "menu").Take(&eatery, eateryID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apperr.Input(apperr.ErrInvalidInput, "Invalid eatery id.")
		}
		return nil, wrap("menu", errFind)
	}
	menu := []MenuCategory{}
	if len(eatery.Menu) == 0 {
		return menu, nil
	}
	if errUnmarshal := json.Unmarshal(eatery.Menu, &menu); errUnmarshal != nil {
		return nil, wrap("menu", errUnmarshal)
	}
	return menu, nil
}

// EateryProfile is the public detail page of an eatery.
type EateryProfile struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Address     string          `json:"address"`
	Contact     string          `json:"phone_number"`
	Description string          `json:"description"`
	Avatar      string          `json:"avatar"`
	Images      []string        `json:"images"`
	Pricing     string          `json:"pricing"`
	Cuisine     string          `json:"cuisine"`
	Tags        []string        `json:"tags"`
	Latitude    float64         `json:"latitude"`
	Longitude   float64         `json:"longitude"`
	Rating      float64         `json:"rating"`
	Vouchers    []voucher.View  `json:"vouchers"`
	Loyalty     loyalty.Program `json:"loyalty_system"`
	Reviewers   int64           `json:"num_reviewers"`
}

// EateryDetails returns eateryID's public profile with its rating, vouchers
// in stock and loyalty program.
func (s *Service) EateryDetails(ctx context.Context, eateryID uint64) (EateryProfile, error) {
	db := s.db.WithContext(ctx)
	var eatery models.Eatery
	if errFind := db.Take(&eatery, eateryID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return EateryProfile{}, apperr.Input(apperr.ErrInvalidInput, "Invalid eatery id.")
		}
		return EateryProfile{}, wrap("eatery details", errFind)
	}
	rating, errRating := review.AverageRating(ctx, s.db, eateryID)
	if errRating != nil {
		return EateryProfile{}, errRating
	}
	listing, errListing := s.vouchers.ListForEatery(ctx, eateryID)
	if errListing != nil {
		return EateryProfile{}, errListing
	}
	cfg, errCfg := s.ledger.Config(ctx, eateryID)
	if errCfg != nil {
		return EateryProfile{}, errCfg
	}
	var reviewers int64
	if errCount := db.Model(&models.EateryReviewer{}).Where("eatery_id = ?", eateryID).Count(&reviewers).Error; errCount != nil {
		return EateryProfile{}, wrap("eatery details", errCount)
	}

	return EateryProfile{
		ID:          eatery.ID,
		Name:        eatery.Name,
		Email:       eatery.Email,
		Address:     eatery.Address,
		Contact:     eatery.Contact,
		Description: eatery.Description,
		Avatar:      eatery.Avatar,
		Images:      nonNil(eatery.Images),
		Pricing:     eatery.Pricing,
		Cuisine:     eatery.Cuisine,
		Tags:        nonNil(eatery.Tags),
		Latitude:    eatery.Latitude,
		Longitude:   eatery.Longitude,
		Rating:      rating,
		Vouchers:    listing.Vouchers,
		Loyalty:     loyalty.ProgramOf(cfg),
		Reviewers:   reviewers,
	}, nil
}

// Filter narrows the eatery directory. Query matches eatery names, Tag must be
// one of the eatery's tags and a diner viewer does not see eateries they have
// blacklisted.
type Filter struct {
	Query  string
	Tag    string
	Viewer models.AccountRef
}

// EaterySummary is one row of the eatery directory.
type EaterySummary struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Address     string   `json:"address"`
	Contact     string   `json:"phone_number"`
	Description string   `json:"description"`
	Avatar      string   `json:"avatar"`
	Images      []string `json:"images"`
	Pricing     string   `json:"pricing"`
	Tags        []string `json:"tags"`
	Rating      float64  `json:"rating"`
	Reviews     int64    `json:"num_reviews"`
	Vouchers    int64    `json:"num_vouchers"`
}

// ListEateries returns the eatery directory with review counts, ratings and
// the number of vouchers still available.
func (s *Service) ListEateries(ctx context.Context, f Filter) ([]EaterySummary, error) {
	db := s.db.WithContext(ctx)
	q := db.Model(&models.Eatery{}).Order("id ASC")
	if term := strings.TrimSpace(f.Query); term != "" {
		q = q.Where(internaldb.CaseInsensitiveLikeExpr(db, "name"), internaldb.ContainsPattern(db, term))
	}
	var eateries []models.Eatery
	if errFind := q.Find(&eateries).Error; errFind != nil {
		return nil, wrap("list eateries", errFind)
	}

	var hidden []uint64
	if f.Viewer.IsDiner() {
		var diner models.Diner
		errDiner := db.Select("id", "blacklist").Take(&diner, f.Viewer.ID).Error
		if errDiner != nil && !errors.Is(errDiner, gorm.ErrRecordNotFound) {
			return nil, wrap("list eateries", errDiner)
		}
		hidden = diner.Blacklist
	}
	tag := strings.ToLower(strings.TrimSpace(f.Tag))
	kept := eateries[:0]
	ids := make([]uint64, 0, len(eateries))
	for _, e := range eateries {
		if slices.Contains(hidden, e.ID) {
			continue
		}
		if tag != "" && !slices.ContainsFunc(e.Tags, func(t string) bool { return strings.ToLower(t) == tag }) {
			continue
		}
		kept = append(kept, e)
		ids = append(ids, e.ID)
	}

	ratings, errRatings := review.AverageRatings(ctx, s.db, ids)
	if errRatings != nil {
		return nil, errRatings
	}
	reviewCounts, errReviews := countPerEatery(ids,
		db.Model(&models.Review{}).Select("eatery_id, COUNT(*) AS total").
			Where("parent_id IS NULL AND deleted = ?", false))
	if errReviews != nil {
		return nil, errReviews
	}
	voucherCounts, errVouchers := countPerEatery(ids,
		db.Model(&models.Voucher{}).Select("eatery_id, SUM(remaining) AS total").
			Where("remaining > 0 AND end_at > ?", s.now()))
	if errVouchers != nil {
		return nil, errVouchers
	}

	out := make([]EaterySummary, 0, len(kept))
	for _, e := range kept {
		out = append(out, EaterySummary{
			ID:          e.ID,
			Name:        e.Name,
			Email:       e.Email,
			Address:     e.Address,
			Contact:     e.Contact,
			Description: e.Description,
			Avatar:      e.Avatar,
			Images:      nonNil(e.Images),
			Pricing:     e.Pricing,
			Tags:        nonNil(e.Tags),
			Rating:      ratings[e.ID],
			Reviews:     reviewCounts[e.ID],
			Vouchers:    voucherCounts[e.ID],
		})
	}
	return out, nil
}

// countPerEatery runs an aggregate selecting eatery_id and total, grouped by
// eatery, restricted to ids.
func countPerEatery(ids []uint64, q *gorm.DB) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		EateryID uint64
		Total    int64
	}
	if errScan := q.Where("eatery_id IN ?", ids).Group("eatery_id").Scan(&rows).Error; errScan != nil {
		return nil, wrap("count per eatery", errScan)
	}
	for _, row := range rows {
		out[row.EateryID] = row.Total
	}
	return out, nil
}

// Tags returns every tag used by any eatery, sorted.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	var eateries []models.Eatery
	if errFind := s.db.WithContext(ctx).Select("id", "tags").Find(&eateries).Error; errFind != nil {
		return nil, wrap("tags", errFind)
	}
	seen := make(map[string]struct{})
	tags := []string{}
	for _, e := range eateries {
		for _, t := range e.Tags {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
