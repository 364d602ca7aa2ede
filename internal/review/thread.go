package review

import (
	"context"
	"math"

	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/util"
	"gorm.io/gorm"
)

// Node is one review or reply with its replies.
type Node struct {
	ID          uint64   `json:"id"`
	Rating      *float64 `json:"rating"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PostedAt    string   `json:"date"`
	Edited      bool     `json:"edited"`
	Deleted     bool     `json:"deleted"`
	AuthorID    uint64   `json:"user_id"`
	AuthorKind  string   `json:"user_kind"`
	Avatar      string   `json:"avatar"`
	Username    string   `json:"username"`
	Replies     []*Node  `json:"replies"`
}

// Thread is an eatery's full review tree.
type Thread struct {
	Reviews []*Node `json:"reviews"`
	Rating  float64 `json:"rating"`
}

type authorInfo struct {
	name   string
	avatar string
}

// ListThread returns every review of eateryID as a tree rooted at the
// top-level reviews. Siblings are ordered by post time, then id.
func (e *Engine) ListThread(ctx context.Context, eateryID uint64) (Thread, error) {
	db := e.db.WithContext(ctx)
	if _, errEatery := loadEatery(db, eateryID); errEatery != nil {
		return Thread{}, errEatery
	}

	var rows []models.Review
	if errFind := db.Where("eatery_id = ?", eateryID).Order("posted_at ASC").Order("id ASC").Find(&rows).Error; errFind != nil {
		return Thread{}, wrap("list thread", errFind)
	}
	authors, errAuthors := loadAuthors(db, rows)
	if errAuthors != nil {
		return Thread{}, wrap("list thread", errAuthors)
	}

	loc := e.now().Location()
	nodes := make(map[uint64]*Node, len(rows))
	for _, row := range rows {
		info := authors[models.AccountRef{ID: row.AuthorID, Kind: row.AuthorKind}]
		nodes[row.ID] = &Node{
			ID:          row.ID,
			Rating:      row.Rating,
			Title:       row.Title,
			Description: row.Description,
			PostedAt:    util.FormatDateTime(row.PostedAt, loc),
			Edited:      row.Edited,
			Deleted:     row.Deleted,
			AuthorID:    row.AuthorID,
			AuthorKind:  string(row.AuthorKind),
			Avatar:      info.avatar,
			Username:    info.name,
			Replies:     []*Node{},
		}
	}

	thread := Thread{Reviews: []*Node{}}
	for _, row := range rows {
		node := nodes[row.ID]
		if row.ParentID == nil {
			thread.Reviews = append(thread.Reviews, node)
			continue
		}
		if parent, ok := nodes[*row.ParentID]; ok {
			parent.Replies = append(parent.Replies, node)
		}
	}

	rating, errRating := AverageRating(ctx, e.db, eateryID)
	if errRating != nil {
		return Thread{}, errRating
	}
	thread.Rating = rating
	return thread, nil
}

func loadAuthors(db *gorm.DB, rows []models.Review) (map[models.AccountRef]authorInfo, error) {
	var dinerIDs, eateryIDs []uint64
	for _, row := range rows {
		switch row.AuthorKind {
		case models.KindDiner:
			dinerIDs = append(dinerIDs, row.AuthorID)
		case models.KindEatery:
			eateryIDs = append(eateryIDs, row.AuthorID)
		}
	}

	out := make(map[models.AccountRef]authorInfo)
	if len(dinerIDs) > 0 {
		var diners []models.Diner
		if errFind := db.Select("id", "name", "avatar").Where("id IN ?", dinerIDs).Find(&diners).Error; errFind != nil {
			return nil, errFind
		}
		for _, d := range diners {
			out[models.AccountRef{ID: d.ID, Kind: models.KindDiner}] = authorInfo{name: d.Name, avatar: d.Avatar}
		}
	}
	if len(eateryIDs) > 0 {
		var eateries []models.Eatery
		if errFind := db.Select("id", "name", "avatar").Where("id IN ?", eateryIDs).Find(&eateries).Error; errFind != nil {
			return nil, errFind
		}
		for _, e := range eateries {
			out[models.AccountRef{ID: e.ID, Kind: models.KindEatery}] = authorInfo{name: e.Name, avatar: e.Avatar}
		}
	}
	return out, nil
}

// AverageRating is the mean rating of eateryID's live top-level reviews,
// rounded to one decimal place. It is 0 when there are none.
func AverageRating(ctx context.Context, db *gorm.DB, eateryID uint64) (float64, error) {
	ratings, err := AverageRatings(ctx, db, []uint64{eateryID})
	if err != nil {
		return 0, err
	}
	return ratings[eateryID], nil
}

// AverageRatings computes AverageRating for several eateries in one query.
// Eateries without reviews are absent from the result.
func AverageRatings(ctx context.Context, db *gorm.DB, eateryIDs []uint64) (map[uint64]float64, error) {
	out := make(map[uint64]float64, len(eateryIDs))
	if len(eateryIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		EateryID uint64
		Average  float64
	}
	errFind := db.WithContext(ctx).Model(&models.Review{}).
		Select("eatery_id, AVG(rating) AS average").
		Where("eatery_id IN ? AND parent_id IS NULL AND deleted = ? AND rating IS NOT NULL", eateryIDs, false).
		Group("eatery_id").
		Scan(&rows).Error
	if errFind != nil {
		return nil, wrap("average rating", errFind)
	}
	for _, row := range rows {
		out[row.EateryID] = math.Round(row.Average*10) / 10
	}
	return out, nil
}
