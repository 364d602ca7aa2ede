// Package recommend maintains the diner-side recommendation lists that
// voucher and review flows feed.
package recommend

import (
	"context"
	"errors"
	"fmt"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record appends eatery to the diner's visited list and, when withTags is set,
// the eatery's tags to the diner's recommendation tags. An eatery without tags
// contributes nothing to the tag list. Both lists keep duplicates so repeated
// visits weigh more.
func Record(ctx context.Context, tx *gorm.DB, dinerID uint64, eatery models.Eatery, withTags bool) error {
	var diner models.Diner
	if errFind := tx.WithContext(ctx).Select("id", "recommend_tags", "visited").Take(&diner, dinerID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return apperr.Input(apperr.ErrInvalidReference, "Invalid diner id.")
		}
		return fmt.Errorf("recommend: load diner: %w", errFind)
	}

	tags := append(datatypes.JSONSlice[string]{}, diner.RecommendTags...)
	if withTags {
		tags = append(tags, eatery.Tags...)
	}
	visited := append(datatypes.JSONSlice[string]{}, diner.Visited...)
	visited = append(visited, eatery.Name)

	if errUpdate := tx.WithContext(ctx).Model(&models.Diner{ID: dinerID}).Updates(map[string]any{
		"recommend_tags": tags,
		"visited":        visited,
	}).Error; errUpdate != nil {
		return fmt.Errorf("recommend: update diner: %w", errUpdate)
	}
	return nil
}
