package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/gin-gonic/gin"
)

// LoyaltyHandler handles loyalty program endpoints.
type LoyaltyHandler struct {
	ledger *loyalty.Ledger
}

// NewLoyaltyHandler constructs a LoyaltyHandler.
func NewLoyaltyHandler(ledger *loyalty.Ledger) *LoyaltyHandler {
	return &LoyaltyHandler{ledger: ledger}
}

// Get returns the calling eatery's loyalty program.
func (h *LoyaltyHandler) Get(c *gin.Context) {
	ref, ok := requireKind(c, models.KindEatery)
	if !ok {
		return
	}
	cfg, errCfg := h.ledger.Config(c.Request.Context(), ref.ID)
	if errCfg != nil {
		respondError(c, errCfg)
		return
	}
	c.JSON(http.StatusOK, loyalty.ProgramOf(cfg))
}

// updateLoyaltyRequest defines the request body for loyalty program edits.
type updateLoyaltyRequest struct {
	Enabled     bool       `json:"enabled"`
	Type        string     `json:"type"`
	Item        string     `json:"item"`
	PointGoal   flexString `json:"point_goal"`
	Description string     `json:"description"`
}

// Update replaces the calling eatery's loyalty program.
func (h *LoyaltyHandler) Update(c *gin.Context) {
	ref, ok := requireKind(c, models.KindEatery)
	if !ok {
		return
	}
	var body updateLoyaltyRequest
	if !bindJSON(c, &body) {
		return
	}
	goal, errGoal := strconv.Atoi(strings.TrimSpace(body.PointGoal.String()))
	if errGoal != nil {
		respondError(c, apperr.Input(apperr.ErrInvalidInput, "Point goal must be a whole number."))
		return
	}
	cfg, errUpdate := h.ledger.UpdateConfig(c.Request.Context(), ref.ID, loyalty.ConfigInput{
		Enabled:     body.Enabled,
		RewardType:  body.Type,
		Item:        body.Item,
		PointGoal:   goal,
		Description: body.Description,
	})
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, loyalty.ProgramOf(cfg))
}

// obtainRewardRequest defines the request body for cashing in points.
type obtainRewardRequest struct {
	EateryID uint64 `json:"eatery_id"`
}

// Obtain cashes in the calling diner's points at an eatery for a reward code.
func (h *LoyaltyHandler) Obtain(c *gin.Context) {
	ref, ok := requireKind(c, models.KindDiner)
	if !ok {
		return
	}
	var body obtainRewardRequest
	if !bindJSON(c, &body) {
		return
	}
	reward, errObtain := h.ledger.ObtainVoucher(c.Request.Context(), ref.ID, body.EateryID)
	if errObtain != nil {
		respondError(c, errObtain)
		return
	}
	c.JSON(http.StatusCreated, reward)
}

// Vouchers lists the calling diner's unredeemed loyalty rewards.
func (h *LoyaltyHandler) Vouchers(c *gin.Context) {
	ref, ok := requireKind(c, models.KindDiner)
	if !ok {
		return
	}
	rewards, errList := h.ledger.ListVouchers(c.Request.Context(), ref.ID)
	if errList != nil {
		respondError(c, errList)
		return
	}
	if rewards == nil {
		rewards = []loyalty.HeldReward{}
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": rewards})
}
