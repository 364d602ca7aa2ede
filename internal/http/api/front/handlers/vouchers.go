package handlers

import (
	"net/http"

	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/voucher"
	"github.com/gin-gonic/gin"
)

// VoucherHandler handles promotional voucher and distribution schedule endpoints.
type VoucherHandler struct {
	vouchers *voucher.Engine
}

// NewVoucherHandler constructs a VoucherHandler.
func NewVoucherHandler(vouchers *voucher.Engine) *VoucherHandler {
	return &VoucherHandler{vouchers: vouchers}
}

// createVoucherRequest defines the request body for voucher creation.
type createVoucherRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Discount    flexString `json:"discount"`
	Number      flexString `json:"number"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
}

// Create adds a voucher with the requested stock to the calling eatery.
func (h *VoucherHandler) Create(c *gin.Context) {
	ref, ok := requireKind(c, models.KindEatery)
	if !ok {
		return
	}
	var body createVoucherRequest
	if !bindJSON(c, &body) {
		return
	}
	view, errCreate := h.vouchers.CreateVoucher(c.Request.Context(), ref.ID, voucher.VoucherInput{
		Name:        body.Name,
		Description: body.Description,
		Discount:    body.Discount.String(),
		Stock:       body.Number.String(),
		Start:       body.Start,
		End:         body.End,
	})
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// List returns the calling eatery's vouchers and schedules, or the calling
// diner's unredeemed codes.
func (h *VoucherHandler) List(c *gin.Context) {
	ref, ok := requireAccount(c)
	if !ok {
		return
	}
	if ref.IsDiner() {
		held, errList := h.vouchers.ListForDiner(c.Request.Context(), ref.ID)
		if errList != nil {
			respondError(c, errList)
			return
		}
		c.JSON(http.StatusOK, gin.H{"vouchers": held})
		return
	}
	listing, errList := h.vouchers.ListForEatery(c.Request.Context(), ref.ID)
	if errList != nil {
		respondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// Obtain acquires one unit of a voucher for the calling diner.
func (h *VoucherHandler) Obtain(c *gin.Context) {
	voucherID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, ok := requireKind(c, models.KindDiner)
	if !ok {
		return
	}
	code, errAcquire := h.vouchers.Acquire(c.Request.Context(), ref.ID, voucherID)
	if errAcquire != nil {
		respondError(c, errAcquire)
		return
	}
	c.JSON(http.StatusCreated, code)
}

// redeemRequest defines the request body for code redemption.
type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem consumes a diner's code at the calling eatery.
func (h *VoucherHandler) Redeem(c *gin.Context) {
	ref, ok := requireKind(c, models.KindEatery)
	if !ok {
		return
	}
	var body redeemRequest
	if !bindJSON(c, &body) {
		return
	}
	redemption, errRedeem := h.vouchers.Redeem(c.Request.Context(), ref.ID, body.Code)
	if errRedeem != nil {
		respondError(c, errRedeem)
		return
	}
	c.JSON(http.StatusOK, redemption)
}

// createScheduleRequest defines the request body for a distribution schedule.
// A positive interval makes an interval schedule; otherwise it fires weekly
// on weekday.
type createScheduleRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Discount    flexString `json:"discount"`
	Number      flexString `json:"number"`
	Weekday     string     `json:"weekday"`
	Interval    int        `json:"interval"`
	Start       string     `json:"start"`
	End         string     `json:"end"`
}

// CreateSchedule registers a recurring voucher distribution for the calling eatery.
func (h *VoucherHandler) CreateSchedule(c *gin.Context) {
	ref, ok := requireKind(c, models.KindEatery)
	if !ok {
		return
	}
	var body createScheduleRequest
	if !bindJSON(c, &body) {
		return
	}
	view, errCreate := h.vouchers.CreateSchedule(c.Request.Context(), ref.ID, voucher.ScheduleInput{
		Name:            body.Name,
		Description:     body.Description,
		Discount:        body.Discount.String(),
		Stock:           body.Number.String(),
		Start:           body.Start,
		End:             body.End,
		Weekly:          body.Interval <= 0,
		Weekday:         body.Weekday,
		IntervalMinutes: body.Interval,
	})
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// RemoveSchedule stops one of the calling eatery's schedules. Vouchers it
// already produced stay.
func (h *VoucherHandler) RemoveSchedule(c *gin.Context) {
	scheduleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, ok := requireKind(c, models.KindEatery)
	if !ok {
		return
	}
	if errRemove := h.vouchers.RemoveSchedule(c.Request.Context(), ref.ID, scheduleID); errRemove != nil {
		respondError(c, errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
