package handlers

import (
	"net/http"

	"github.com/dinepoint/dinepoint/internal/review"
	"github.com/gin-gonic/gin"
)

// ReviewHandler handles review thread endpoints.
type ReviewHandler struct {
	reviews *review.Engine
}

// NewReviewHandler constructs a ReviewHandler.
func NewReviewHandler(reviews *review.Engine) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// createReviewRequest defines the request body for a top-level review.
type createReviewRequest struct {
	EateryID    uint64     `json:"eatery_id"`
	Rating      flexString `json:"rating"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
}

// Create posts a review on an eatery.
func (h *ReviewHandler) Create(c *gin.Context) {
	ref, ok := requireAccount(c)
	if !ok {
		return
	}
	var body createReviewRequest
	if !bindJSON(c, &body) {
		return
	}
	id, errCreate := h.reviews.Create(c.Request.Context(), body.EateryID, ref, review.ReviewInput{
		Rating:      body.Rating.String(),
		Title:       body.Title,
		Description: body.Description,
		PostedAt:    body.Date,
	})
	if errCreate != nil {
		respondError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// replyRequest defines the request body for a reply.
type replyRequest struct {
	EateryID    uint64 `json:"eatery_id"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// Reply answers the review named by the :id path parameter.
func (h *ReviewHandler) Reply(c *gin.Context) {
	parentID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, ok := requireAccount(c)
	if !ok {
		return
	}
	var body replyRequest
	if !bindJSON(c, &body) {
		return
	}
	id, errReply := h.reviews.Reply(c.Request.Context(), body.EateryID, ref, parentID, review.ReplyInput{
		Description: body.Description,
		PostedAt:    body.Date,
	})
	if errReply != nil {
		respondError(c, errReply)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// editReviewRequest defines the request body for review edits.
type editReviewRequest struct {
	Rating      flexString `json:"rating"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// Edit replaces the caller's own review or reply.
func (h *ReviewHandler) Edit(c *gin.Context) {
	reviewID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, ok := requireAccount(c)
	if !ok {
		return
	}
	var body editReviewRequest
	if !bindJSON(c, &body) {
		return
	}
	errEdit := h.reviews.Edit(c.Request.Context(), reviewID, ref, review.EditInput{
		Rating:      body.Rating.String(),
		Title:       body.Title,
		Description: body.Description,
	})
	if errEdit != nil {
		respondError(c, errEdit)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Delete removes the caller's own review or reply.
func (h *ReviewHandler) Delete(c *gin.Context) {
	reviewID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, ok := requireAccount(c)
	if !ok {
		return
	}
	if errDelete := h.reviews.Delete(c.Request.Context(), reviewID, ref); errDelete != nil {
		respondError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Thread returns an eatery's reviews as nested threads with its rating.
func (h *ReviewHandler) Thread(c *gin.Context) {
	eateryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	thread, errThread := h.reviews.ListThread(c.Request.Context(), eateryID)
	if errThread != nil {
		respondError(c, errThread)
		return
	}
	c.JSON(http.StatusOK, thread)
}
