package handlers

import (
	"net/http"

	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/dinepoint/dinepoint/internal/profile"
	"github.com/gin-gonic/gin"
)

// ProfileHandler handles diner and eatery profile endpoints and the public
// eatery directory.
type ProfileHandler struct {
	profiles *profile.Service
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profiles *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GetDiner returns the caller's own diner profile.
func (h *ProfileHandler) GetDiner(c *gin.Context) {
	dinerID, ok := requireSelf(c, models.KindDiner)
	if !ok {
		return
	}
	details, errDetails := h.profiles.DinerDetails(c.Request.Context(), dinerID)
	if errDetails != nil {
		respondError(c, errDetails)
		return
	}
	c.JSON(http.StatusOK, details)
}

// updateDinerRequest defines the request body for diner profile edits.
type updateDinerRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// UpdateDiner replaces the caller's diner details.
func (h *ProfileHandler) UpdateDiner(c *gin.Context) {
	dinerID, ok := requireSelf(c, models.KindDiner)
	if !ok {
		return
	}
	var body updateDinerRequest
	if !bindJSON(c, &body) {
		return
	}
	errUpdate := h.profiles.UpdateDiner(c.Request.Context(), dinerID, profile.DinerUpdate{
		Email:  body.Email,
		Name:   body.Name,
		Avatar: body.Avatar,
	})
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// blacklistRequest defines the request body for hiding an eatery.
type blacklistRequest struct {
	EateryID uint64 `json:"eatery_id"`
}

// Blacklist hides an eatery from the calling diner's directory.
func (h *ProfileHandler) Blacklist(c *gin.Context) {
	ref, ok := requireKind(c, models.KindDiner)
	if !ok {
		return
	}
	var body blacklistRequest
	if !bindJSON(c, &body) {
		return
	}
	if errBlacklist := h.profiles.BlacklistEatery(c.Request.Context(), ref.ID, body.EateryID); errBlacklist != nil {
		respondError(c, errBlacklist)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// updateEateryRequest defines the request body for eatery profile edits.
type updateEateryRequest struct {
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Contact     string     `json:"contact"`
	Address     string     `json:"address"`
	Avatar      string     `json:"avatar"`
	Images      []string   `json:"images"`
	Pricing     string     `json:"pricing"`
	Cuisine     string     `json:"cuisine"`
	Tags        []string   `json:"tags"`
	Latitude    flexString `json:"latitude"`
	Longitude   flexString `json:"longitude"`
}

// UpdateEatery replaces the caller's eatery details.
func (h *ProfileHandler) UpdateEatery(c *gin.Context) {
	eateryID, ok := requireSelf(c, models.KindEatery)
	if !ok {
		return
	}
	var body updateEateryRequest
	if !bindJSON(c, &body) {
		return
	}
	errUpdate := h.profiles.UpdateEatery(c.Request.Context(), eateryID, profile.EateryUpdate{
		Email:       body.Email,
		Name:        body.Name,
		Description: body.Description,
		Contact:     body.Contact,
		Address:     body.Address,
		Avatar:      body.Avatar,
		Images:      body.Images,
		Pricing:     body.Pricing,
		Cuisine:     body.Cuisine,
		Tags:        body.Tags,
		Latitude:    body.Latitude.String(),
		Longitude:   body.Longitude.String(),
	})
	if errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

type menuItemRequest struct {
	Name       string     `json:"name"`
	Price      flexString `json:"price"`
	Vegan      bool       `json:"vegan"`
	GlutenFree bool       `json:"gluten_free"`
}

type menuCategoryRequest struct {
	Name  string            `json:"name"`
	Items []menuItemRequest `json:"items"`
}

// updateMenuRequest defines the request body for menu replacement.
type updateMenuRequest struct {
	Menu []menuCategoryRequest `json:"menu"`
}

// UpdateMenu replaces the caller's menu.
func (h *ProfileHandler) UpdateMenu(c *gin.Context) {
	eateryID, ok := requireSelf(c, models.KindEatery)
	if !ok {
		return
	}
	var body updateMenuRequest
	if !bindJSON(c, &body) {
		return
	}
	menu := make([]profile.MenuCategoryInput, 0, len(body.Menu))
	for _, cat := range body.Menu {
		in := profile.MenuCategoryInput{Name: cat.Name, Items: make([]profile.MenuItemInput, 0, len(cat.Items))}
		for _, item := range cat.Items {
			in.Items = append(in.Items, profile.MenuItemInput{
				Name:       item.Name,
				Price:      item.Price.String(),
				Vegan:      item.Vegan,
				GlutenFree: item.GlutenFree,
			})
		}
		menu = append(menu, in)
	}
	if errUpdate := h.profiles.UpdateMenu(c.Request.Context(), eateryID, menu); errUpdate != nil {
		respondError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Menu returns an eatery's menu.
func (h *ProfileHandler) Menu(c *gin.Context) {
	eateryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	menu, errMenu := h.profiles.Menu(c.Request.Context(), eateryID)
	if errMenu != nil {
		respondError(c, errMenu)
		return
	}
	c.JSON(http.StatusOK, gin.H{"menu": menu})
}

// GetEatery returns an eatery's public profile.
func (h *ProfileHandler) GetEatery(c *gin.Context) {
	eateryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	details, errDetails := h.profiles.EateryDetails(c.Request.Context(), eateryID)
	if errDetails != nil {
		respondError(c, errDetails)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ListEateries returns the eatery directory, optionally narrowed by the q and
// tag query parameters. Signed-in diners do not see eateries they blacklisted.
func (h *ProfileHandler) ListEateries(c *gin.Context) {
	viewer, _ := getAccount(c)
	eateries, errList := h.profiles.ListEateries(c.Request.Context(), profile.Filter{
		Query:  c.Query("q"),
		Tag:    c.Query("tag"),
		Viewer: viewer,
	})
	if errList != nil {
		respondError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"eateries": eateries})
}

// Tags returns every tag in use.
func (h *ProfileHandler) Tags(c *gin.Context) {
	tags, errTags := h.profiles.Tags(c.Request.Context())
	if errTags != nil {
		respondError(c, errTags)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
