package handlers

import (
	"net/http"
	"strings"

	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration, sign-in and password endpoints.
type AuthHandler struct {
	provider *identity.Provider
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(provider *identity.Provider) *AuthHandler {
	return &AuthHandler{provider: provider}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || token == authHeader {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// registerDinerRequest defines the request body for diner registration.
type registerDinerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RegisterDiner creates a diner account and signs it in.
func (h *AuthHandler) RegisterDiner(c *gin.Context) {
	var body registerDinerRequest
	if !bindJSON(c, &body) {
		return
	}
	grant, errRegister := h.provider.RegisterDiner(c.Request.Context(), identity.DinerRegistration{
		Email:    body.Email,
		Name:     body.Name,
		Password: body.Password,
	})
	if errRegister != nil {
		respondError(c, errRegister)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// registerEateryRequest defines the request body for eatery registration.
type registerEateryRequest struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	Name      string     `json:"name"`
	Contact   string     `json:"contact"`
	Address   string     `json:"address"`
	Latitude  flexString `json:"latitude"`
	Longitude flexString `json:"longitude"`
}

// RegisterEatery creates an eatery account and signs it in. Spaces in the
// phone number are dropped.
func (h *AuthHandler) RegisterEatery(c *gin.Context) {
	var body registerEateryRequest
	if !bindJSON(c, &body) {
		return
	}
	grant, errRegister := h.provider.RegisterEatery(c.Request.Context(), identity.EateryRegistration{
		Email:     body.Email,
		Password:  body.Password,
		Name:      body.Name,
		Contact:   strings.ReplaceAll(body.Contact, " ", ""),
		Address:   body.Address,
		Latitude:  body.Latitude.String(),
		Longitude: body.Longitude.String(),
	})
	if errRegister != nil {
		respondError(c, errRegister)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates either account kind and issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindJSON(c, &body) {
		return
	}
	grant, errLogin := h.provider.Login(c.Request.Context(), body.Email, body.Password)
	if errLogin != nil {
		respondError(c, errLogin)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
		return
	}
	if errLogout := h.provider.Logout(c.Request.Context(), token); errLogout != nil {
		respondError(c, errLogout)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// resetEmailRequest defines the request body for a reset code request.
type resetEmailRequest struct {
	Email string `json:"email"`
}

// RequestReset emails a password reset code. It answers the same whether or
// not the email belongs to an account.
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var body resetEmailRequest
	if !bindJSON(c, &body) {
		return
	}
	if errReset := h.provider.RequestPasswordReset(c.Request.Context(), body.Email); errReset != nil {
		respondError(c, errReset)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// resetPasswordRequest defines the request body for redeeming a reset code.
type resetPasswordRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ResetPassword sets a new password from an emailed reset code.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if errReset := h.provider.ResetPassword(c.Request.Context(), body.Code, body.Password); errReset != nil {
		respondError(c, errReset)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword verifies and updates the caller's password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ref, ok := requireAccount(c)
	if !ok {
		return
	}
	var body changePasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if errChange := h.provider.ChangePassword(c.Request.Context(), ref, body.CurrentPassword, body.NewPassword); errChange != nil {
		respondError(c, errChange)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
