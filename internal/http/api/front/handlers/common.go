package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/logging"
	"github.com/dinepoint/dinepoint/internal/models"
	"github.com/gin-gonic/gin"
)

// AccountKey is the gin context key holding the authenticated models.AccountRef.
const AccountKey = "account"

// getAccount extracts the authenticated account from gin context.
func getAccount(c *gin.Context) (models.AccountRef, bool) {
	val, exists := c.Get(AccountKey)
	if !exists {
		return models.AccountRef{}, false
	}
	ref, ok := val.(models.AccountRef)
	if !ok || ref.ID == 0 || !ref.Kind.Valid() {
		return models.AccountRef{}, false
	}
	return ref, true
}

// requireAccount returns the authenticated account or aborts with 401.
func requireAccount(c *gin.Context) (models.AccountRef, bool) {
	ref, ok := getAccount(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return ref, ok
}

// requireKind returns the authenticated account when it has kind, or aborts.
func requireKind(c *gin.Context, kind models.AccountKind) (models.AccountRef, bool) {
	ref, ok := requireAccount(c)
	if !ok {
		return ref, false
	}
	if ref.Kind != kind {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only " + string(kind) + " accounts may do this"})
		return ref, false
	}
	return ref, true
}

// requireSelf checks that the :id path parameter names the caller's own
// account of kind and returns it.
func requireSelf(c *gin.Context, kind models.AccountKind) (uint64, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return 0, false
	}
	ref, ok := requireAccount(c)
	if !ok {
		return 0, false
	}
	if ref.Kind != kind || ref.ID != id {
		respondError(c, apperr.Access(apperr.ErrForbidden, "You may only edit your own profile."))
		return 0, false
	}
	return id, true
}

// pathID parses a numeric path parameter, answering 400 when it is not one.
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body, answering 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if errBind := c.ShouldBindJSON(dst); errBind != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	return true
}

// respondError maps a domain error onto an HTTP status.
func respondError(c *gin.Context, err error) {
	switch {
	case apperr.IsInput(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case apperr.IsAccess(err):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		logging.WithRequest(c).WithError(err).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// flexString accepts a JSON string or number. Clients send stock counts,
// prices and discounts either way.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if errUnmarshal := json.Unmarshal(data, &s); errUnmarshal != nil {
			return errUnmarshal
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if errUnmarshal := json.Unmarshal(data, &n); errUnmarshal != nil {
		return errUnmarshal
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string { return string(f) }
