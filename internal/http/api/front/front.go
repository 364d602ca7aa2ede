package front

import (
	"errors"
	"net/http"

	"github.com/dinepoint/dinepoint/internal/apperr"
	"github.com/dinepoint/dinepoint/internal/http/api/front/handlers"
	"github.com/dinepoint/dinepoint/internal/identity"
	"github.com/dinepoint/dinepoint/internal/logging"
	"github.com/dinepoint/dinepoint/internal/loyalty"
	"github.com/dinepoint/dinepoint/internal/profile"
	"github.com/dinepoint/dinepoint/internal/review"
	"github.com/dinepoint/dinepoint/internal/voucher"
	"github.com/gin-gonic/gin"
)

// Services are the engines the API exposes.
type Services struct {
	Identity *identity.Provider
	Profiles *profile.Service
	Ledger   *loyalty.Ledger
	Vouchers *voucher.Engine
	Reviews  *review.Engine
}

// RegisterFrontRoutes registers public and authenticated routes under /api.
func RegisterFrontRoutes(r *gin.Engine, svc Services) {
	if r == nil || svc.Identity == nil {
		return
	}

	api := r.Group("/api")

	authHandler := handlers.NewAuthHandler(svc.Identity)
	api.POST("/auth/register/diner", authHandler.RegisterDiner)
	api.POST("/auth/register/eatery", authHandler.RegisterEatery)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/reset/email", authHandler.RequestReset)
	api.POST("/auth/reset/code", authHandler.ResetPassword)

	profileHandler := handlers.NewProfileHandler(svc.Profiles)
	reviewHandler := handlers.NewReviewHandler(svc.Reviews)
	browse := api.Group("")
	browse.Use(optionalAccountMiddleware(svc.Identity))
	browse.GET("/eateries", profileHandler.ListEateries)
	browse.GET("/eateries/tags", profileHandler.Tags)
	browse.GET("/eateries/:id", profileHandler.GetEatery)
	browse.GET("/eateries/:id/menu", profileHandler.Menu)
	browse.GET("/eateries/:id/reviews", reviewHandler.Thread)

	authed := api.Group("")
	authed.Use(accountAuthMiddleware(svc.Identity))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.PUT("/auth/password", authHandler.ChangePassword)

	authed.GET("/diners/:id", profileHandler.GetDiner)
	authed.PUT("/diners/:id", profileHandler.UpdateDiner)
	authed.POST("/blacklist", profileHandler.Blacklist)
	authed.PUT("/eateries/:id", profileHandler.UpdateEatery)
	authed.PUT("/eateries/:id/menu", profileHandler.UpdateMenu)

	loyaltyHandler := handlers.NewLoyaltyHandler(svc.Ledger)
	authed.GET("/loyalty", loyaltyHandler.Get)
	authed.PUT("/loyalty", loyaltyHandler.Update)
	authed.POST("/loyalty/obtain", loyaltyHandler.Obtain)
	authed.GET("/loyalty/vouchers", loyaltyHandler.Vouchers)

	voucherHandler := handlers.NewVoucherHandler(svc.Vouchers)
	authed.GET("/vouchers", voucherHandler.List)
	authed.POST("/vouchers", voucherHandler.Create)
	authed.POST("/vouchers/:id/obtain", voucherHandler.Obtain)
	authed.POST("/vouchers/redeem", voucherHandler.Redeem)
	authed.POST("/vouchers/schedules", voucherHandler.CreateSchedule)
	authed.DELETE("/vouchers/schedules/:id", voucherHandler.RemoveSchedule)

	authed.POST("/reviews", reviewHandler.Create)
	authed.POST("/reviews/:id/replies", reviewHandler.Reply)
	authed.PUT("/reviews/:id", reviewHandler.Edit)
	authed.DELETE("/reviews/:id", reviewHandler.Delete)
}

// accountAuthMiddleware resolves the bearer token to an account and stores it
// in context.
func accountAuthMiddleware(provider *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := handlers.BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		ref, errResolve := provider.Resolve(c.Request.Context(), token)
		if errResolve != nil {
			if errors.Is(errResolve, apperr.ErrAccessDenied) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			logging.WithRequest(c).WithError(errResolve).Error("resolve token failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.Set(handlers.AccountKey, ref)
		c.Next()
	}
}

// optionalAccountMiddleware stores the account when a valid bearer token is
// present and lets anonymous requests through.
func optionalAccountMiddleware(provider *identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := handlers.BearerToken(c); ok {
			if ref, errResolve := provider.Resolve(c.Request.Context(), token); errResolve == nil {
				c.Set(handlers.AccountKey, ref)
			}
		}
		c.Next()
	}
}
