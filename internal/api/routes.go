package api

import (
	"context"
	"net/http"
	"time"

	"membership-api/internal/middleware"
	"membership-api/internal/response"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up all routes. apiKey protects the user routes and
// adminKey the operator routes.
func SetupRoutes(r *gin.Engine, h *Handler, apiKey, adminKey string) {
	r.SetHTMLTemplate(callbackPage)

	// Provider-facing routes (no authentication, authenticity is checked per request)
	r.POST("/webhook/paystack", h.PaystackWebhook)
	r.GET("/payment/callback", h.PaymentCallback)

	api := r.Group("/api")
	{
		api.GET("/plans", h.ListPlans)

		users := api.Group("")
		users.Use(middleware.APIKeyMiddleware(apiKey))
		{
			users.POST("/users", h.EnsureUser)
			users.PUT("/users/:id/email", h.SubmitEmail)
			users.GET("/users/:id/subscriptions", h.UserSubscriptions)

			users.POST("/checkout", h.StartCheckout)
			users.POST("/payments/:reference/verify", h.VerifyPayment)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(adminKey))
		{
			admin.POST("/grant", h.ManualGrant)
			admin.GET("/stats", h.Stats)
			admin.GET("/subscriptions", h.ListActive)
			admin.POST("/sweep", h.Sweep)
		}
	}

	// Health check
	r.GET("/health", h.Health)
}

// Health reports service and database status.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"service": h.ServiceName,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.ServiceName,
	})
}

// ListPlans returns the plan catalog.
func (h *Handler) ListPlans(c *gin.Context) {
	response.SuccessJSON(c, h.Plans.All())
}
