package api

import (
	"errors"
	"net/http"

	"membership-api/internal/catalog"
	"membership-api/internal/database"
	"membership-api/internal/response"
	"membership-api/internal/services"
	"membership-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// Handler holds the services behind the HTTP routes.
type Handler struct {
	Plans       *catalog.Catalog
	Store       *database.Store
	Manager     *services.SubscriptionManager
	Reconciler  *services.Reconciler
	Checkout    *services.CheckoutService
	Admin       *services.AdminService
	ServiceName string
}

// writeServiceError maps service errors to HTTP answers. Internal errors are
// logged and never shown to the caller.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownPlan):
		response.ErrorJSON(c, http.StatusNotFound, "unknown_plan", "Unknown plan")
	case errors.Is(err, services.ErrUnknownPayment):
		response.ErrorJSON(c, http.StatusNotFound, "unknown_payment", "Payment reference not found")
	case errors.Is(err, services.ErrUnauthorized):
		response.ErrorJSON(c, http.StatusForbidden, "forbidden", "Not authorized")
	case errors.Is(err, services.ErrInvalidSignature):
		response.ErrorJSON(c, http.StatusUnauthorized, "invalid_signature", "Signature verification failed")
	case errors.Is(err, services.ErrPaymentPending):
		response.ErrorJSON(c, http.StatusAccepted, "payment_pending", "Payment is still pending, please check again shortly")
	case errors.Is(err, services.ErrPaymentFailed):
		response.ErrorJSON(c, http.StatusPaymentRequired, "payment_failed", "Payment not found or failed, please contact support with your reference")
	case errors.Is(err, services.ErrProviderUnreachable):
		response.ErrorJSON(c, http.StatusServiceUnavailable, "provider_unavailable", "Payment provider unavailable, please try again")
	case errors.Is(err, services.ErrRateLimited):
		response.ErrorJSON(c, http.StatusTooManyRequests, "rate_limited", "Too many attempts, please wait before checking again")
	case errors.Is(err, services.ErrEmailRequired):
		response.ErrorJSON(c, http.StatusUnprocessableEntity, "email_required", "Email address required before checkout")
	case errors.Is(err, services.ErrInvalidEmail):
		response.ErrorJSON(c, http.StatusUnprocessableEntity, "invalid_email", "Invalid email address")
	case errors.Is(err, services.ErrTrialAlreadyUsed):
		response.ErrorJSON(c, http.StatusConflict, "trial_used", "Free trial already used")
	case errors.Is(err, services.ErrLifetimeOwned):
		response.ErrorJSON(c, http.StatusConflict, "lifetime_owned", "Lifetime access already active")
	case errors.Is(err, services.ErrSweepInProgress):
		response.ErrorJSON(c, http.StatusConflict, "sweep_in_progress", "Expiry sweep already running")
	default:
		logging.Errorf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		response.ErrorJSON(c, http.StatusInternalServerError, "internal", "Internal server error")
	}
}
