package api

import (
	"net/http"
	"time"

	"membership-api/internal/response"

	"github.com/gin-gonic/gin"
)

const timeLayout = time.RFC3339

// CheckoutRequest starts a purchase.
type CheckoutRequest struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

// StartCheckout handles POST /api/checkout. Free plans are activated
// immediately; paid plans return the provider's checkout URL.
func (h *Handler) StartCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}

	res, err := h.Checkout.StartCheckout(c.Request.Context(), req.UserID, req.PlanID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if res.Subscription != nil {
		response.MessageJSON(c, http.StatusOK, "subscription activated", res)
		return
	}
	response.MessageJSON(c, http.StatusOK, "checkout started", res)
}

// VerifyPaymentRequest identifies who is asking.
type VerifyPaymentRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// VerifyPayment handles POST /api/payments/:reference/verify, the user's
// "I have paid" action.
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}

	out, err := h.Reconciler.VerifyByUser(c.Request.Context(), req.UserID, c.Param("reference"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	message := "payment confirmed"
	if out.AlreadyReconciled {
		message = "payment already confirmed"
	}
	response.MessageJSON(c, http.StatusOK, message, out)
}
