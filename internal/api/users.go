package api

import (
	"net/http"

	"membership-api/internal/response"

	"github.com/gin-gonic/gin"
)

// EnsureUserRequest registers a chat identity.
type EnsureUserRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// EnsureUser handles POST /api/users.
func (h *Handler) EnsureUser(c *gin.Context) {
	var req EnsureUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}

	user, err := h.Checkout.EnsureUser(c.Request.Context(), req.UserID, req.FirstName, req.Username)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.SuccessJSON(c, user)
}

// SubmitEmailRequest sets a user's email.
type SubmitEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SubmitEmail handles PUT /api/users/:id/email. A checkout that was waiting
// for the email is resumed and returned.
func (h *Handler) SubmitEmail(c *gin.Context) {
	var req SubmitEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusUnprocessableEntity, "invalid_email", "Invalid email address")
		return
	}

	res, err := h.Checkout.SubmitEmail(c.Request.Context(), c.Param("id"), req.Email)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if res == nil {
		response.MessageJSON(c, http.StatusOK, "email saved", nil)
		return
	}
	response.MessageJSON(c, http.StatusOK, "checkout started", res)
}

// SubscriptionView is an entitlement with its remaining term.
type SubscriptionView struct {
	PlanID        string  `json:"plan_id"`
	PlanName      string  `json:"plan_name"`
	IsLifetime    bool    `json:"is_lifetime"`
	StartDate     string  `json:"start_date"`
	ExpiryDate    *string `json:"expiry_date,omitempty"`
	DaysRemaining *int    `json:"days_remaining,omitempty"`
	Reference     string  `json:"payment_reference"`
}

// UserSubscriptions handles GET /api/users/:id/subscriptions.
func (h *Handler) UserSubscriptions(c *gin.Context) {
	subs, err := h.Manager.ActiveEntitlements(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	views := make([]SubscriptionView, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		v := SubscriptionView{
			PlanID:     sub.PlanID,
			PlanName:   sub.PlanName,
			IsLifetime: sub.IsLifetime,
			StartDate:  sub.StartDate.Format(timeLayout),
			Reference:  sub.PaymentReference,
		}
		if sub.ExpiryDate != nil {
			exp := sub.ExpiryDate.Format(timeLayout)
			days := h.Manager.DaysRemaining(sub)
			v.ExpiryDate = &exp
			v.DaysRemaining = &days
		}
		views = append(views, v)
	}
	response.SuccessJSON(c, gin.H{
		"user_id":       c.Param("id"),
		"is_subscribed": len(views) > 0,
		"subscriptions": views,
	})
}
