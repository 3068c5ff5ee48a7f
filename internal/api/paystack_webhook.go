package api

import (
	"errors"
	"net/http"
	"time"

	"membership-api/internal/response"
	"membership-api/internal/services"
	"membership-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// PaystackSignatureHeader carries the HMAC-SHA512 of the raw request body.
const PaystackSignatureHeader = "x-paystack-signature"

// PaystackWebhook handles POST /webhook/paystack.
//
// The provider retries anything but a 2xx, so only failures a retry can fix
// (storage errors) answer 5xx. Bad signatures are refused with 401 and unknown
// references are acknowledged and logged.
func (h *Handler) PaystackWebhook(c *gin.Context) {
	startTime := time.Now()

	body, err := c.GetRawData()
	if err != nil {
		logging.Errorf("Failed to read webhook body: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}
	if len(body) == 0 {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Empty request body")
		return
	}

	out, err := h.Reconciler.HandleWebhook(c.Request.Context(), body, c.GetHeader(PaystackSignatureHeader))
	switch {
	case errors.Is(err, services.ErrInvalidSignature):
		logging.Warnf("Rejected webhook with invalid signature from %s", c.ClientIP())
		response.ErrorJSON(c, http.StatusUnauthorized, "invalid_signature", "Signature verification failed")
		return
	case errors.Is(err, services.ErrUnknownPayment), errors.Is(err, services.ErrUnknownPlan):
		logging.Errorf("Webhook for unresolvable payment acknowledged: %v", err)
		response.MessageJSON(c, http.StatusOK, "unknown payment", nil)
		return
	case err != nil:
		logging.Errorf("Webhook processing failed: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "internal", "Webhook processing failed")
		return
	}

	status := "processed"
	switch {
	case out.Ignored:
		status = "ignored"
	case out.AlreadyReconciled:
		status = "already_reconciled"
	}
	logging.Infof("Webhook handled - status: %s, duration: %v", status, time.Since(startTime))
	response.MessageJSON(c, http.StatusOK, status, nil)
}
