package api

import (
	"errors"
	"html/template"
	"net/http"

	"membership-api/internal/services"
	"membership-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<title>{{.Title}}</title>
</head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px; text-align: center;">
		<h1 style="color: #333; margin-bottom: 20px;">{{.Title}}</h1>
		<p style="color: #666; font-size: 16px;">{{.Message}}</p>
		{{if .Reference}}<p style="color: #999; font-size: 14px; margin-top: 20px;">Reference: <code>{{.Reference}}</code></p>{{end}}
		<p style="color: #999; font-size: 12px; margin-top: 30px;">You can close this window and return to the chat.</p>
	</div>
</body>
</html>`))

type callbackView struct {
	Title     string
	Message   string
	Reference string
}

// PaymentCallback handles GET /payment/callback?reference=, where the
// provider sends the browser after checkout. Access is only granted after
// the provider confirms the reference.
func (h *Handler) PaymentCallback(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		reference = c.Query("trxref")
	}
	if reference == "" {
		c.HTML(http.StatusBadRequest, "callback", callbackView{
			Title:   "Missing reference",
			Message: "We could not tell which payment this is.",
		})
		return
	}

	out, err := h.Reconciler.HandleRedirect(c.Request.Context(), reference)
	view := callbackView{Reference: reference}
	status := http.StatusOK
	switch {
	case err == nil:
		view.Title = "Payment successful"
		view.Message = "Your subscription is active. Check the chat for your access link."
		if out.Subscription != nil {
			view.Message = "Your " + out.Subscription.PlanName + " subscription is active. Check the chat for your access link."
		}
	case errors.Is(err, services.ErrPaymentPending):
		view.Title = "Payment pending"
		view.Message = "Your payment is still being processed. You will get a message as soon as it completes."
	case errors.Is(err, services.ErrProviderUnreachable):
		status = http.StatusServiceUnavailable
		view.Title = "Please try again"
		view.Message = "We could not reach the payment provider. Refresh this page in a moment or use the \"I have paid\" button in the chat."
	default:
		if !errors.Is(err, services.ErrPaymentFailed) && !errors.Is(err, services.ErrUnknownPayment) {
			logging.Errorf("Payment callback for %s failed: %v", reference, err)
		}
		status = http.StatusPaymentRequired
		view.Title = "Payment not confirmed"
		view.Message = "We could not confirm this payment. If you were charged, contact support with the reference below."
	}
	c.HTML(status, "callback", view)
}
