package services

import "errors"

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnknownPayment      = errors.New("unknown payment reference")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrProviderUnreachable = errors.New("payment provider unreachable")
	ErrUnauthorized        = errors.New("unauthorized")

	ErrPaymentPending = errors.New("payment still pending")
	ErrPaymentFailed  = errors.New("payment not found or failed")
	ErrRateLimited    = errors.New("too many verification attempts")

	ErrEmailRequired    = errors.New("email required before checkout")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrTrialAlreadyUsed = errors.New("free trial already used")
	ErrLifetimeOwned    = errors.New("lifetime plan already active")
)
