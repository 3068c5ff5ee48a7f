package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"membership-api/internal/database"
	"membership-api/internal/models"
	"membership-api/pkg/logging"
)

const (
	chargeSuccessEvent = "charge.success"
	maxReconcileTries  = 3
)

// Outcome is the result of a reconciliation attempt.
type Outcome struct {
	Payment      *models.Payment      `json:"payment,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	// AlreadyReconciled is set when an earlier delivery already applied the payment.
	AlreadyReconciled bool `json:"already_reconciled"`
	// Ignored is set for webhook events other than a successful charge.
	Ignored bool `json:"ignored,omitempty"`
}

// intent says who paid for what.
type intent struct {
	UserID string
	PlanID string
}

// confirmation is what the provider told us about a completed charge.
type confirmation struct {
	Channel          string
	AmountMinorUnits int64
	Currency         string
	Fallback         *intent // from webhook metadata
	ExpectedUserID   string  // set for user-initiated verification
}

// Reconciler merges webhook, manual verification and browser redirect into a
// single reconcile step per payment reference.
type Reconciler struct {
	store       *database.Store
	manager     *SubscriptionManager
	provider    PaymentProvider
	locker      Locker
	limiter     RateLimiter
	fulfillment *Fulfillment
	verifyLimit time.Duration
}

// NewReconciler wires the reconciler. limiter may be nil to disable rate limiting.
func NewReconciler(store *database.Store, manager *SubscriptionManager, provider PaymentProvider, locker Locker, limiter RateLimiter, fulfillment *Fulfillment, verifyLimit time.Duration) *Reconciler {
	return &Reconciler{
		store:       store,
		manager:     manager,
		provider:    provider,
		locker:      locker,
		limiter:     limiter,
		fulfillment: fulfillment,
		verifyLimit: verifyLimit,
	}
}

// HandleWebhook authenticates and applies a provider webhook delivery.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature string) (*Outcome, error) {
	if !r.provider.VerifySignature(body, signature) {
		return nil, ErrInvalidSignature
	}

	var event models.PaystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}
	if event.Event != chargeSuccessEvent {
		logging.Infof("Ignoring webhook event %s for reference %s", event.Event, event.Data.Reference)
		return &Outcome{Ignored: true}, nil
	}
	if event.Data.Reference == "" {
		return nil, ErrUnknownPayment
	}

	conf := confirmation{
		Channel:          models.ChannelWebhook,
		AmountMinorUnits: event.Data.Amount,
		Currency:         event.Data.Currency,
	}
	if md := event.Data.Metadata; md.UserID != "" && md.PlanID != "" {
		conf.Fallback = &intent{UserID: md.UserID, PlanID: md.PlanID}
	}
	return r.reconcile(ctx, event.Data.Reference, conf)
}

// VerifyByUser re-checks a payment with the provider on the user's request.
func (r *Reconciler) VerifyByUser(ctx context.Context, userID, reference string) (*Outcome, error) {
	if r.limiter != nil && r.verifyLimit > 0 {
		ok, err := r.limiter.Allow(ctx, "verify:"+userID, r.verifyLimit)
		if err != nil {
			logging.Warnf("Verify rate limit check failed - user: %s, error: %v", userID, err)
		} else if !ok {
			return nil, ErrRateLimited
		}
	}
	return r.verifyAndReconcile(ctx, reference, models.ChannelVerify, userID)
}

// HandleRedirect verifies the reference the provider sent the browser back with.
func (r *Reconciler) HandleRedirect(ctx context.Context, reference string) (*Outcome, error) {
	return r.verifyAndReconcile(ctx, reference, models.ChannelRedirect, "")
}

func (r *Reconciler) verifyAndReconcile(ctx context.Context, reference, channel, expectedUserID string) (*Outcome, error) {
	if reference == "" {
		return nil, ErrUnknownPayment
	}

	tx, err := r.provider.Verify(ctx, reference)
	if err != nil {
		if errors.Is(err, ErrProviderUnreachable) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
		}
		return nil, err
	}

	switch tx.Status {
	case StatusSuccess:
	case StatusPending:
		return nil, ErrPaymentPending
	default:
		logging.Infof("Payment %s verified with status %q", reference, tx.Status)
		return nil, ErrPaymentFailed
	}

	conf := confirmation{
		Channel:          channel,
		AmountMinorUnits: tx.Amount,
		Currency:         tx.Currency,
		ExpectedUserID:   expectedUserID,
	}
	// Only the signed webhook may resolve an intent from metadata. Verify and
	// redirect act on a stored pending payment or not at all.
	return r.reconcile(ctx, reference, conf)
}

// reconcile applies a confirmed payment exactly once per reference.
func (r *Reconciler) reconcile(ctx context.Context, reference string, conf confirmation) (*Outcome, error) {
	out, err := r.apply(ctx, reference, conf)
	if err != nil {
		return nil, err
	}

	if out.AlreadyReconciled {
		logging.Infof("Payment %s already reconciled, %s delivery is a no-op", reference, conf.Channel)
		return out, nil
	}

	logging.With("reference", reference, "user_id", out.Payment.UserID, "plan_id", out.Payment.PlanID, "channel", conf.Channel).
		Info("Payment reconciled")
	r.fulfillment.Activated(ctx, out.Subscription, conf.Channel, out.Payment.AmountMinorUnits)
	return out, nil
}

// apply holds the reference lock and runs the ledger mutation in one
// transaction. A unique violation means a concurrent writer got there first,
// so the transaction is re-run and will observe that write.
func (r *Reconciler) apply(ctx context.Context, reference string, conf confirmation) (*Outcome, error) {
	unlock, err := r.locker.Lock(ctx, "reconcile:"+reference)
	if err != nil {
		return nil, fmt.Errorf("failed to lock reference %s: %w", reference, err)
	}
	defer unlock()

	var out *Outcome
	for attempt := 1; ; attempt++ {
		out, err = r.applyTx(ctx, reference, conf)
		if err == nil || !database.IsUniqueViolation(err) || attempt == maxReconcileTries {
			return out, err
		}
		logging.Warnf("Reconcile of %s hit a concurrent write, retrying (attempt %d)", reference, attempt)
	}
}

func (r *Reconciler) applyTx(ctx context.Context, reference string, conf confirmation) (*Outcome, error) {
	out := &Outcome{}
	err := r.store.Transaction(ctx, func(tx *database.Store) error {
		existing, err := tx.GetPayment(ctx, reference)
		if err == nil {
			if conf.ExpectedUserID != "" && existing.UserID != conf.ExpectedUserID {
				return ErrUnknownPayment
			}
			out.Payment = existing
			out.AlreadyReconciled = true
			if sub, err := tx.GetSubscription(ctx, existing.SubscriptionID); err == nil {
				out.Subscription = sub
			}
			return nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("failed to load payment: %w", err)
		}

		who, err := r.resolveIntent(ctx, tx, reference, conf)
		if err != nil {
			return err
		}

		sub, err := r.manager.GrantOrExtendTx(ctx, tx, who.UserID, who.PlanID, reference)
		if err != nil {
			return err
		}

		amount := conf.AmountMinorUnits
		if amount == 0 {
			if plan, ok := r.manager.Plans().Lookup(who.PlanID); ok {
				amount = plan.PriceMinorUnits
			}
		}
		payment := &models.Payment{
			Reference:        reference,
			UserID:           who.UserID,
			PlanID:           who.PlanID,
			AmountMinorUnits: amount,
			Currency:         conf.Currency,
			Channel:          conf.Channel,
			SubscriptionID:   sub.ID,
			CompletedAt:      r.manager.Now(),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		if err := tx.DeletePendingPayment(ctx, reference); err != nil {
			return fmt.Errorf("failed to clear pending payment: %w", err)
		}

		out.Payment = payment
		out.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveIntent prefers the stored pending payment and falls back to
// provider metadata.
func (r *Reconciler) resolveIntent(ctx context.Context, tx *database.Store, reference string, conf confirmation) (*intent, error) {
	var who *intent
	pending, err := tx.GetPendingPayment(ctx, reference)
	switch {
	case err == nil:
		who = &intent{UserID: pending.UserID, PlanID: pending.PlanID}
	case errors.Is(err, database.ErrNotFound):
		who = conf.Fallback
	default:
		return nil, fmt.Errorf("failed to load pending payment: %w", err)
	}

	if who == nil {
		return nil, ErrUnknownPayment
	}
	if conf.ExpectedUserID != "" && who.UserID != conf.ExpectedUserID {
		return nil, ErrUnknownPayment
	}
	return who, nil
}
