package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"membership-api/internal/catalog"
	"membership-api/internal/database"
	"membership-api/internal/models"
	"membership-api/pkg/logging"

	"github.com/google/uuid"
)

// CheckoutResult is what the user needs to complete a purchase.
type CheckoutResult struct {
	Plan             catalog.Plan         `json:"plan"`
	Reference        string               `json:"reference"`
	AuthorizationURL string               `json:"authorization_url,omitempty"`
	Subscription     *models.Subscription `json:"subscription,omitempty"` // set for free plans
}

// CheckoutService starts purchases: free trials are granted directly, paid
// plans get a provider transaction and a pending payment.
type CheckoutService struct {
	store       *database.Store
	manager     *SubscriptionManager
	provider    PaymentProvider
	locker      Locker
	fulfillment *Fulfillment
	currency    string
	callbackURL string
}

// NewCheckoutService wires a checkout service.
func NewCheckoutService(store *database.Store, manager *SubscriptionManager, provider PaymentProvider, locker Locker, fulfillment *Fulfillment, currency, callbackURL string) *CheckoutService {
	return &CheckoutService{
		store:       store,
		manager:     manager,
		provider:    provider,
		locker:      locker,
		fulfillment: fulfillment,
		currency:    currency,
		callbackURL: callbackURL,
	}
}

// EnsureUser registers a user on first contact and returns the stored row.
func (c *CheckoutService) EnsureUser(ctx context.Context, userID, firstName, username string) (*models.User, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if err := c.store.EnsureUser(ctx, &models.User{ID: userID, FirstName: firstName, Username: username}); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return c.store.GetUser(ctx, userID)
}

// StartCheckout begins a purchase of planID for userID. ErrEmailRequired
// means the choice was remembered and SubmitEmail will resume it.
func (c *CheckoutService) StartCheckout(ctx context.Context, userID, planID string) (*CheckoutResult, error) {
	plan, ok := c.manager.Plans().Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	if plan.IsFree() {
		return c.startTrial(ctx, userID, plan)
	}

	if plan.IsLifetime {
		active, err := c.manager.ActiveEntitlements(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load entitlements: %w", err)
		}
		for _, sub := range active {
			if sub.PlanID == plan.ID {
				return nil, ErrLifetimeOwned
			}
		}
	}

	user, err := c.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || user.Email == "" {
		if err := c.store.PutPendingCheckout(ctx, userID, plan.ID); err != nil {
			return nil, fmt.Errorf("failed to remember checkout: %w", err)
		}
		return nil, ErrEmailRequired
	}

	now := c.manager.Now()
	reference := fmt.Sprintf("TFX_%s_%s_%d_%s", userID, plan.ID, now.UnixMilli(), uuid.NewString()[:8])

	// The pending row must exist before the user can pay, otherwise verify and
	// redirect have nothing to resolve the reference against.
	pending := &models.PendingPayment{
		Reference: reference,
		UserID:    userID,
		PlanID:    plan.ID,
		Email:     user.Email,
		CreatedAt: now,
	}
	if err := c.store.CreatePendingPayment(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to store pending payment: %w", err)
	}

	session, err := c.provider.Initialize(ctx, InitializeRequest{
		Email:            user.Email,
		AmountMinorUnits: plan.PriceMinorUnits,
		Currency:         c.currency,
		Reference:        reference,
		CallbackURL:      c.callbackURL,
		Metadata: models.PaystackMetadata{
			UserID:   userID,
			PlanID:   plan.ID,
			PlanName: plan.DisplayName,
		},
	})
	if err != nil {
		if delErr := c.store.DeletePendingPayment(ctx, reference); delErr != nil {
			logging.Warnf("Failed to drop pending payment %s after initialize error: %v", reference, delErr)
		}
		return nil, fmt.Errorf("failed to initialize payment: %w", err)
	}

	logging.Infof("Checkout started - user: %s, plan: %s, reference: %s", userID, plan.ID, reference)
	return &CheckoutResult{Plan: plan, Reference: reference, AuthorizationURL: session.AuthorizationURL}, nil
}

// startTrial grants a free plan once per user, ever.
func (c *CheckoutService) startTrial(ctx context.Context, userID string, plan catalog.Plan) (*CheckoutResult, error) {
	unlock, err := c.locker.Lock(ctx, "trial:"+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock trial for %s: %w", userID, err)
	}
	defer unlock()

	reference := "FREE_" + uuid.NewString()
	var sub *models.Subscription
	err = c.store.Transaction(ctx, func(tx *database.Store) error {
		used, err := tx.HasEverHeldPlan(ctx, userID, plan.ID)
		if err != nil {
			return fmt.Errorf("failed to check trial history: %w", err)
		}
		if used {
			return ErrTrialAlreadyUsed
		}
		sub, err = c.manager.GrantOrExtendTx(ctx, tx, userID, plan.ID, reference)
		if err != nil {
			return err
		}
		return tx.CreatePayment(ctx, &models.Payment{
			Reference:      reference,
			UserID:         userID,
			PlanID:         plan.ID,
			Currency:       c.currency,
			Channel:        models.ChannelTrial,
			SubscriptionID: sub.ID,
			CompletedAt:    c.manager.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	c.fulfillment.Activated(ctx, sub, models.ChannelTrial, 0)
	return &CheckoutResult{Plan: plan, Reference: reference, Subscription: sub}, nil
}

// SubmitEmail stores the user's email and resumes a remembered checkout.
// The result is nil when nothing was waiting on the email.
func (c *CheckoutService) SubmitEmail(ctx context.Context, userID, email string) (*CheckoutResult, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if err := c.store.SetUserEmail(ctx, userID, email); err != nil {
		return nil, fmt.Errorf("failed to save email: %w", err)
	}

	pending, err := c.store.TakePendingCheckout(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending checkout: %w", err)
	}
	return c.StartCheckout(ctx, userID, pending.PlanID)
}
