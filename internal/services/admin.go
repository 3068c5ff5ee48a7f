package services

import (
	"context"
	"fmt"

	"membership-api/internal/database"
	"membership-api/internal/models"
	"membership-api/pkg/logging"

	"github.com/google/uuid"
)

// Stats is the operator dashboard summary.
type Stats struct {
	Users               int64            `json:"users"`
	ActiveSubscriptions int64            `json:"active_subscriptions"`
	ActiveByPlan        map[string]int64 `json:"active_by_plan"`
	Payments            int64            `json:"payments"`
	RevenueMinorUnits   int64            `json:"revenue_minor_units"`
	Currency            string           `json:"currency"`
}

// ActiveSubscription is a subscription with its remaining term.
type ActiveSubscription struct {
	models.Subscription
	DaysRemaining *int `json:"days_remaining"` // nil for lifetime
}

// AdminService holds the operator-only operations.
type AdminService struct {
	operatorID  string
	store       *database.Store
	manager     *SubscriptionManager
	fulfillment *Fulfillment
	sweeper     *Sweeper
	currency    string
}

// NewAdminService wires the operator operations.
func NewAdminService(operatorID string, store *database.Store, manager *SubscriptionManager, fulfillment *Fulfillment, sweeper *Sweeper, currency string) *AdminService {
	return &AdminService{
		operatorID:  operatorID,
		store:       store,
		manager:     manager,
		fulfillment: fulfillment,
		sweeper:     sweeper,
		currency:    currency,
	}
}

// Authorize fails with ErrUnauthorized unless callerID is the operator.
func (a *AdminService) Authorize(callerID string) error {
	if a.operatorID == "" || callerID != a.operatorID {
		return ErrUnauthorized
	}
	return nil
}

// ManualGrant activates planID for userID without a provider payment, for
// example after the operator confirmed an offline transfer.
func (a *AdminService) ManualGrant(ctx context.Context, callerID, userID, planID string) (*Outcome, error) {
	if err := a.Authorize(callerID); err != nil {
		logging.Warnf("Rejected manual grant by %q for user %s", callerID, userID)
		return nil, err
	}
	plan, ok := a.manager.Plans().Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}

	reference := fmt.Sprintf("APPROVED_%d_%s", a.manager.Now().UnixMilli(), uuid.NewString()[:8])
	out := &Outcome{}
	err := a.store.Transaction(ctx, func(tx *database.Store) error {
		sub, err := a.manager.GrantOrExtendTx(ctx, tx, userID, plan.ID, reference)
		if err != nil {
			return err
		}
		payment := &models.Payment{
			Reference:        reference,
			UserID:           userID,
			PlanID:           plan.ID,
			AmountMinorUnits: plan.PriceMinorUnits,
			Currency:         a.currency,
			Channel:          models.ChannelAdmin,
			SubscriptionID:   sub.ID,
			CompletedAt:      a.manager.Now(),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		out.Subscription = sub
		out.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Infof("Manual grant - operator: %s, user: %s, plan: %s, reference: %s", callerID, userID, plan.ID, reference)
	a.fulfillment.Activated(ctx, out.Subscription, models.ChannelAdmin, out.Payment.AmountMinorUnits)
	return out, nil
}

// Stats summarizes users, subscriptions and revenue.
func (a *AdminService) Stats(ctx context.Context) (*Stats, error) {
	users, err := a.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	byPlan, err := a.store.CountActiveByPlan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	payments, revenue, err := a.store.PaymentTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}

	var active int64
	for _, n := range byPlan {
		active += n
	}
	return &Stats{
		Users:               users,
		ActiveSubscriptions: active,
		ActiveByPlan:        byPlan,
		Payments:            payments,
		RevenueMinorUnits:   revenue,
		Currency:            a.currency,
	}, nil
}

// ListActive returns every active subscription with its remaining days.
func (a *AdminService) ListActive(ctx context.Context) ([]ActiveSubscription, error) {
	subs, err := a.store.ListActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	out := make([]ActiveSubscription, 0, len(subs))
	for _, sub := range subs {
		item := ActiveSubscription{Subscription: sub}
		if !sub.IsLifetime {
			days := a.manager.DaysRemaining(&sub)
			item.DaysRemaining = &days
		}
		out = append(out, item)
	}
	return out, nil
}

// Sweep runs the expiry sweep immediately.
func (a *AdminService) Sweep(ctx context.Context) (*SweepReport, error) {
	return a.sweeper.SweepOnce(ctx)
}
