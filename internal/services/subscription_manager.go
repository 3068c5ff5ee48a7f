package services

import (
	"context"
	"fmt"
	"time"

	"membership-api/internal/catalog"
	"membership-api/internal/database"
	"membership-api/internal/models"

	"github.com/google/uuid"
)

// SubscriptionManager owns subscription state transitions. It performs no
// notifications and touches no group membership.
type SubscriptionManager struct {
	store *database.Store
	plans *catalog.Catalog
	now   func() time.Time
}

// NewSubscriptionManager creates a manager using the wall clock.
func NewSubscriptionManager(store *database.Store, plans *catalog.Catalog) *SubscriptionManager {
	return &SubscriptionManager{
		store: store,
		plans: plans,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (m *SubscriptionManager) SetClock(now func() time.Time) {
	m.now = func() time.Time { return now().UTC() }
}

// Now returns the manager's current time.
func (m *SubscriptionManager) Now() time.Time {
	return m.now()
}

// Plans returns the catalog the manager grants from.
func (m *SubscriptionManager) Plans() *catalog.Catalog {
	return m.plans
}

// GrantOrExtend activates planID for userID in its own transaction.
func (m *SubscriptionManager) GrantOrExtend(ctx context.Context, userID, planID, reference string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := m.store.Transaction(ctx, func(tx *database.Store) error {
		var err error
		sub, err = m.GrantOrExtendTx(ctx, tx, userID, planID, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GrantOrExtendTx activates planID for userID inside tx. A still-running
// active row for the same plan is replaced by one whose term starts at the
// old expiry, so paid time is never lost.
func (m *SubscriptionManager) GrantOrExtendTx(ctx context.Context, tx *database.Store, userID, planID, reference string) (*models.Subscription, error) {
	plan, ok := m.plans.Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}

	if err := tx.EnsureUser(ctx, &models.User{ID: userID}); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}

	current, err := tx.LockActiveSubscriptions(ctx, userID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active subscriptions: %w", err)
	}

	now := m.now()
	startFrom := now
	ids := make([]string, 0, len(current))
	for i := range current {
		ids = append(ids, current[i].ID)
		if exp := current[i].ExpiryDate; exp != nil && exp.After(startFrom) {
			startFrom = *exp
		}
	}

	sub := &models.Subscription{
		ID:               uuid.NewString(),
		UserID:           userID,
		PlanID:           plan.ID,
		PlanName:         plan.DisplayName,
		IsLifetime:       plan.IsLifetime,
		StartDate:        now,
		IsActive:         true,
		PaymentReference: reference,
	}
	if !plan.IsLifetime {
		expiry := startFrom.AddDate(0, 0, plan.DurationDays)
		sub.ExpiryDate = &expiry
	}

	if err := tx.DeactivateSubscriptions(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to deactivate previous subscription: %w", err)
	}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// ActiveEntitlements reads the user's currently entitling rows from the store.
func (m *SubscriptionManager) ActiveEntitlements(ctx context.Context, userID string) ([]models.Subscription, error) {
	return m.store.ActiveSubscriptionsForUser(ctx, userID, m.now())
}

// DaysRemaining is ceil((expiry - now) / 1 day); zero or negative once expired.
func (m *SubscriptionManager) DaysRemaining(sub *models.Subscription) int {
	return sub.DaysRemaining(m.now())
}
