package database

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"membership-api/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open("", filepath.Join(t.TempDir(), "ledger.db"), "release")
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(db)
}

func activeSub(userID, planID string, expiry time.Time) *models.Subscription {
	now := time.Now().UTC()
	return &models.Subscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		PlanID:     planID,
		StartDate:  now,
		ExpiryDate: &expiry,
		IsActive:   true,
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, Migrate(context.Background(), s.DB()))
	assert.NoError(t, s.Ping(context.Background()))
}

func TestEnsureUserKeepsExistingRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: "1", FirstName: "Ama"}))
	require.NoError(t, s.SetUserEmail(ctx, "1", "ama@example.com"))
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: "1", FirstName: "Other"}))

	user, err := s.GetUser(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Ama", user.FirstName)
	assert.Equal(t, "ama@example.com", user.Email)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPendingCheckoutIsConsumedOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutPendingCheckout(ctx, "1", "vip-signals"))
	require.NoError(t, s.PutPendingCheckout(ctx, "1", "pro-trader-plan"))

	pc, err := s.TakePendingCheckout(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "pro-trader-plan", pc.PlanID)

	_, err = s.TakePendingCheckout(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPaymentReferenceIsUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: "1"}))

	p := &models.Payment{Reference: "TFX_1", UserID: "1", PlanID: "vip-signals", AmountMinorUnits: 20000, CompletedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePayment(ctx, p))

	dup := *p
	err := s.CreatePayment(ctx, &dup)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	count, revenue, err := s.PaymentTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(20000), revenue)
}

func TestOneActiveSubscriptionPerUserAndPlan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: "1"}))

	expiry := time.Now().UTC().Add(24 * time.Hour)
	first := activeSub("1", "vip-signals", expiry)
	require.NoError(t, s.CreateSubscription(ctx, first))

	err := s.CreateSubscription(ctx, activeSub("1", "vip-signals", expiry))
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	err = s.Transaction(ctx, func(tx *Store) error {
		locked, err := tx.LockActiveSubscriptions(ctx, "1", "vip-signals")
		if err != nil {
			return err
		}
		require.Len(t, locked, 1)
		if err := tx.DeactivateSubscriptions(ctx, []string{locked[0].ID}); err != nil {
			return err
		}
		return tx.CreateSubscription(ctx, activeSub("1", "vip-signals", expiry.Add(time.Hour)))
	})
	require.NoError(t, err)

	history, err := s.SubscriptionsForUser(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	active, err := s.ActiveSubscriptionsForUser(ctx, "1", time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.NotEqual(t, first.ID, active[0].ID)
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Transaction(ctx, func(tx *Store) error {
		require.NoError(t, tx.EnsureUser(ctx, &models.User{ID: "9"}))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = s.GetUser(ctx, "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimsFlipOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: "1"}))

	now := time.Now().UTC()
	sub := activeSub("1", "vip-signals", now.Add(-time.Minute))
	require.NoError(t, s.CreateSubscription(ctx, sub))

	ok, err := s.ClaimReminder(ctx, sub.ID, Reminder3Day)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ClaimReminder(ctx, sub.ID, Reminder3Day)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.ClaimExpiry(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ClaimExpiry(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.RemindedAt3Day)
	assert.False(t, got.RemindedAt1Day)
}

func TestActiveTimedSubscriptionsSkipsLifetime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureUser(ctx, &models.User{ID: "1"}))

	require.NoError(t, s.CreateSubscription(ctx, activeSub("1", "vip-signals", time.Now().UTC().Add(time.Hour))))
	require.NoError(t, s.CreateSubscription(ctx, &models.Subscription{
		ID: uuid.NewString(), UserID: "1", PlanID: "lifetime-access", IsLifetime: true, IsActive: true, StartDate: time.Now().UTC(),
	}))

	timed, err := s.ActiveTimedSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, timed, 1)
	assert.Equal(t, "vip-signals", timed[0].PlanID)

	all, err := s.ListActiveSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byPlan, err := s.CountActiveByPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), byPlan["lifetime-access"])

	held, err := s.HasEverHeldPlan(ctx, "1", "free-trial")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestMissingRowsAreNotLoggedAsErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var buf bytes.Buffer
	quiet := NewStore(store.DB().Session(&gorm.Session{Logger: newGormLogger(&buf, "release")}))

	_, err := quiet.GetPayment(ctx, "never-paid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = quiet.GetPendingPayment(ctx, "never-started")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotContains(t, buf.String(), "record not found")

	// Real failures still reach the log.
	err = quiet.DB().WithContext(ctx).Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)
	assert.Contains(t, buf.String(), "no_such_table")
}
