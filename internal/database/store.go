package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"membership-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = gorm.ErrRecordNotFound

// Store is the ledger: every read and write of users, subscriptions,
// payments and pending intents goes through it.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn inside one database transaction. The Store passed to fn
// is bound to that transaction and must not escape it.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IsUniqueViolation reports whether err came from a unique or primary key constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// ---- users ----

// EnsureUser inserts the user when missing and leaves an existing row untouched.
func (s *Store) EnsureUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(user).Error
}

// GetUser returns ErrNotFound for unknown ids.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserEmail stores the contact email, creating the user if needed.
func (s *Store) SetUserEmail(ctx context.Context, id, email string) error {
	user := &models.User{ID: id, Email: email}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "updated_at"}),
		}).
		Create(user).Error
}

// CountUsers returns the number of known users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

// ---- pending intents ----

// PutPendingCheckout remembers the plan a user chose before giving an email.
func (s *Store) PutPendingCheckout(ctx context.Context, userID, planID string) error {
	pc := &models.PendingCheckout{UserID: userID, PlanID: planID, CreatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"plan_id", "created_at"}),
		}).
		Create(pc).Error
}

// TakePendingCheckout returns and removes the pending checkout, or ErrNotFound.
func (s *Store) TakePendingCheckout(ctx context.Context, userID string) (*models.PendingCheckout, error) {
	var pc models.PendingCheckout
	err := s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.Where("user_id = ?", userID).First(&pc).Error; err != nil {
			return err
		}
		return tx.db.Delete(&models.PendingCheckout{}, "user_id = ?", userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// CreatePendingPayment records an initialized provider transaction.
func (s *Store) CreatePendingPayment(ctx context.Context, p *models.PendingPayment) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// GetPendingPayment returns ErrNotFound when no intent exists for the reference.
func (s *Store) GetPendingPayment(ctx context.Context, reference string) (*models.PendingPayment, error) {
	var p models.PendingPayment
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePendingPayment is a no-op for unknown references.
func (s *Store) DeletePendingPayment(ctx context.Context, reference string) error {
	return s.db.WithContext(ctx).Delete(&models.PendingPayment{}, "reference = ?", reference).Error
}

// ---- payments ----

// GetPayment returns ErrNotFound when the reference was never reconciled.
func (s *Store) GetPayment(ctx context.Context, reference string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePayment appends the audit record. A second insert for the same
// reference fails with a unique violation.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// PaymentTotals returns the number of payments and their summed amount.
func (s *Store) PaymentTotals(ctx context.Context) (count int64, revenue int64, err error) {
	var row struct {
		Count   int64
		Revenue int64
	}
	err = s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount_minor_units), 0) AS revenue").
		Scan(&row).Error
	return row.Count, row.Revenue, err
}

// ---- subscriptions ----

// LockActiveSubscriptions returns the active rows for (user, plan), locking
// them for update where the database supports row locks.
func (s *Store) LockActiveSubscriptions(ctx context.Context, userID, planID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND plan_id = ? AND is_active = ?", userID, planID, true).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// DeactivateSubscriptions flips is_active off for the given ids.
func (s *Store) DeactivateSubscriptions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id IN ?", ids).
		Update("is_active", false).Error
}

// CreateSubscription inserts a new row.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return s.db.WithContext(ctx).Create(sub).Error
}

// GetSubscription returns ErrNotFound for unknown ids.
func (s *Store) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActiveSubscriptionsForUser returns rows that still grant access at now.
func (s *Store) ActiveSubscriptionsForUser(ctx context.Context, userID string, now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Where(s.db.Where("is_lifetime = ?", true).Or("expiry_date > ?", now)).
		Order("created_at ASC").
		Find(&subs).Error
	return subs, err
}

// SubscriptionsForUser returns the user's whole history, newest first.
func (s *Store) SubscriptionsForUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// HasEverHeldPlan reports whether any row, active or not, exists for (user, plan).
func (s *Store) HasEverHeldPlan(ctx context.Context, userID, planID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND plan_id = ?", userID, planID).
		Count(&n).Error
	return n > 0, err
}

// ActiveTimedSubscriptions returns every active, non-lifetime row. Lifetime
// rows are never returned.
func (s *Store) ActiveTimedSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND is_lifetime = ?", true, false).
		Order("expiry_date ASC").
		Find(&subs).Error
	return subs, err
}

// ListActiveSubscriptions returns every active row including lifetime ones.
func (s *Store) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("user_id, plan_id").Find(&subs).Error
	return subs, err
}

// CountActiveByPlan returns active row counts keyed by plan id.
func (s *Store) CountActiveByPlan(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		PlanID string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("plan_id, COUNT(*) AS count").
		Where("is_active = ?", true).
		Group("plan_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.PlanID] = r.Count
	}
	return out, nil
}

// Reminder identifies one of the pre-expiry reminder flags.
type Reminder string

const (
	Reminder3Day Reminder = "reminded_at3_day"
	Reminder1Day Reminder = "reminded_at1_day"
)

// ClaimReminder sets the reminder flag if it is still unset on an active row.
// It returns true only for the caller that flipped it.
func (s *Store) ClaimReminder(ctx context.Context, id string, which Reminder) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND is_active = ? AND "+string(which)+" = ?", id, true, false).
		Update(string(which), true)
	return res.RowsAffected == 1, res.Error
}

// ClaimExpiry deactivates an active row whose expiry has passed.
// It returns true only for the caller that flipped it.
func (s *Store) ClaimExpiry(ctx context.Context, id string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND is_active = ? AND is_lifetime = ? AND expiry_date <= ?", id, true, false, now).
		Update("is_active", false)
	return res.RowsAffected == 1, res.Error
}
