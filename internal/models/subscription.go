package models

import (
	"math"
	"time"
)

// Subscription is one activation of a plan for a user.
// A (user, plan) pair may have many historical rows but at most one active row.
type Subscription struct {
	ID     string `json:"id" gorm:"primaryKey;size:36"`
	UserID string `json:"user_id" gorm:"not null;size:64;index"`
	PlanID string `json:"plan_id" gorm:"not null;size:64"`

	PlanName   string     `json:"plan_name" gorm:"size:255"`
	IsLifetime bool       `json:"is_lifetime"`
	StartDate  time.Time  `json:"start_date"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"` // nil for lifetime plans
	IsActive   bool       `json:"is_active"`

	PaymentReference string `json:"payment_reference" gorm:"size:128"`

	// Reminder flags only ever go from false to true for a given row.
	RemindedAt3Day bool `json:"reminded_at_3_day" gorm:"column:reminded_at3_day"`
	RemindedAt1Day bool `json:"reminded_at_1_day" gorm:"column:reminded_at1_day"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name
func (Subscription) TableName() string {
	return "subscriptions"
}

// DaysRemaining returns ceil((expiry - now) / 24h). Zero or negative means expired.
// Lifetime subscriptions report math.MaxInt.
func (s *Subscription) DaysRemaining(now time.Time) int {
	if s.IsLifetime || s.ExpiryDate == nil {
		return math.MaxInt
	}
	left := s.ExpiryDate.Sub(now)
	return int(math.Ceil(left.Hours() / 24))
}

// Entitles reports whether the row grants access at the given instant.
func (s *Subscription) Entitles(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	if s.IsLifetime {
		return true
	}
	return s.ExpiryDate != nil && s.ExpiryDate.After(now)
}
