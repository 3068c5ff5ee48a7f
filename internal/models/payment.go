package models

import (
	"time"
)

// Payment channels
const (
	ChannelWebhook  = "webhook"
	ChannelVerify   = "verify"
	ChannelRedirect = "redirect"
	ChannelAdmin    = "admin"
	ChannelTrial    = "trial"
)

// Payment is the append-only audit record of a completed transaction.
// Exactly one row exists per provider reference.
type Payment struct {
	Reference        string    `json:"reference" gorm:"primaryKey;size:128"`
	UserID           string    `json:"user_id" gorm:"not null;size:64;index"`
	PlanID           string    `json:"plan_id" gorm:"not null;size:64"`
	AmountMinorUnits int64     `json:"amount_minor_units"`
	Currency         string    `json:"currency" gorm:"size:8"`
	Channel          string    `json:"channel" gorm:"size:16"`
	SubscriptionID   string    `json:"subscription_id" gorm:"size:36"`
	CompletedAt      time.Time `json:"completed_at"`
}

// TableName sets the table name
func (Payment) TableName() string {
	return "payments"
}

// PendingPayment is an initialized provider transaction awaiting confirmation.
type PendingPayment struct {
	Reference string    `json:"reference" gorm:"primaryKey;size:128"`
	UserID    string    `json:"user_id" gorm:"not null;size:64"`
	PlanID    string    `json:"plan_id" gorm:"not null;size:64"`
	Email     string    `json:"email" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name
func (PendingPayment) TableName() string {
	return "pending_payments"
}

// PendingCheckout remembers which plan a user picked while we wait for their email.
type PendingCheckout struct {
	UserID    string    `json:"user_id" gorm:"primaryKey;size:64"`
	PlanID    string    `json:"plan_id" gorm:"not null;size:64"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName sets the table name
func (PendingCheckout) TableName() string {
	return "pending_checkouts"
}
