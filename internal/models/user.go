package models

import (
	"time"
)

// User is a messaging identity that can hold subscriptions.
// Users are created on first interaction and never deleted.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	Email     string    `json:"email,omitempty" gorm:"size:255"`
	FirstName string    `json:"first_name,omitempty" gorm:"size:255"`
	Username  string    `json:"username,omitempty" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name
func (User) TableName() string {
	return "users"
}
