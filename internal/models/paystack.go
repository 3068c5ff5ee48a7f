package models

import "encoding/json"

// PaystackEvent is the envelope Paystack posts to the webhook endpoint.
type PaystackEvent struct {
	Event string              `json:"event"` // e.g. "charge.success"
	Data  PaystackTransaction `json:"data"`
}

// PaystackTransaction is the transaction payload shared by webhooks and verify responses.
type PaystackTransaction struct {
	ID        int64            `json:"id"`
	Status    string           `json:"status"` // success, pending, failed, abandoned, ...
	Reference string           `json:"reference"`
	Amount    int64            `json:"amount"` // minor units
	Currency  string           `json:"currency"`
	PaidAt    string           `json:"paid_at,omitempty"`
	Metadata  PaystackMetadata `json:"metadata"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// PaystackMetadata is what we attach at initialization and read back as a fallback.
type PaystackMetadata struct {
	UserID   string `json:"telegram_user_id"`
	PlanID   string `json:"plan_id"`
	PlanName string `json:"plan_name,omitempty"`
}

// UnmarshalJSON accepts the metadata as an object, a JSON-encoded string, or an empty string.
func (m *PaystackMetadata) UnmarshalJSON(data []byte) error {
	type plain PaystackMetadata
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = PaystackMetadata{}
			return nil
		}
		data = []byte(s)
	}
	if string(data) == "null" {
		*m = PaystackMetadata{}
		return nil
	}
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = PaystackMetadata(p)
	return nil
}
