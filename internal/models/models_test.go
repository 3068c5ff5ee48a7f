package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name   string
		expiry *time.Time
		want   int
	}{
		{name: "thirty days", expiry: at(30 * 24 * time.Hour), want: 30},
		{name: "partial day rounds up", expiry: at(36 * time.Hour), want: 2},
		{name: "one hour left", expiry: at(time.Hour), want: 1},
		{name: "exactly now", expiry: at(0), want: 0},
		{name: "past expiry", expiry: at(-25 * time.Hour), want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{ExpiryDate: tt.expiry}
			assert.Equal(t, tt.want, sub.DaysRemaining(now))
		})
	}

	lifetime := &Subscription{IsLifetime: true}
	assert.Equal(t, math.MaxInt, lifetime.DaysRemaining(now))
}

func TestSubscriptionEntitles(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, (&Subscription{IsActive: true, ExpiryDate: &future}).Entitles(now))
	assert.False(t, (&Subscription{IsActive: true, ExpiryDate: &past}).Entitles(now))
	assert.False(t, (&Subscription{IsActive: false, ExpiryDate: &future}).Entitles(now))
	assert.True(t, (&Subscription{IsActive: true, IsLifetime: true}).Entitles(now))
	assert.False(t, (&Subscription{IsActive: true}).Entitles(now))
}

func TestPaystackMetadataUnmarshal(t *testing.T) {
	var ev PaystackEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event":"charge.success","data":{"reference":"r1","amount":20000,"metadata":{"telegram_user_id":"77","plan_id":"vip-signals"}}}`), &ev))
	assert.Equal(t, "77", ev.Data.Metadata.UserID)
	assert.Equal(t, "vip-signals", ev.Data.Metadata.PlanID)

	var tx PaystackTransaction
	require.NoError(t, json.Unmarshal([]byte(`{"reference":"r2","metadata":""}`), &tx))
	assert.Empty(t, tx.Metadata.UserID)

	require.NoError(t, json.Unmarshal([]byte(`{"reference":"r3","metadata":"{\"telegram_user_id\":\"9\",\"plan_id\":\"pro-trader-plan\"}"}`), &tx))
	assert.Equal(t, "9", tx.Metadata.UserID)
	assert.Equal(t, "pro-trader-plan", tx.Metadata.PlanID)

	var empty PaystackTransaction
	require.NoError(t, json.Unmarshal([]byte(`{"reference":"r4","metadata":null}`), &empty))
	assert.Empty(t, empty.Metadata.PlanID)
}
