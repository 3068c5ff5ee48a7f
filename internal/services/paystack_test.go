package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"membership-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaystackInitialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer "+testSecret, r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(20000), body["amount"])
		assert.Equal(t, "GHS", body["currency"])
		assert.Equal(t, "TFX_1_vip-signals_1", body["reference"])
		md := body["metadata"].(map[string]any)
		assert.Equal(t, "1", md["telegram_user_id"])

		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"TFX_1_vip-signals_1"}}`))
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, testSecret, time.Second)
	res, err := client.Initialize(context.Background(), InitializeRequest{
		Email:            "a@example.com",
		AmountMinorUnits: 20000,
		Currency:         "GHS",
		Reference:        "TFX_1_vip-signals_1",
		Metadata:         models.PaystackMetadata{UserID: "1", PlanID: "vip-signals"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
}

func TestPaystackVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transaction/verify/good":
			_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"status":"success","reference":"good","amount":50000,"currency":"GHS","metadata":{"telegram_user_id":"5","plan_id":"pro-trader-plan"}}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
		}
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, testSecret, time.Second)

	tx, err := client.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, tx.Status)
	assert.Equal(t, int64(50000), tx.Amount)
	assert.Equal(t, "pro-trader-plan", tx.Metadata.PlanID)

	tx, err = client.Verify(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "failed", tx.Status)
}

func TestPaystackUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/transaction/verify/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewPaystackClient(srv.URL, testSecret, 50*time.Millisecond)

	_, err := client.Verify(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrProviderUnreachable)

	_, err = client.Verify(context.Background(), "down")
	assert.ErrorIs(t, err, ErrProviderUnreachable)

	// Repeated failures open the breaker.
	for i := 0; i < 5; i++ {
		_, _ = client.Verify(context.Background(), "down")
	}
	_, err = client.Verify(context.Background(), "down")
	assert.ErrorIs(t, err, ErrProviderUnreachable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestPaystackSignature(t *testing.T) {
	client := NewPaystackClient("http://unused", testSecret, time.Second)
	body := []byte(`{"event":"charge.success"}`)

	assert.True(t, client.VerifySignature(body, signPaystack(body)))
	assert.False(t, client.VerifySignature(body, ""))
	assert.False(t, client.VerifySignature([]byte(`{"event":"charge.failed"}`), signPaystack(body)))

	unsigned := NewPaystackClient("http://unused", "", time.Second)
	assert.False(t, unsigned.VerifySignature(body, signPaystack(body)))
}
