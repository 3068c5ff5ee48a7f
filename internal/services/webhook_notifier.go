package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"membership-api/internal/models"
	"membership-api/pkg/logging"
)

// Outbound event names.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionExpired   = "subscription.expired"
)

// SignatureHeader carries the hex HMAC-SHA256 of the event body.
const SignatureHeader = "X-Membership-Signature"

// SubscriptionEvent is the payload POSTed to the event webhook.
type SubscriptionEvent struct {
	Event          string `json:"event"`
	SubscriptionID string `json:"subscription_id"`
	UserID         string `json:"user_id"`
	PlanID         string `json:"plan_id"`
	IsLifetime     bool   `json:"is_lifetime"`
	ExpiryDate     string `json:"expiry_date,omitempty"` // RFC 3339
	Reference      string `json:"payment_reference"`
	Channel        string `json:"channel,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewSubscriptionEvent builds an event for sub.
func NewSubscriptionEvent(event string, sub *models.Subscription, channel string, now time.Time) SubscriptionEvent {
	ev := SubscriptionEvent{
		Event:          event,
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		IsLifetime:     sub.IsLifetime,
		Reference:      sub.PaymentReference,
		Channel:        channel,
		Timestamp:      now.Format(time.RFC3339),
	}
	if sub.ExpiryDate != nil {
		ev.ExpiryDate = sub.ExpiryDate.Format(time.RFC3339)
	}
	return ev
}

// WebhookNotifier posts subscription events to an external endpoint.
type WebhookNotifier struct {
	url         string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration
	wg          sync.WaitGroup
}

// NewWebhookNotifier creates a notifier for url. An empty url disables it.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Retry schedule: 1s, 5s, 30s
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Publish sends the event in the background.
func (wn *WebhookNotifier) Publish(event SubscriptionEvent) {
	if wn.url == "" {
		return
	}
	wn.wg.Add(1)
	go func() {
		defer wn.wg.Done()
		wn.sendWithRetry(event)
	}()
}

// Wait blocks until all in-flight events are delivered or abandoned.
func (wn *WebhookNotifier) Wait() {
	wn.wg.Wait()
}

func (wn *WebhookNotifier) sendWithRetry(event SubscriptionEvent) {
	maxRetries := len(wn.retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := wn.send(event)
		if err == nil {
			logging.Infof("Event webhook sent - event: %s, subscription: %s, attempt: %d",
				event.Event, event.SubscriptionID, attempt+1)
			return
		}

		logging.Errorf("Event webhook failed - event: %s, subscription: %s, attempt: %d, error: %v",
			event.Event, event.SubscriptionID, attempt+1, err)

		if attempt < maxRetries-1 {
			time.Sleep(wn.retryDelays[attempt])
		}
	}

	logging.Errorf("Event webhook failed after %d attempts - event: %s, subscription: %s",
		maxRetries, event.Event, event.SubscriptionID)
}

func (wn *WebhookNotifier) send(event SubscriptionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, wn.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Membership-Webhook/1.0")
	if wn.secret != "" {
		req.Header.Set(SignatureHeader, SignEvent(body, wn.secret))
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// SignEvent returns the hex HMAC-SHA256 of body keyed with secret.
func SignEvent(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
