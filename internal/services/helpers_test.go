package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"membership-api/internal/catalog"
	"membership-api/internal/database"
	"membership-api/internal/models"

	"github.com/stretchr/testify/require"
)

const testSecret = "sk_test_secret"

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeProvider struct {
	mu          sync.Mutex
	statuses    map[string]models.PaystackTransaction
	verifyErr   error
	initErr     error
	initialized []InitializeRequest
	verifyCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{statuses: make(map[string]models.PaystackTransaction)}
}

func (p *fakeProvider) Initialize(_ context.Context, req InitializeRequest) (*InitializeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = append(p.initialized, req)
	if p.initErr != nil {
		return nil, p.initErr
	}
	return &InitializeResult{AuthorizationURL: "https://checkout.test/" + req.Reference, Reference: req.Reference}, nil
}

func (p *fakeProvider) Verify(_ context.Context, reference string) (*models.PaystackTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyCalls++
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	tx, ok := p.statuses[reference]
	if !ok {
		return &models.PaystackTransaction{Reference: reference, Status: "failed"}, nil
	}
	return &tx, nil
}

func (p *fakeProvider) VerifySignature(body []byte, signature string) bool {
	return hmac.Equal([]byte(signPaystack(body)), []byte(signature))
}

func (p *fakeProvider) setStatus(reference, status string, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[reference] = models.PaystackTransaction{Reference: reference, Status: status, Amount: amount, Currency: "GHS"}
}

// setPaid marks reference successful with the checkout metadata attached.
func (p *fakeProvider) setPaid(reference, userID, planID string, amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses[reference] = models.PaystackTransaction{
		Reference: reference,
		Status:    StatusSuccess,
		Amount:    amount,
		Currency:  "GHS",
		Metadata:  models.PaystackMetadata{UserID: userID, PlanID: planID},
	}
}

func signPaystack(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type sentMessage struct {
	To  string
	Msg Message
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *fakeMessenger) Send(_ context.Context, to string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{To: to, Msg: msg})
	return nil
}

func (m *fakeMessenger) to(recipient string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, s := range m.sent {
		if s.To == recipient {
			out = append(out, s.Msg)
		}
	}
	return out
}

type fakeGroups struct {
	mu      sync.Mutex
	members map[string]bool
	grants  int
	revokes int
	err     error
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{members: make(map[string]bool)}
}

func (g *fakeGroups) key(group Group, userID string) string {
	return fmt.Sprintf("%s@%d", userID, group.ChatID)
}

func (g *fakeGroups) Grant(_ context.Context, group Group, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants++
	if g.err != nil {
		return "", g.err
	}
	g.members[g.key(group, userID)] = true
	return group.InviteLink, nil
}

func (g *fakeGroups) Revoke(_ context.Context, group Group, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revokes++
	if g.err != nil {
		return g.err
	}
	delete(g.members, g.key(group, userID))
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) SendEmail(_ context.Context, to, subject, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+": "+subject)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []SubscriptionEvent
}

func (e *fakeEvents) Publish(ev SubscriptionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

type testEnv struct {
	store       *database.Store
	clock       *testClock
	manager     *SubscriptionManager
	provider    *fakeProvider
	messenger   *fakeMessenger
	groups      *fakeGroups
	mailer      *fakeMailer
	events      *fakeEvents
	fulfillment *Fulfillment
	reconciler  *Reconciler
	checkout    *CheckoutService
	sweeper     *Sweeper
	admin       *AdminService
}

const testOperator = "999"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open("", filepath.Join(t.TempDir(), "test.db"), "release")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	env := &testEnv{
		store:     database.NewStore(db),
		clock:     &testClock{t: testBase},
		provider:  newFakeProvider(),
		messenger: &fakeMessenger{},
		groups:    newFakeGroups(),
		mailer:    &fakeMailer{},
		events:    &fakeEvents{},
	}
	env.manager = NewSubscriptionManager(env.store, catalog.Default())
	env.manager.SetClock(env.clock.Now)

	bindings := map[string]Group{
		"free-trial":      {ChatID: -1001, InviteLink: "https://t.me/+trial"},
		"vip-signals":     {ChatID: -1002, InviteLink: "https://t.me/+vip"},
		"pro-trader-plan": {ChatID: -1003, InviteLink: "https://t.me/+pro"},
		"lifetime-access": {ChatID: -1004, InviteLink: "https://t.me/+life"},
	}
	notifier := NewNotifier(env.messenger, testOperator, time.Second)
	env.fulfillment = NewFulfillment(env.store, notifier, env.groups, bindings, FulfillmentOptions{
		Mailer:   env.mailer,
		Events:   env.events,
		Currency: "GHS",
		Timeout:  5 * time.Second,
	})
	env.fulfillment.now = env.clock.Now

	locker := NewLocalLocker()
	env.reconciler = NewReconciler(env.store, env.manager, env.provider, locker, nil, env.fulfillment, 0)
	env.checkout = NewCheckoutService(env.store, env.manager, env.provider, locker, env.fulfillment, "GHS", "https://bot.test/payment/callback")
	env.sweeper = NewSweeper(env.store, env.manager, env.fulfillment, 4)
	env.admin = NewAdminService(testOperator, env.store, env.manager, env.fulfillment, env.sweeper, "GHS")
	return env
}

func webhookBody(t *testing.T, event, reference, userID, planID string, amount int64) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"status":    "success",
			"amount":    amount,
			"currency":  "GHS",
			"metadata": map[string]any{
				"telegram_user_id": userID,
				"plan_id":          planID,
			},
		},
	})
	require.NoError(t, err)
	return body
}

// paidCheckout runs a checkout for a user with an email and returns the reference.
func paidCheckout(t *testing.T, env *testEnv, userID, planID string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.SetUserEmail(ctx, userID, userID+"@example.com"))
	res, err := env.checkout.StartCheckout(ctx, userID, planID)
	require.NoError(t, err)
	return res.Reference
}
