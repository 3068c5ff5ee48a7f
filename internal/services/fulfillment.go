package services

import (
	"context"
	"fmt"
	"time"

	"membership-api/internal/database"
	"membership-api/internal/models"
	"membership-api/pkg/logging"
)

// Group identifies the gated chat a plan unlocks.
type Group struct {
	ChatID     int64
	InviteLink string
}

// GroupController grants and revokes membership. Both operations are
// idempotent: granting a member or revoking a non-member succeeds.
type GroupController interface {
	Grant(ctx context.Context, group Group, userID string) (inviteLink string, err error)
	Revoke(ctx context.Context, group Group, userID string) error
}

// Mailer sends transactional email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error
}

// EventPublisher forwards lifecycle events to an external system.
type EventPublisher interface {
	Publish(event SubscriptionEvent)
}

// messageData feeds the message templates.
type messageData struct {
	UserID     string
	PlanName   string
	Lifetime   bool
	Expiry     string
	Days       int
	InviteLink string
	Reference  string
	Channel    string
	Amount     string
	Action     string
	Error      string
}

// Fulfillment performs the side effects that follow a state transition:
// group access, user and operator messages, receipts and events. Failures are
// logged and reported to the operator; they never undo the transition.
type Fulfillment struct {
	store    *database.Store
	notifier *Notifier
	groups   GroupController
	bindings map[string]Group
	mailer   Mailer
	events   EventPublisher
	currency string
	timeout  time.Duration
	now      func() time.Time
}

// FulfillmentOptions collects the optional collaborators.
type FulfillmentOptions struct {
	Mailer   Mailer
	Events   EventPublisher
	Currency string
	Timeout  time.Duration
}

// NewFulfillment wires the side-effect adapters. bindings maps plan id to group.
func NewFulfillment(store *database.Store, notifier *Notifier, groups GroupController, bindings map[string]Group, opts FulfillmentOptions) *Fulfillment {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Fulfillment{
		store:    store,
		notifier: notifier,
		groups:   groups,
		bindings: bindings,
		mailer:   opts.Mailer,
		events:   opts.Events,
		currency: opts.Currency,
		timeout:  opts.Timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Activated grants access and announces a new or extended subscription.
// channel is the payment channel that produced it.
func (f *Fulfillment) Activated(ctx context.Context, sub *models.Subscription, channel string, amountMinorUnits int64) {
	ctx, cancel := f.detach(ctx)
	defer cancel()

	data := f.dataFor(sub)
	data.Channel = channel
	data.Amount = FormatAmount(amountMinorUnits, f.currency)

	if group, ok := f.bindings[sub.PlanID]; ok && group.ChatID != 0 {
		link, err := f.groups.Grant(ctx, group, sub.UserID)
		if err != nil {
			f.alert(ctx, "Group access grant", sub, err)
		}
		data.InviteLink = link
	}

	tmpl := TmplActivated
	if channel == models.ChannelTrial {
		tmpl = TmplTrialActivated
	}
	var buttons []Button
	if data.InviteLink != "" {
		buttons = append(buttons, Button{Text: "Join " + sub.PlanName, URL: data.InviteLink})
	}
	if err := f.notifier.Notify(ctx, sub.UserID, tmpl, data, buttons...); err != nil {
		logging.Errorf("Activation notice failed - user: %s, reference: %s, error: %v", sub.UserID, sub.PaymentReference, err)
	}
	if err := f.notifier.NotifyOperator(ctx, TmplOperatorActivated, data); err != nil {
		logging.Errorf("Operator activation notice failed - reference: %s, error: %v", sub.PaymentReference, err)
	}

	f.email(ctx, sub.UserID, fmt.Sprintf("Your %s subscription is active", sub.PlanName), TmplActivated, data)
	f.publish(EventSubscriptionActivated, sub, channel)
}

// Reminder tells the user their subscription ends in days.
func (f *Fulfillment) Reminder(ctx context.Context, sub *models.Subscription, days int) error {
	ctx, cancel := f.detach(ctx)
	defer cancel()

	data := f.dataFor(sub)
	data.Days = days
	return f.notifier.Notify(ctx, sub.UserID, TmplReminder, data,
		Button{Text: "Renew " + sub.PlanName, Data: "renew:" + sub.PlanID})
}

// Expired revokes access and tells the user and the operator.
func (f *Fulfillment) Expired(ctx context.Context, sub *models.Subscription) {
	ctx, cancel := f.detach(ctx)
	defer cancel()

	data := f.dataFor(sub)

	if group, ok := f.bindings[sub.PlanID]; ok && group.ChatID != 0 {
		if err := f.groups.Revoke(ctx, group, sub.UserID); err != nil {
			f.alert(ctx, "Group access revoke", sub, err)
		}
	}

	if err := f.notifier.Notify(ctx, sub.UserID, TmplExpired, data,
		Button{Text: "Subscribe again", Data: "renew:" + sub.PlanID}); err != nil {
		logging.Errorf("Expiry notice failed - user: %s, subscription: %s, error: %v", sub.UserID, sub.ID, err)
	}
	if err := f.notifier.NotifyOperator(ctx, TmplOperatorExpired, data); err != nil {
		logging.Errorf("Operator expiry notice failed - subscription: %s, error: %v", sub.ID, err)
	}

	f.email(ctx, sub.UserID, fmt.Sprintf("Your %s subscription has expired", sub.PlanName), TmplExpired, data)
	f.publish(EventSubscriptionExpired, sub, "")
}

func (f *Fulfillment) dataFor(sub *models.Subscription) messageData {
	data := messageData{
		UserID:    sub.UserID,
		PlanName:  sub.PlanName,
		Lifetime:  sub.IsLifetime,
		Reference: sub.PaymentReference,
	}
	if sub.ExpiryDate != nil {
		data.Expiry = sub.ExpiryDate.Format("02 Jan 2006")
		data.Days = sub.DaysRemaining(f.now())
	}
	return data
}

func (f *Fulfillment) alert(ctx context.Context, action string, sub *models.Subscription, cause error) {
	logging.Errorf("%s failed - user: %s, plan: %s, error: %v", action, sub.UserID, sub.PlanID, cause)
	data := f.dataFor(sub)
	data.Action = action
	data.Error = cause.Error()
	if err := f.notifier.NotifyOperator(ctx, TmplOperatorAlert, data); err != nil {
		logging.Errorf("Operator alert failed - user: %s, error: %v", sub.UserID, err)
	}
}

func (f *Fulfillment) email(ctx context.Context, userID, subject, tmpl string, data messageData) {
	if f.mailer == nil {
		return
	}
	user, err := f.store.GetUser(ctx, userID)
	if err != nil || user.Email == "" {
		return
	}
	text, err := Render(tmpl, data)
	if err != nil {
		logging.Errorf("Email render failed - user: %s, error: %v", userID, err)
		return
	}
	if err := f.mailer.SendEmail(ctx, user.Email, subject, textToHTML(subject, text), stripTags(text)); err != nil {
		logging.Errorf("Email send failed - user: %s, error: %v", userID, err)
	}
}

func (f *Fulfillment) publish(event string, sub *models.Subscription, channel string) {
	if f.events == nil {
		return
	}
	f.events.Publish(NewSubscriptionEvent(event, sub, channel, f.now()))
}

// detach keeps side effects running after the triggering request ends,
// bounded by the fulfillment timeout.
func (f *Fulfillment) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
}

// FormatAmount renders minor units as "GHS 200.00".
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, minor/100, minor%100)
}
