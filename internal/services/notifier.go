package services

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// Button is an inline action attached to a message. Exactly one of URL or
// Data is set.
type Button struct {
	Text string
	URL  string
	Data string
}

// Message is a rendered chat message. Text uses Telegram HTML markup.
type Message struct {
	Text    string
	Buttons []Button
}

// Messenger delivers messages to a chat identity.
type Messenger interface {
	Send(ctx context.Context, recipient string, msg Message) error
}

// Message template names.
const (
	TmplActivated         = "activated"
	TmplTrialActivated    = "trial_activated"
	TmplReminder          = "reminder"
	TmplExpired           = "expired"
	TmplOperatorActivated = "operator_activated"
	TmplOperatorExpired   = "operator_expired"
	TmplOperatorAlert     = "operator_alert"
)

var messageTemplates = template.Must(template.New("messages").Parse(`
{{define "activated"}}✅ <b>Payment confirmed!</b>

Your <b>{{html .PlanName}}</b> subscription is now active.
{{if .Lifetime}}You have lifetime access. 🎉{{else}}Expires: <b>{{.Expiry}}</b> ({{.Days}} days){{end}}
{{if .InviteLink}}
Join your group: {{.InviteLink}}
{{end}}
Reference: <code>{{html .Reference}}</code>{{end}}

{{define "trial_activated"}}🎁 <b>Your free trial is active!</b>

You have <b>{{.Days}} days</b> of {{html .PlanName}} until <b>{{.Expiry}}</b>.
{{if .InviteLink}}
Join your group: {{.InviteLink}}
{{end}}{{end}}

{{define "reminder"}}⏰ <b>Subscription reminder</b>

Your <b>{{html .PlanName}}</b> subscription expires in <b>{{.Days}} day{{if ne .Days 1}}s{{end}}</b> ({{.Expiry}}).

Renew now to keep your access.{{end}}

{{define "expired"}}⌛ <b>Subscription expired</b>

Your <b>{{html .PlanName}}</b> subscription has ended and your group access was removed.

Subscribe again any time to continue.{{end}}

{{define "operator_activated"}}💰 <b>New activation</b>

User: <code>{{html .UserID}}</code>
Plan: {{html .PlanName}}
Channel: {{.Channel}}
Amount: {{.Amount}}
Reference: <code>{{html .Reference}}</code>{{end}}

{{define "operator_expired"}}📉 <b>Subscription expired</b>

User: <code>{{html .UserID}}</code>
Plan: {{html .PlanName}}{{end}}

{{define "operator_alert"}}⚠️ <b>{{html .Action}} failed</b>

User: <code>{{html .UserID}}</code>
Plan: {{html .PlanName}}
Error: {{html .Error}}{{end}}
`))

// Notifier renders named templates and hands them to a Messenger.
type Notifier struct {
	messenger  Messenger
	operatorID string
	timeout    time.Duration
}

// NewNotifier creates a notifier. Each send is bounded by timeout.
func NewNotifier(messenger Messenger, operatorID string, timeout time.Duration) *Notifier {
	return &Notifier{messenger: messenger, operatorID: operatorID, timeout: timeout}
}

// Notify sends template name rendered with data to userID.
func (n *Notifier) Notify(ctx context.Context, userID, name string, data any, buttons ...Button) error {
	text, err := Render(name, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.messenger.Send(ctx, userID, Message{Text: text, Buttons: buttons}); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", name, userID, err)
	}
	return nil
}

// NotifyOperator sends template name to the configured operator, if any.
func (n *Notifier) NotifyOperator(ctx context.Context, name string, data any) error {
	if n.operatorID == "" {
		return nil
	}
	return n.Notify(ctx, n.operatorID, name, data)
}

// Render executes a message template.
func Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
