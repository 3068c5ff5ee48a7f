package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEscapesUserData(t *testing.T) {
	text, err := Render(TmplOperatorAlert, messageData{
		UserID:   "42",
		PlanName: "VIP Signals",
		Action:   "Group access grant",
		Error:    "<script>",
	})
	require.NoError(t, err)
	assert.Contains(t, text, "&lt;script&gt;")
	assert.NotContains(t, text, "<script>")
}

func TestRenderReminderPluralization(t *testing.T) {
	one, err := Render(TmplReminder, messageData{PlanName: "VIP Signals", Days: 1, Expiry: "02 Mar 2026"})
	require.NoError(t, err)
	assert.Contains(t, one, "<b>1 day</b>")

	three, err := Render(TmplReminder, messageData{PlanName: "VIP Signals", Days: 3, Expiry: "04 Mar 2026"})
	require.NoError(t, err)
	assert.Contains(t, three, "<b>3 days</b>")

	_, err = Render("missing", nil)
	assert.Error(t, err)
}

func TestNotifyOperatorWithoutOperator(t *testing.T) {
	m := &fakeMessenger{}
	n := NewNotifier(m, "", 0)
	assert.NoError(t, n.NotifyOperator(context.Background(), TmplOperatorExpired, messageData{}))
	assert.Empty(t, m.sent)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "GHS 200.00", FormatAmount(20000, "GHS"))
	assert.Equal(t, "GHS 0.05", FormatAmount(5, "GHS"))
	assert.Equal(t, "GHS -1.50", FormatAmount(-150, "GHS"))
}
