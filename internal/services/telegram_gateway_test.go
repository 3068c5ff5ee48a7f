package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu     sync.Mutex
	calls  []string
	forms  []map[string]string
	banErr string
}

func (f *fakeBotAPI) handler(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseForm()
	form := make(map[string]string)
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}

	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.forms = append(f.forms, form)
	banErr := f.banErr
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Bot","username":"test_bot"}}`))
	case "sendMessage":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	case "banChatMember":
		if banErr != "" {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"` + banErr + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func newTestGateway(t *testing.T) (*TelegramGateway, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	gw, err := NewTelegramGateway("token", srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)
	return gw, api
}

func TestTelegramSend(t *testing.T) {
	gw, api := newTestGateway(t)

	err := gw.Send(context.Background(), "42", Message{
		Text:    "<b>hi</b>",
		Buttons: []Button{{Text: "Join", URL: "https://t.me/+vip"}, {Text: "Renew", Data: "renew:vip-signals"}},
	})
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Equal(t, []string{"getMe", "sendMessage"}, api.calls)
	form := api.forms[1]
	assert.Equal(t, "42", form["chat_id"])
	assert.Equal(t, "HTML", form["parse_mode"])
	assert.Contains(t, form["reply_markup"], "https://t.me/+vip")
	assert.Contains(t, form["reply_markup"], "renew:vip-signals")
}

func TestTelegramSendRejectsBadID(t *testing.T) {
	gw, _ := newTestGateway(t)
	assert.Error(t, gw.Send(context.Background(), "not-a-number", Message{Text: "x"}))
}

func TestTelegramRevokeKicksAndUnbans(t *testing.T) {
	gw, api := newTestGateway(t)

	require.NoError(t, gw.Revoke(context.Background(), Group{ChatID: -1002}, "42"))

	api.mu.Lock()
	assert.Equal(t, []string{"getMe", "banChatMember", "unbanChatMember"}, api.calls)
	assert.Equal(t, "-1002", api.forms[1]["chat_id"])
	assert.Equal(t, "42", api.forms[1]["user_id"])
	assert.Equal(t, "true", api.forms[2]["only_if_banned"])
	api.banErr = "Bad Request: PARTICIPANT_ID_INVALID"
	api.mu.Unlock()

	// Revoking someone who already left succeeds.
	assert.NoError(t, gw.Revoke(context.Background(), Group{ChatID: -1002}, "42"))

	api.mu.Lock()
	api.banErr = "Bad Request: not enough rights to restrict/unrestrict chat member"
	api.mu.Unlock()
	assert.Error(t, gw.Revoke(context.Background(), Group{ChatID: -1002}, "42"))
}

func TestTelegramGrantReturnsInviteLink(t *testing.T) {
	gw, api := newTestGateway(t)

	link, err := gw.Grant(context.Background(), Group{ChatID: -1002, InviteLink: "https://t.me/+vip"}, "42")
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+vip", link)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"getMe", "unbanChatMember"}, api.calls)
}
