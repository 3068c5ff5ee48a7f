package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway is the Messenger and GroupController backed by the Bot API.
type TelegramGateway struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramGateway authenticates the bot. endpoint is a Bot API URL
// format string such as "https://api.telegram.org/bot%s/%s".
func NewTelegramGateway(token, endpoint string, client *http.Client) (*TelegramGateway, error) {
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return &TelegramGateway{bot: bot}, nil
}

// Send delivers msg to the chat of recipient.
func (g *TelegramGateway) Send(ctx context.Context, recipient string, msg Message) error {
	chatID, err := parseChatID(recipient)
	if err != nil {
		return err
	}

	out := tgbotapi.NewMessage(chatID, msg.Text)
	out.ParseMode = tgbotapi.ModeHTML
	out.DisableWebPagePreview = true
	if len(msg.Buttons) > 0 {
		out.ReplyMarkup = inlineKeyboard(msg.Buttons)
	}

	return g.do(ctx, func() error {
		_, err := g.bot.Send(out)
		return err
	})
}

// Grant lifts any earlier ban so the user can join through the invite link,
// and returns that link. Users that were never banned are left alone.
func (g *TelegramGateway) Grant(ctx context.Context, group Group, userID string) (string, error) {
	uid, err := parseChatID(userID)
	if err != nil {
		return "", err
	}
	err = g.do(ctx, func() error {
		_, err := g.bot.Request(tgbotapi.UnbanChatMemberConfig{
			ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: group.ChatID, UserID: uid},
			OnlyIfBanned:     true,
		})
		return err
	})
	if err != nil && !isNotMember(err) {
		return group.InviteLink, fmt.Errorf("failed to unban %s in %d: %w", userID, group.ChatID, err)
	}
	return group.InviteLink, nil
}

// Revoke removes the user from the group: ban, then unban so they can
// rejoin later with a new subscription.
func (g *TelegramGateway) Revoke(ctx context.Context, group Group, userID string) error {
	uid, err := parseChatID(userID)
	if err != nil {
		return err
	}
	member := tgbotapi.ChatMemberConfig{ChatID: group.ChatID, UserID: uid}

	err = g.do(ctx, func() error {
		_, err := g.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member})
		return err
	})
	if err != nil && !isNotMember(err) {
		return fmt.Errorf("failed to remove %s from %d: %w", userID, group.ChatID, err)
	}

	err = g.do(ctx, func() error {
		_, err := g.bot.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
		return err
	})
	if err != nil && !isNotMember(err) {
		return fmt.Errorf("failed to unban %s in %d: %w", userID, group.ChatID, err)
	}
	return nil
}

// do runs a Bot API call, giving up when ctx ends. The library has no
// context support, so an abandoned call finishes in the background.
func (g *TelegramGateway) do(ctx context.Context, call func() error) error {
	done := make(chan error, 1)
	go func() { done <- call() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func inlineKeyboard(buttons []Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		if b.URL != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func parseChatID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram id %q: %w", id, err)
	}
	return n, nil
}

// isNotMember matches Bot API answers meaning the user is not in the chat.
func isNotMember(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		var valErr tgbotapi.Error
		if !errors.As(err, &valErr) {
			return false
		}
		apiErr = &valErr
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "user not found") ||
		strings.Contains(msg, "participant_id_invalid") ||
		strings.Contains(msg, "user_not_participant")
}
