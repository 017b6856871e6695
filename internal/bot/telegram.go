package bot

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"staff-ops/internal/render"
)

// Telegram adapts the bot API to the workflow transport. Threads are
// modeled as reply chains: the thread id is the id of a starter message
// posted under the channel mirror, and thread posts reply to it.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) SendDirect(ctx context.Context, userID string, p render.Payload) (string, error) {
	chat, err := parseChatID(userID)
	if err != nil {
		return "", err
	}
	return t.send(chat, 0, p)
}

func (t *Telegram) PostChannel(ctx context.Context, channelID string, p render.Payload) (string, error) {
	chat, err := parseChatID(channelID)
	if err != nil {
		return "", err
	}
	return t.send(chat, 0, p)
}

func (t *Telegram) CreateThread(ctx context.Context, channelID, anchorMessageID, name string) (string, error) {
	chat, err := parseChatID(channelID)
	if err != nil {
		return "", err
	}
	anchor, err := parseMessageID(anchorMessageID)
	if err != nil {
		return "", err
	}
	return t.send(chat, anchor, render.Text("🧵 <b>"+name+"</b>"))
}

func (t *Telegram) AddThreadMember(ctx context.Context, channelID, threadID, userID string) error {
	// Reply chains have no membership; a mention subscribes the user.
	return t.PostThread(ctx, channelID, threadID, "👋 "+render.Mention(userID))
}

func (t *Telegram) PostThread(ctx context.Context, channelID, threadID, text string) error {
	chat, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	starter, err := parseMessageID(threadID)
	if err != nil {
		return err
	}
	_, err = t.send(chat, starter, render.Text(text))
	return err
}

func (t *Telegram) EditMessage(ctx context.Context, chatID, messageID string, p render.Payload) error {
	chat, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msgID, err := parseMessageID(messageID)
	if err != nil {
		return err
	}

	if p.Keyboard != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chat, msgID, p.Text, *p.Keyboard)
		edit.ParseMode = tgbotapi.ModeHTML
		_, err = t.api.Send(edit)
		return err
	}
	edit := tgbotapi.NewEditMessageText(chat, msgID, p.Text)
	edit.ParseMode = tgbotapi.ModeHTML
	_, err = t.api.Send(edit)
	return err
}

func (t *Telegram) send(chat int64, replyTo int, p render.Payload) (string, error) {
	msg := tgbotapi.NewMessage(chat, p.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
	}
	if p.Keyboard != nil {
		msg.ReplyMarkup = *p.Keyboard
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad chat id %q", s)
	}
	return id, nil
}

func parseMessageID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad message id %q", s)
	}
	return id, nil
}
