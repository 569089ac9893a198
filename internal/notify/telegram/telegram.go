// Package telegram delivers operator messages (digests and warning logs)
// to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// maxMessageRunes is Telegram's message length limit.
const maxMessageRunes = 4096

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int

	// APIURL overrides the Bot API endpoint; empty means the public one.
	APIURL string
}

// Notifier sends plain text messages to one chat. It never polls for
// updates.
type Notifier struct {
	bot    *tele.Bot
	chat   *tele.Chat
	thread int
}

func New(cfg Config) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Notifier{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, thread: cfg.ThreadID}, nil
}

// SendText sends text, truncated to the Telegram limit.
func (n *Notifier) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes-1]) + "…"
	}
	_, err := n.bot.Send(n.chat, text, &tele.SendOptions{
		ThreadID:              n.thread,
		DisableWebPagePreview: true,
	})
	return err
}
