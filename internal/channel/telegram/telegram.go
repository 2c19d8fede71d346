// Package telegram implements the channel.Adapter contract for Telegram via
// github.com/mymmrac/telego, grounded in the teacher's own telegram bot.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nanogridbot/nanogridbot/internal/channel"
	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

const platform = "telegram"
const maxMessageLen = 4096

type Adapter struct {
	bot       *telego.Bot
	handler   *th.BotHandler
	store     *store.Store
	cfg       config.TelegramConfig
	cancel    context.CancelFunc
	connected atomic.Bool
}

func New(cfg config.TelegramConfig, st *store.Store) (*Adapter, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, rterr.New(rterr.Channel, "create telegram bot", err)
	}
	return &Adapter{bot: bot, store: st, cfg: cfg}, nil
}

func (a *Adapter) Platform() string { return platform }

func (a *Adapter) OwnsJID(jid string) bool { return channel.OwnsJID(platform, jid) }

func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return rterr.New(rterr.Channel, "start long polling", err)
	}

	handler, err := th.NewBotHandler(a.bot, updates)
	if err != nil {
		cancel()
		return rterr.New(rterr.Channel, "create telegram handler", err)
	}
	a.handler = handler

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		a.handleMessage(message)
		return nil
	})

	a.connected.Store(true)
	go handler.Start()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.connected.Store(false)
	if a.cancel != nil {
		a.cancel()
	}
	if a.handler != nil {
		return a.handler.Stop()
	}
	return nil
}

// Connected reports whether the long-polling loop is currently running.
func (a *Adapter) Connected() bool { return a.connected.Load() }

func (a *Adapter) handleMessage(msg telego.Message) {
	if !a.allowedUser(msg) {
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	jid := channel.JID(platform, strconv.FormatInt(msg.Chat.ID, 10))
	sender := strconv.FormatInt(msg.From.ID, 10)
	senderName := ""
	if msg.From != nil {
		senderName = msg.From.FirstName
	}

	record := &store.Message{
		ID:         platform + "-" + uuid.NewString(),
		ChatJID:    jid,
		Sender:     sender,
		SenderName: senderName,
		Content:    text,
		Timestamp:  time.Unix(int64(msg.Date), 0).UTC(),
		IsFromMe:   false,
		Role:       store.RoleUser,
	}

	if err := a.store.SaveMessage(record); err != nil {
		slog.Error("telegram: store inbound message failed", "error", err)
	}
}

func (a *Adapter) allowedUser(msg telego.Message) bool {
	if len(a.cfg.AllowFrom) == 0 {
		return true
	}
	if msg.From == nil {
		return false
	}
	for _, id := range a.cfg.AllowFrom {
		if id == msg.From.ID {
			return true
		}
	}
	return false
}

// SendMessage dispatches text to a Telegram chat, chunked under the
// platform's message-size limit, falling back to plain text if markdown
// parsing rejects the payload.
func (a *Adapter) SendMessage(ctx context.Context, jid, text string) error {
	chatID, err := strconv.ParseInt(channel.NativeID(platform, jid), 10, 64)
	if err != nil {
		return rterr.New(rterr.Channel, "parse telegram chat id", err)
	}

	for _, chunk := range channel.ChunkMessage(text, maxMessageLen) {
		m := tu.Message(tu.ID(chatID), chunk)
		m.ParseMode = telego.ModeMarkdown
		if _, err := a.bot.SendMessage(ctx, m); err != nil {
			m.ParseMode = ""
			if _, err := a.bot.SendMessage(ctx, m); err != nil {
				return rterr.New(rterr.Channel, "send telegram message", fmt.Errorf("chat %d: %w", chatID, err))
			}
		}
	}
	return nil
}
