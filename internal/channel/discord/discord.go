// Package discord implements the channel.Adapter contract for Discord via
// github.com/bwmarrin/discordgo, grounded in vanducng-goclaw's discord
// channel.
package discord

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/nanogridbot/nanogridbot/internal/channel"
	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

const platform = "discord"
const maxMessageLen = 2000

type Adapter struct {
	session   *discordgo.Session
	store     *store.Store
	cfg       config.DiscordConfig
	botID     string
	connected atomic.Bool
}

func New(cfg config.DiscordConfig, st *store.Store) (*Adapter, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, rterr.New(rterr.Channel, "create discord session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Adapter{session: session, store: st, cfg: cfg}, nil
}

func (a *Adapter) Platform() string { return platform }

func (a *Adapter) OwnsJID(jid string) bool { return channel.OwnsJID(platform, jid) }

func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(a.handleMessage)

	if err := a.session.Open(); err != nil {
		return rterr.New(rterr.Channel, "open discord session", err)
	}

	user, err := a.session.User("@me")
	if err != nil {
		a.session.Close()
		return rterr.New(rterr.Channel, "fetch discord bot identity", err)
	}
	a.botID = user.ID
	a.connected.Store(true)
	slog.Info("discord adapter connected", "username", user.Username, "id", user.ID)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.connected.Store(false)
	return a.session.Close()
}

// Connected reports whether the gateway session is currently open.
func (a *Adapter) Connected() bool { return a.connected.Load() }

func (a *Adapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.botID {
		return
	}
	if m.Content == "" {
		return
	}

	jid := channel.JID(platform, m.ChannelID)
	record := &store.Message{
		ID:         platform + "-" + uuid.NewString(),
		ChatJID:    jid,
		Sender:     m.Author.ID,
		SenderName: m.Author.Username,
		Content:    m.Content,
		Timestamp:  time.Now().UTC(),
		IsFromMe:   false,
		Role:       store.RoleUser,
	}
	if ts, err := m.Timestamp.Parse(); err == nil {
		record.Timestamp = ts.UTC()
	}

	if err := a.store.SaveMessage(record); err != nil {
		slog.Error("discord: store inbound message failed", "error", err)
	}
}

// SendMessage dispatches text to a Discord channel, chunked under the
// platform's message-size limit.
func (a *Adapter) SendMessage(ctx context.Context, jid, text string) error {
	channelID := channel.NativeID(platform, jid)
	for _, chunk := range channel.ChunkMessage(text, maxMessageLen) {
		if _, err := a.session.ChannelMessageSend(channelID, chunk); err != nil {
			return rterr.New(rterr.Channel, "send discord message", err)
		}
	}
	return nil
}
