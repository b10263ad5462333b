// Package telegram delivers chat commands from the Telegram Bot API to the
// dispatcher and sends the replies back to the originating chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/config"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

const pollTimeout = 60

// Handler is satisfied by *bot.Dispatcher.
type Handler interface {
	Handle(ctx context.Context, id identity.ID, text string) string
}

// Sender is the part of *tgbotapi.BotAPI used to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Transport struct {
	api *tgbotapi.BotAPI
	log *zap.Logger
	wg  sync.WaitGroup

	stopOnce sync.Once
}

// LoadToken reads the bot token from config, falling back to the token file.
func LoadToken(cfg config.TelegramConfig) (string, error) {
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		return tok, nil
	}
	if cfg.TokenFile == "" {
		return "", errors.New("telegram: no bot token configured")
	}
	data, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return "", fmt.Errorf("telegram: read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("telegram: token file %s is empty", cfg.TokenFile)
	}
	return tok, nil
}

// New authenticates with the Bot API (getMe).
func New(token string, log *zap.Logger) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	log.Info("telegram bot authorized", zap.String("username", api.Self.UserName))
	return &Transport{api: api, log: log}, nil
}

// Username is the bot's @handle without the @.
func (t *Transport) Username() string { return t.api.Self.UserName }

// Run long-polls for updates until ctx is cancelled, passing each update to h
// on its own goroutine. It waits for in-flight replies before returning.
func (t *Transport) Run(ctx context.Context, h Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := t.api.GetUpdatesChan(u)

	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				handleUpdate(ctx, t.api, h, t.log, upd)
			}()
		}
	}
}

// Stop ends polling without waiting for ctx. Safe to call more than once.
func (t *Transport) Stop() {
	t.stopOnce.Do(t.api.StopReceivingUpdates)
}

// identityOf picks the sender's user id, or the chat id for messages that
// carry no user. Messages sent on behalf of a chat (anonymous group admins,
// linked channel posts) share a placeholder From user, so the sender chat
// is the identity there.
func identityOf(m *tgbotapi.Message) identity.ID {
	if m.SenderChat != nil {
		return identity.ID("chat:" + strconv.FormatInt(m.SenderChat.ID, 10))
	}
	if m.From != nil {
		return identity.ID(strconv.FormatInt(m.From.ID, 10))
	}
	if m.Chat != nil {
		return identity.ID(strconv.FormatInt(m.Chat.ID, 10))
	}
	return ""
}

func handleUpdate(ctx context.Context, s Sender, h Handler, log *zap.Logger, upd tgbotapi.Update) {
	m := upd.Message
	if m == nil || m.Text == "" || m.Chat == nil {
		return
	}
	id := identityOf(m)
	if id == "" {
		return
	}

	reply := h.Handle(ctx, id, m.Text)
	if reply == "" {
		return
	}
	out := tgbotapi.NewMessage(m.Chat.ID, reply)
	out.ReplyToMessageID = m.MessageID
	if _, err := s.Send(out); err != nil {
		log.Warn("telegram send failed",
			zap.Int64("chat_id", m.Chat.ID),
			zap.Int("update_id", upd.UpdateID),
			zap.Error(err),
		)
	}
}
