// Package telegram presents notifications as Telegram messages and withdraws
// them by deleting the message.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
	tele "gopkg.in/telebot.v4"

	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

// Keyring coordinates used when Config.Token is empty.
const (
	KeyringService = "localnotify"
	KeyringAccount = "telegram"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	Silent   bool
}

// sender is the subset of *tele.Bot the presenter needs.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

type Presenter struct {
	cfg Config
	log logx.Logger
	bot sender
}

func New(cfg Config, log logx.Logger) (*Presenter, error) {
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	token, err := resolveToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newWithSender(cfg, log, b), nil
}

func newWithSender(cfg Config, log logx.Logger, s sender) *Presenter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Presenter{cfg: cfg, log: log.With(logx.String("presenter", "telegram")), bot: s}
}

func resolveToken(token string) (string, error) {
	if t := strings.TrimSpace(token); t != "" {
		return t, nil
	}
	t, err := keyring.Get(KeyringService, KeyringAccount)
	if err != nil {
		return "", fmt.Errorf("telegram token not configured and keyring lookup failed: %w", err)
	}
	return strings.TrimSpace(t), nil
}

func (p *Presenter) Name() string { return "telegram" }

func (p *Presenter) Present(ctx context.Context, n localnotify.Delivered) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg, err := p.bot.Send(&tele.Chat{ID: p.cfg.ChatID}, formatMessage(n.Title, n.Body), &tele.SendOptions{
		ParseMode:           tele.ModeHTML,
		ThreadID:            p.cfg.ThreadID,
		DisableNotification: p.cfg.Silent,
	})
	if err != nil {
		return "", err
	}
	return formatHandle(p.cfg.ChatID, msg.ID), nil
}

func (p *Presenter) Withdraw(ctx context.Context, handle string) error {
	chatID, msgID, err := parseHandle(handle)
	if err != nil {
		return err
	}
	return p.bot.Delete(tele.StoredMessage{ChatID: chatID, MessageID: strconv.Itoa(msgID)})
}

func formatHandle(chatID int64, msgID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(msgID)
}

func parseHandle(h string) (int64, int, error) {
	chat, msg, ok := strings.Cut(h, ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad telegram handle %q", h)
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad telegram handle %q: %w", h, err)
	}
	msgID, err := strconv.Atoi(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("bad telegram handle %q: %w", h, err)
	}
	return chatID, msgID, nil
}
