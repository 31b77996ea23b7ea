// Package telegram plays the game over Telegram. Each user's Telegram
// username is their session username.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vishan-khatavkar/echoes-game/internal/processor"
	"github.com/vishan-khatavkar/echoes-game/internal/services/lock"
	"github.com/vishan-khatavkar/echoes-game/pkg/session"
)

const (
	// maxMessageLen is Telegram's limit on message text.
	maxMessageLen = 4096
	// startTail is how many history entries /start replays.
	startTail = 3

	msgSomethingWrong = "Sorry, something went wrong. Please try again."
	msgBusy           = "Still working on your last move. Give it a moment."
	msgStoreDown      = "The game can't reach its save files right now. Please try again shortly."
	msgUnsaved        = "(Your progress couldn't be saved yet. It will be retried.)"
)

// Game is the part of the processor the bot drives.
type Game interface {
	Start(ctx context.Context, username string) (session.Record, error)
	PlayTurn(ctx context.Context, username, input string) (*processor.Result, error)
}

type Bot struct {
	api    *tgbotapi.BotAPI
	s      sender
	game   Game
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New connects to the Bot API with botToken.
func New(botToken string, game Game, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	logger.Info("Authorized on Telegram", "bot", api.Self.UserName)
	return &Bot{
		api:    api,
		s:      botAPISender{api: api},
		game:   game,
		logger: logger,
	}, nil
}

// Start polls for updates until ctx is cancelled, then waits for in-flight
// turns to finish.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleIncomingMessage(ctx, msg)
			}(update.Message)
		}
	}
}

// usernameFor picks the session username for a Telegram user. Users
// without a public username play as tg-<id>.
func usernameFor(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return "tg-" + strconv.FormatInt(user.ID, 10)
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	username := usernameFor(msg.From)
	if username == "" {
		return
	}
	log := b.logger.With("username", username, "chat_id", msg.Chat.ID)

	if msg.IsCommand() {
		log.Debug("Incoming command", "command", msg.Command())
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, log, msg.Chat.ID, username)
		case "status":
			b.handleStatus(ctx, log, msg.Chat.ID, username)
		case "help":
			b.sendMessage(msg.Chat.ID, helpText())
		default:
			b.sendMessage(msg.Chat.ID, "Unknown command. Try /help.")
		}
		return
	}

	log.Debug("Incoming message", "text", msg.Text)
	res, err := b.game.PlayTurn(ctx, username, msg.Text)
	if err != nil && res == nil {
		log.Error("Failed to play turn", "error", err)
		b.sendMessage(msg.Chat.ID, errorText(err))
		return
	}
	if !res.Turn.Played() {
		return
	}

	reply := turnText(res.Turn)
	if err != nil {
		log.Warn("Turn played but not saved", "error", err)
		reply += "\n\n" + msgUnsaved
	}
	b.sendMessage(msg.Chat.ID, reply)
}

func (b *Bot) handleStart(ctx context.Context, log *slog.Logger, chatID int64, username string) {
	rec, err := b.game.Start(ctx, username)
	if err != nil {
		log.Error("Failed to start session", "error", err)
		b.sendMessage(chatID, errorText(err))
		return
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(rec.Tail(startTail), "\n\n"))
	sb.WriteString("\n\n")
	sb.WriteString(statusText(rec))
	b.sendMessage(chatID, sb.String())
}

func (b *Bot) handleStatus(ctx context.Context, log *slog.Logger, chatID int64, username string) {
	rec, err := b.game.Start(ctx, username)
	if err != nil {
		log.Error("Failed to load session", "error", err)
		b.sendMessage(chatID, errorText(err))
		return
	}
	b.sendMessage(chatID, statusText(rec))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLen))
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func turnText(t session.Turn) string {
	lines := append([]string{t.NarratorLine}, t.Extra...)
	return strings.Join(lines, "\n\n")
}

func statusText(rec session.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Level: %d\n", rec.Level)
	if len(rec.Inventory) == 0 {
		sb.WriteString("Inventory: empty\n")
	} else {
		fmt.Fprintf(&sb, "Inventory: %s\n", strings.Join(rec.Inventory, ", "))
	}
	if len(rec.Objectives) > 0 {
		sb.WriteString("Objectives:\n")
		for _, o := range rec.Objectives {
			fmt.Fprintf(&sb, "• %s\n", o)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func helpText() string {
	return "Type what you do and the narrator answers.\n\n" +
		"/start - where you are\n" +
		"/status - level, inventory and objectives\n" +
		"/help - this message"
}

func errorText(err error) string {
	var storeErr *processor.StoreError
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		return msgBusy
	case errors.As(err, &storeErr):
		return msgStoreDown
	default:
		return msgSomethingWrong
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}
