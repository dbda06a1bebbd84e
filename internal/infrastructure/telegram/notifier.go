package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"Meridiano/internal/config"
	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

// Telegram rejects messages above 4096 characters.
const maxMessageRunes = 4000

// Bot is the subset of tgbotapi.BotAPI the notifier needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates Bot instances (allows mocking).
type BotFactory func(token, apiEndpoint string, client *http.Client) (Bot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (Bot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// Notifier sends briefs to a Telegram chat via bot API.
type Notifier struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client
	factory  BotFactory
	logger   *slog.Logger

	mu  sync.Mutex
	bot Bot
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier validates the bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig, logger *slog.Logger) (*Notifier, error) {
	return NewNotifierWithFactory(cfg, logger, defaultBotFactory)
}

// NewNotifierWithFactory is NewNotifier with a custom bot factory.
func NewNotifierWithFactory(cfg config.TelegramConfig, logger *slog.Logger, factory BotFactory) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	chatID, err := config.ParseChatID(cfg.ChatID)
	if err != nil {
		return nil, err
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		token:    cfg.BotToken,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		factory:  factory,
		logger:   logger,
	}, nil
}

// PublishBrief posts the brief in chunks, Markdown first and plain text if Telegram rejects the markup.
func (n *Notifier) PublishBrief(ctx context.Context, brief domain.Brief) error {
	bot, err := n.ensureBot()
	if err != nil {
		return err
	}

	header := fmt.Sprintf("*Brief #%d* (%s, %s)\n\n", brief.ID, brief.Profile, brief.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	chunks := splitMessage(header+brief.Markdown, maxMessageRunes)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			n.logger.Warn("markdown rejected, resending as plain text", "chunk", i, "error", err)
			msg.ParseMode = ""
			if _, err := bot.Send(msg); err != nil {
				return fmt.Errorf("send telegram chunk %d/%d: %w", i+1, len(chunks), err)
			}
		}
	}
	n.logger.Info("brief sent to telegram", "brief_id", brief.ID, "chunks", len(chunks))
	return nil
}

func (n *Notifier) ensureBot() (Bot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}
	bot, err := n.factory(n.token, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	n.bot = bot
	return bot, nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring newline boundaries.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			out = append(out, string(runes))
			break
		}
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunk := strings.TrimRight(string(runes[:cut]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		runes = runes[cut:]
	}
	return out
}
