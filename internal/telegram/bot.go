// Package telegram is the Telegram front end of the assistant.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/portfoliobuddy/internal/assistant"
	"github.com/ajitpratap0/portfoliobuddy/internal/db"
)

// Sender is the part of tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Chatter runs one conversation turn. *assistant.Orchestrator satisfies it.
type Chatter interface {
	HandleMessage(ctx context.Context, userID, text string) (assistant.Reply, error)
}

// History returns a user's stored turns. *db.Transcripts satisfies it.
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]db.Transcript, error)
}

// Config holds the bot configuration
type Config struct {
	BotToken       string        `mapstructure:"bot_token"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookListen  string        `mapstructure:"webhook_listen"`
	PollingTimeout int           `mapstructure:"polling_timeout"`
	TurnTimeout    time.Duration `mapstructure:"turn_timeout"`
	Debug          bool          `mapstructure:"debug"`
}

// CommandHandler is a function that handles a bot command
type CommandHandler func(ctx context.Context, bot *Bot, message *tgbotapi.Message) error

// Bot routes Telegram updates to the assistant.
type Bot struct {
	api      Sender
	botAPI   *tgbotapi.BotAPI
	chat     Chatter
	history  History
	config   *Config
	handlers map[string]CommandHandler
	dispatch *dispatcher
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBot authorizes against the Telegram API.
func NewBot(config *Config, chat Chatter) (*Bot, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = config.Debug

	log.Info().
		Str("username", api.Self.UserName).
		Msg("Telegram bot authorized")

	bot := NewBotWithSender(api, config, chat)
	bot.botAPI = api
	return bot, nil
}

// NewBotWithSender builds a bot on top of any Sender. Only Start needs the
// real API.
func NewBotWithSender(api Sender, config *Config, chat Chatter) *Bot {
	if config.TurnTimeout <= 0 {
		config.TurnTimeout = 2 * time.Minute
	}
	if config.PollingTimeout <= 0 {
		config.PollingTimeout = 60
	}

	ctx, cancel := context.WithCancel(context.Background())
	bot := &Bot{
		api:      api,
		chat:     chat,
		config:   config,
		handlers: make(map[string]CommandHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
	bot.dispatch = newDispatcher(bot.handleUpdate)
	bot.registerDefaultHandlers()
	return bot
}

// WithHistory enables the /history command.
func (b *Bot) WithHistory(h History) *Bot {
	b.history = h
	return b
}

func (b *Bot) registerDefaultHandlers() {
	b.RegisterHandler("start", handleStart)
	b.RegisterHandler("help", handleStart)
	b.RegisterHandler("portfolio", handlePortfolio)
	b.RegisterHandler("analyze", handleAnalyze)
	b.RegisterHandler("history", handleHistory)
}

// RegisterHandler registers a command handler
func (b *Bot) RegisterHandler(command string, handler CommandHandler) {
	b.handlers[command] = handler
}

// Start runs the bot in webhook mode when a webhook URL is configured and
// in polling mode otherwise. It blocks until Stop is called.
func (b *Bot) Start() error {
	if b.botAPI == nil {
		return fmt.Errorf("bot was not created with a Telegram API client")
	}
	if b.config.WebhookURL != "" {
		return b.startWebhook()
	}
	return b.startPolling()
}

func (b *Bot) startPolling() error {
	log.Info().Msg("Starting Telegram bot in polling mode")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.PollingTimeout

	updates := b.botAPI.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			log.Info().Msg("Telegram bot shutting down")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch.submit(update)
		}
	}
}

func (b *Bot) startWebhook() error {
	log.Info().
		Str("webhook_url", b.config.WebhookURL).
		Msg("Starting Telegram bot in webhook mode")

	webhook, err := tgbotapi.NewWebhook(b.config.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	if _, err := b.botAPI.Request(webhook); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	info, err := b.botAPI.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("failed to get webhook info: %w", err)
	}
	if info.LastErrorDate != 0 {
		log.Warn().
			Int("error_date", info.LastErrorDate).
			Str("error_message", info.LastErrorMessage).
			Msg("Telegram webhook has errors")
	}

	listen := b.config.WebhookListen
	if listen == "" {
		listen = ":8443"
	}
	updates := b.botAPI.ListenForWebhook("/")
	srv := &http.Server{Addr: listen, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Webhook listener failed")
		}
	}()

	for {
		select {
		case <-b.ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case update := <-updates:
			b.dispatch.submit(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.config.TurnTimeout)
	defer cancel()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	if err := b.converse(ctx, message, message.Text); err != nil {
		log.Error().Err(err).Int64("telegram_id", message.From.ID).Msg("Failed to answer message")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	log.Info().
		Str("command", command).
		Int64("telegram_id", message.From.ID).
		Str("username", message.From.UserName).
		Msg("Received command")

	handler, exists := b.handlers[command]
	if !exists {
		if err := b.SendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands."); err != nil {
			log.Error().Err(err).Msg("Failed to send unknown command message")
		}
		return
	}

	if err := handler(ctx, b, message); err != nil {
		log.Error().
			Err(err).
			Str("command", command).
			Int64("telegram_id", message.From.ID).
			Msg("Command handler failed")

		if sendErr := b.SendMessage(message.Chat.ID, assistant.Apology); sendErr != nil {
			log.Error().Err(sendErr).Msg("Failed to send error message")
		}
	}
}

// converse runs text through the assistant and sends the reply.
func (b *Bot) converse(ctx context.Context, message *tgbotapi.Message, text string) error {
	if _, err := b.api.Request(tgbotapi.NewChatAction(message.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		log.Debug().Err(err).Msg("Failed to send typing action")
	}

	reply, err := b.chat.HandleMessage(ctx, userID(message), text)
	if err != nil {
		return fmt.Errorf("assistant rejected message: %w", err)
	}
	return b.SendMessage(message.Chat.ID, reply.Text)
}

// SendMessage sends text, split into as many messages as Telegram's length
// limit requires.
func (b *Bot) SendMessage(chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// Stop stops the bot gracefully
func (b *Bot) Stop() {
	log.Info().Msg("Stopping Telegram bot")
	b.cancel()
	if b.botAPI != nil {
		b.botAPI.StopReceivingUpdates()
	}
	b.dispatch.wait()
}

func userID(message *tgbotapi.Message) string {
	return strconv.FormatInt(message.From.ID, 10)
}
