// Package telegram hosts the Telegram client, routing, and handler wiring.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/config"
	"tg_antispam_bot/internal/feature/admin"
	"tg_antispam_bot/internal/feature/guard"
	"tg_antispam_bot/internal/feature/membership"
	"tg_antispam_bot/internal/logging"
)

type botRunner interface {
	Start(ctx context.Context)
	RegisterHandler(handlerType bot.HandlerType, pattern string, matchType bot.MatchType, f bot.HandlerFunc, m ...bot.Middleware) string
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"chat_member",
	}

	createBot = func(token string, options ...bot.Option) (botRunner, error) {
		return bot.New(token, options...)
	}
)

// botCommands is what private chats see in the command menu.
var botCommands = []models.BotCommand{
	{Command: admin.CmdClaim, Description: "Claim bot ownership"},
	{Command: admin.CmdList, Description: "List of prohibited words"},
	{Command: admin.CmdAdd, Description: "Add a prohibited word"},
	{Command: admin.CmdDelete, Description: "Delete a prohibited word"},
}

// Client wraps the Telegram bot instance and the feature handlers.
type Client struct {
	bot        botRunner
	logger     *logrus.Entry
	membership *membership.Registrar
	guard      *guard.Registrar
	admin      *admin.Registrar
}

// Option customizes the Client during construction.
type Option func(*Client)

// WithMembership wires the join tracker into update routing.
func WithMembership(registrar *membership.Registrar) Option {
	return func(c *Client) {
		c.membership = registrar
	}
}

// WithGuard wires the moderation guard into update routing.
func WithGuard(registrar *guard.Registrar) Option {
	return func(c *Client) {
		c.guard = registrar
	}
}

// WithAdmin wires the admin command handlers.
func WithAdmin(registrar *admin.Registrar) Option {
	return func(c *Client) {
		c.admin = registrar
	}
}

// NewClient initializes the Telegram bot with long polling, update routing,
// and command handlers.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	client := &Client{logger: logger}
	for _, opt := range opts {
		opt(client)
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(client.routeUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	client.bot = tgBot
	client.registerCommands()

	return client, nil
}

// Start publishes the command menu and begins receiving updates via long
// polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: botCommands,
		Scope:    &models.BotCommandScopeAllPrivateChats{},
	}); err != nil {
		c.logger.WithField("event", "set_commands_error").WithError(err).Warn("failed to publish command menu")
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// registerCommands binds the admin command handlers. Matching is on the
// bot-command entity at the start of the message, so "/address" never routes
// into "/add" and the /cmd@BotName form works. Updates matched here never
// reach the default handler.
func (c *Client) registerCommands() {
	if c.admin == nil {
		return
	}

	commands := map[string]func(context.Context, *bot.Bot, *models.Message){
		admin.CmdClaim: func(ctx context.Context, b *bot.Bot, msg *models.Message) {
			c.admin.HandleClaim(ctx, b, msg)
		},
		admin.CmdList: func(ctx context.Context, b *bot.Bot, msg *models.Message) {
			c.admin.HandleList(ctx, b, msg)
		},
		admin.CmdAdd: func(ctx context.Context, b *bot.Bot, msg *models.Message) {
			c.admin.HandleAdd(ctx, b, msg)
		},
		admin.CmdDelete: func(ctx context.Context, b *bot.Bot, msg *models.Message) {
			c.admin.HandleDelete(ctx, b, msg)
		},
	}

	for command, handle := range commands {
		handle := handle
		c.bot.RegisterHandler(bot.HandlerTypeMessageText, command, bot.MatchTypeCommandStartOnly,
			func(ctx context.Context, b *bot.Bot, update *models.Update) {
				if update == nil || update.Message == nil {
					return
				}
				handle(ctx, b, update.Message)
			})
	}
}

// routeUpdate dispatches unmatched updates to the feature handlers.
func (c *Client) routeUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	switch {
	case update.ChatMember != nil:
		if c.membership != nil {
			c.membership.HandleChatMember(update.ChatMember)
		}
	case update.Message != nil:
		if c.guard != nil {
			c.guard.HandleMessage(ctx, b, update.Message)
		}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}
