// Package admin implements the owner-gated word list commands and the
// explicit ownership claim.
package admin

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/logging"
	"tg_antispam_bot/internal/state"
)

// Command names as registered with Telegram.
const (
	CmdClaim  = "claim"
	CmdList   = "list"
	CmdAdd    = "add"
	CmdDelete = "delete"
)

// Replies sent back to command callers.
const (
	replyClaimed      = "You are now the owner of the bot."
	replyAlreadyOwner = "You are already the owner of the bot."
	replyClaimTaken   = "The bot already has an owner."
	replyUnclaimed    = "No owner is claimed yet. Use /claim to become the owner."
	replyNotOwner     = "You are not the owner of the bot."
	replyNoWords      = "No prohibited words."
	replyUsageAdd     = "Usage: /add <word>"
	replyUsageDelete  = "Usage: /delete <word>"
)

type wordState interface {
	Words() []string
	AddWord(word string) (bool, error)
	DeleteWord(word string) (bool, error)
	Owner() (int64, bool)
	ClaimOwner(userID int64) (state.ClaimResult, error)
}

// replyAPI is the subset of the Telegram client the commands need.
type replyAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Registrar handles the /claim, /list, /add and /delete commands.
type Registrar struct {
	state  wordState
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar over the state manager.
func NewRegistrar(st wordState, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		state:  st,
		logger: logger,
	}
}

// HandleClaim performs the explicit ownership claim. The first caller
// becomes the owner; the transition is idempotent for the owner and
// rejected for anyone else afterwards.
func (r *Registrar) HandleClaim(ctx context.Context, api replyAPI, msg *models.Message) {
	if r == nil || r.state == nil || msg == nil || msg.From == nil {
		return
	}
	if !matchesCommand(msg.Text, CmdClaim) {
		return
	}

	result, err := r.state.ClaimOwner(msg.From.ID)
	if err != nil {
		r.logger.WithField("event", "claim_error").WithError(err).Error("ownership claim failed")
		return
	}

	switch result {
	case state.ClaimAccepted:
		r.logger.WithFields(logging.Fields{
			"event":   "owner_claimed",
			"user_id": msg.From.ID,
		}).Info("ownership claimed")
		r.reply(ctx, api, msg, replyClaimed)
	case state.ClaimAlreadyOwner:
		r.reply(ctx, api, msg, replyAlreadyOwner)
	case state.ClaimRejected:
		r.logger.WithFields(logging.Fields{
			"event":   "claim_rejected",
			"user_id": msg.From.ID,
		}).Warn("ownership claim rejected")
		r.reply(ctx, api, msg, replyClaimTaken)
	}
}

// HandleList replies with the sorted prohibited word list.
func (r *Registrar) HandleList(ctx context.Context, api replyAPI, msg *models.Message) {
	if msg == nil || !matchesCommand(msg.Text, CmdList) {
		return
	}
	if !r.requireOwner(ctx, api, msg) {
		return
	}

	words := r.state.Words()
	if len(words) == 0 {
		r.reply(ctx, api, msg, replyNoWords)
		return
	}

	r.reply(ctx, api, msg, "Prohibited words:\n"+strings.Join(words, "\n"))
}

// HandleAdd inserts one word into the prohibited set. Adding a word that is
// already present is a confirmed no-op.
func (r *Registrar) HandleAdd(ctx context.Context, api replyAPI, msg *models.Message) {
	if msg == nil || !matchesCommand(msg.Text, CmdAdd) {
		return
	}
	if !r.requireOwner(ctx, api, msg) {
		return
	}

	word, ok := singleArgument(msg.Text)
	if !ok {
		r.reply(ctx, api, msg, replyUsageAdd)
		return
	}

	added, err := r.state.AddWord(word)
	if err != nil {
		r.logger.WithField("event", "add_word_error").WithError(err).Error("failed to add prohibited word")
		return
	}

	if added {
		r.logger.WithFields(logging.Fields{
			"event": "word_added",
			"word":  strings.ToLower(word),
		}).Info("added prohibited word")
	}

	r.reply(ctx, api, msg, "Added prohibited word: "+strings.ToLower(word))
}

// HandleDelete removes one word from the prohibited set. Deleting an absent
// word is a confirmed no-op.
func (r *Registrar) HandleDelete(ctx context.Context, api replyAPI, msg *models.Message) {
	if msg == nil || !matchesCommand(msg.Text, CmdDelete) {
		return
	}
	if !r.requireOwner(ctx, api, msg) {
		return
	}

	word, ok := singleArgument(msg.Text)
	if !ok {
		r.reply(ctx, api, msg, replyUsageDelete)
		return
	}

	removed, err := r.state.DeleteWord(word)
	if err != nil {
		r.logger.WithField("event", "delete_word_error").WithError(err).Error("failed to delete prohibited word")
		return
	}

	if removed {
		r.logger.WithFields(logging.Fields{
			"event": "word_deleted",
			"word":  strings.ToLower(word),
		}).Info("deleted prohibited word")
	}

	r.reply(ctx, api, msg, "Deleted prohibited word: "+strings.ToLower(word))
}

// requireOwner verifies the caller holds ownership. It never assigns
// ownership itself; an unclaimed bot points the caller at /claim.
func (r *Registrar) requireOwner(ctx context.Context, api replyAPI, msg *models.Message) bool {
	if r == nil || r.state == nil || msg == nil || msg.From == nil {
		return false
	}

	ownerID, claimed := r.state.Owner()
	if !claimed {
		r.reply(ctx, api, msg, replyUnclaimed)
		return false
	}

	if msg.From.ID != ownerID {
		r.logger.WithFields(logging.Fields{
			"event":   "owner_check_failed",
			"user_id": msg.From.ID,
		}).Warn("admin command from non-owner")
		r.reply(ctx, api, msg, replyNotOwner)
		return false
	}

	return true
}

func (r *Registrar) reply(ctx context.Context, api replyAPI, msg *models.Message, text string) {
	if api == nil {
		return
	}

	if _, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
	}); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "reply_error",
			"chat_id": msg.Chat.ID,
		}).WithError(err).Error("failed to send command reply")
	}
}

// matchesCommand reports whether the first token of text is exactly the
// named command, tolerating the /cmd@BotName form. Routing already matches
// on the bot-command entity; this keeps "/address" out of "/add" even when
// a handler is invoked directly.
func matchesCommand(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}

	token, _, _ := strings.Cut(fields[0], "@")
	return token == "/"+name
}

// singleArgument extracts exactly one argument after the command token.
func singleArgument(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", false
	}

	return fields[1], true
}
