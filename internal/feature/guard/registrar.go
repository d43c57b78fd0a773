// Package guard inspects group text messages from unfamiliar members and
// moderates the ones that contain prohibited words.
package guard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/config"
	"tg_antispam_bot/internal/domain"
	"tg_antispam_bot/internal/logging"
)

const (
	chatTypeGroup      = "group"
	chatTypeSupergroup = "supergroup"
)

// now is overridable for tests.
var now = time.Now

type stateAccess interface {
	JoinTime(chatID, userID int64) (time.Time, bool)
	SetJoinTime(chatID, userID int64, at time.Time)
	MessageCount(chatID, userID int64) int
	IncrementMessageCount(chatID, userID int64)
	RemoveMember(chatID, userID int64)
	MatchWord(text string) (string, bool)
	Owner() (int64, bool)
}

// messageAPI is the subset of the Telegram client the guard needs; *bot.Bot
// satisfies it, fakes stand in during tests.
type messageAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
}

// Registrar runs the trust gate and word scan on incoming group messages.
type Registrar struct {
	state             stateAccess
	logger            *logrus.Entry
	trustAge          time.Duration
	trustMessageCount int
	missingJoinPolicy domain.MissingJoinPolicy
}

// NewRegistrar constructs a Registrar from the runtime configuration.
func NewRegistrar(state stateAccess, cfg config.Config, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		state:             state,
		logger:            logger,
		trustAge:          cfg.TrustAge,
		trustMessageCount: cfg.TrustMessageCount,
		missingJoinPolicy: cfg.MissingJoinPolicy,
	}
}

// HandleMessage processes one group text message: trusted senders pass
// untouched, unfamiliar senders are scanned, and a match triggers the
// moderation action. Clean messages from unfamiliar senders bump their
// tracked count.
func (r *Registrar) HandleMessage(ctx context.Context, api messageAPI, msg *models.Message) {
	if r == nil || r.state == nil || msg == nil || msg.From == nil {
		return
	}
	if msg.Text == "" || strings.HasPrefix(msg.Text, "/") {
		return
	}
	if msg.Chat.Type != chatTypeGroup && msg.Chat.Type != chatTypeSupergroup {
		return
	}

	chatID := msg.Chat.ID
	userID := msg.From.ID

	entry := r.logger.WithFields(logging.Fields{
		"chat_id": chatID,
		"title":   msg.Chat.Title,
		"user_id": userID,
	})

	if !r.isUnfamiliar(entry, chatID, userID) {
		return
	}

	word, matched := r.state.MatchWord(msg.Text)
	if !matched {
		r.state.IncrementMessageCount(chatID, userID)
		return
	}

	entry.WithFields(logging.Fields{
		"event": "prohibited_word",
		"word":  word,
		"text":  msg.Text,
	}).Info("message contains a prohibited word")

	r.moderate(ctx, api, msg)
}

// isUnfamiliar applies the trust gate: a sender is unfamiliar while their
// join is younger than the trust age and they have fewer tracked messages
// than the trust count.
func (r *Registrar) isUnfamiliar(entry *logrus.Entry, chatID, userID int64) bool {
	current := now().UTC()

	joinedAt, ok := r.state.JoinTime(chatID, userID)
	if !ok {
		if r.missingJoinPolicy == domain.PolicyTrusted {
			entry.WithField("event", "trusted_unknown_sender").Debug("sender has no join timestamp, policy treats them as trusted")
			return false
		}

		joinedAt = current
		r.state.SetJoinTime(chatID, userID, joinedAt)
		entry.WithField("event", "join_assumed").Debug("sender has no join timestamp, assuming now")
	}

	if current.Sub(joinedAt) >= r.trustAge {
		entry.WithFields(logging.Fields{
			"event":     "trusted_by_age",
			"joined_at": joinedAt,
		}).Debug("message from trusted member")

		// Lossless only when absent means trusted; under assume-new the
		// sweep handles growth instead.
		if r.missingJoinPolicy == domain.PolicyTrusted {
			r.state.RemoveMember(chatID, userID)
		}
		return false
	}

	count := r.state.MessageCount(chatID, userID)
	if count >= r.trustMessageCount {
		entry.WithFields(logging.Fields{
			"event":         "trusted_by_volume",
			"message_count": count,
		}).Debug("message from trusted member")
		return false
	}

	entry.WithFields(logging.Fields{
		"event":         "unfamiliar_sender",
		"joined_at":     joinedAt,
		"message_count": count,
	}).Debug("message from unfamiliar member")

	return true
}

// moderate notifies the owner, deletes the message, and bans the sender, in
// that order. Each platform call failure is logged and the remaining steps
// still run; retry policy belongs to the polling client.
func (r *Registrar) moderate(ctx context.Context, api messageAPI, msg *models.Message) {
	if api == nil {
		return
	}

	chatID := msg.Chat.ID
	userID := msg.From.ID

	entry := r.logger.WithFields(logging.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})

	ownerID, claimed := r.state.Owner()
	if !claimed {
		entry.WithField("event", "owner_missing").Warn("the bot does not have an owner, skipping notification")
	} else {
		notification := fmt.Sprintf("The following message:\n\n%s\n\nby user %s was deleted in the group %q",
			msg.Text, displayName(msg.From), msg.Chat.Title)

		if _, err := api.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: ownerID,
			Text:   notification,
		}); err != nil {
			entry.WithField("event", "owner_notify_error").WithError(err).Error("failed to notify owner")
		}
	}

	if _, err := api.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: msg.ID,
	}); err != nil {
		entry.WithField("event", "delete_error").WithError(err).Error("failed to delete message")
	}

	if _, err := api.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	}); err != nil {
		entry.WithField("event", "ban_error").WithError(err).Error("failed to ban member")
	}

	entry.WithField("event", "moderated").Info("deleted message and banned sender")
}

func displayName(user *models.User) string {
	if user == nil {
		return ""
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	if user.LastName != "" {
		return user.FirstName + " " + user.LastName
	}

	return user.FirstName
}
