// Package membership tracks chat join events so the moderation guard can
// tell how long a sender has been around.
package membership

import (
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/logging"
)

// now is overridable for tests.
var now = time.Now

type joinRecorder interface {
	RecordJoin(chatID, userID int64, at time.Time)
}

// Registrar records join timestamps from chat_member updates.
type Registrar struct {
	state  joinRecorder
	logger *logrus.Entry
}

// NewRegistrar constructs a Registrar over the state manager.
func NewRegistrar(state joinRecorder, logger *logrus.Entry) *Registrar {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registrar{
		state:  state,
		logger: logger,
	}
}

// HandleChatMember records the join timestamp when a member (re)enters the
// chat: new status is member, old status is left or banned. Every other
// transition (promotions, restrictions, departures) is ignored.
func (r *Registrar) HandleChatMember(update *models.ChatMemberUpdated) {
	if r == nil || r.state == nil || update == nil {
		return
	}

	if update.NewChatMember.Type != models.ChatMemberTypeMember {
		return
	}
	if update.OldChatMember.Type != models.ChatMemberTypeLeft &&
		update.OldChatMember.Type != models.ChatMemberTypeBanned {
		return
	}

	member := update.NewChatMember.Member
	if member == nil || member.User == nil {
		return
	}

	joinedAt := now().UTC()
	r.state.RecordJoin(update.Chat.ID, member.User.ID, joinedAt)

	r.logger.WithFields(logging.Fields{
		"event":   "member_joined",
		"chat_id": update.Chat.ID,
		"title":   update.Chat.Title,
		"user_id": member.User.ID,
	}).Debug("recorded member join")
}
