package membership

import (
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type joinCall struct {
	chatID int64
	userID int64
	at     time.Time
}

type fakeRecorder struct {
	calls []joinCall
}

func (f *fakeRecorder) RecordJoin(chatID, userID int64, at time.Time) {
	f.calls = append(f.calls, joinCall{chatID: chatID, userID: userID, at: at})
}

func fixedNow(t *testing.T, at time.Time) {
	t.Helper()

	previous := now
	now = func() time.Time { return at }
	t.Cleanup(func() {
		now = previous
	})
}

func memberUpdate(oldType, newType models.ChatMemberType, user *models.User) *models.ChatMemberUpdated {
	update := &models.ChatMemberUpdated{
		Chat:          models.Chat{ID: -100, Title: "Test Group"},
		OldChatMember: models.ChatMember{Type: oldType},
		NewChatMember: models.ChatMember{Type: newType},
	}

	if newType == models.ChatMemberTypeMember {
		update.NewChatMember.Member = &models.ChatMemberMember{User: user}
	}

	return update
}

func TestJoinAfterLeavingIsRecorded(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(t, at)

	recorder := &fakeRecorder{}
	hookLogger, _ := logtest.NewNullLogger()
	registrar := NewRegistrar(recorder, logrus.NewEntry(hookLogger))

	registrar.HandleChatMember(memberUpdate(
		models.ChatMemberTypeLeft,
		models.ChatMemberTypeMember,
		&models.User{ID: 42},
	))

	if len(recorder.calls) != 1 {
		t.Fatalf("expected one join recorded, got %d", len(recorder.calls))
	}

	call := recorder.calls[0]
	if call.chatID != -100 || call.userID != 42 {
		t.Fatalf("unexpected join call: %+v", call)
	}
	if !call.at.Equal(at) {
		t.Fatalf("expected join time %v, got %v", at, call.at)
	}
}

func TestJoinAfterBanIsRecorded(t *testing.T) {
	fixedNow(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	recorder := &fakeRecorder{}
	hookLogger, _ := logtest.NewNullLogger()
	registrar := NewRegistrar(recorder, logrus.NewEntry(hookLogger))

	registrar.HandleChatMember(memberUpdate(
		models.ChatMemberTypeBanned,
		models.ChatMemberTypeMember,
		&models.User{ID: 42},
	))

	if len(recorder.calls) != 1 {
		t.Fatalf("expected one join recorded, got %d", len(recorder.calls))
	}
}

func TestOtherTransitionsAreIgnored(t *testing.T) {
	recorder := &fakeRecorder{}
	hookLogger, _ := logtest.NewNullLogger()
	registrar := NewRegistrar(recorder, logrus.NewEntry(hookLogger))

	tests := []struct {
		name   string
		update *models.ChatMemberUpdated
	}{
		{
			name: "promotion to administrator",
			update: memberUpdate(
				models.ChatMemberTypeMember,
				models.ChatMemberTypeAdministrator,
				&models.User{ID: 42},
			),
		},
		{
			name: "member leaves",
			update: memberUpdate(
				models.ChatMemberTypeMember,
				models.ChatMemberTypeLeft,
				&models.User{ID: 42},
			),
		},
		{
			name: "restriction lifted",
			update: memberUpdate(
				models.ChatMemberTypeRestricted,
				models.ChatMemberTypeMember,
				&models.User{ID: 42},
			),
		},
		{
			name:   "nil update",
			update: nil,
		},
		{
			name: "member payload missing",
			update: &models.ChatMemberUpdated{
				Chat:          models.Chat{ID: -100},
				OldChatMember: models.ChatMember{Type: models.ChatMemberTypeLeft},
				NewChatMember: models.ChatMember{Type: models.ChatMemberTypeMember},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			registrar.HandleChatMember(tt.update)

			if len(recorder.calls) != 0 {
				t.Fatalf("expected transition to be ignored, got %+v", recorder.calls)
			}
		})
	}
}
