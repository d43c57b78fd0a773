package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_antispam_bot/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Manager) {
	t.Helper()

	storeManager, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = storeManager.Close()
	})

	hookLogger, _ := logtest.NewNullLogger()
	manager := NewManager(storeManager, logrus.NewEntry(hookLogger))
	if err := manager.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	return manager, storeManager
}

func TestRecordJoinResetsProbation(t *testing.T) {
	manager, _ := newTestManager(t)

	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	manager.RecordJoin(-100, 42, first)
	manager.IncrementMessageCount(-100, 42)
	manager.IncrementMessageCount(-100, 42)

	if got := manager.MessageCount(-100, 42); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}

	rejoin := first.Add(48 * time.Hour)
	manager.RecordJoin(-100, 42, rejoin)

	joined, ok := manager.JoinTime(-100, 42)
	if !ok || !joined.Equal(rejoin) {
		t.Fatalf("expected join time %v, got %v (ok=%v)", rejoin, joined, ok)
	}
	if got := manager.MessageCount(-100, 42); got != 0 {
		t.Fatalf("expected rejoin to reset count, got %d", got)
	}
}

func TestJoinStateIsPerChat(t *testing.T) {
	manager, _ := newTestManager(t)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	manager.RecordJoin(-100, 42, at)

	if _, ok := manager.JoinTime(-200, 42); ok {
		t.Fatalf("join time must not leak across chats")
	}
	manager.IncrementMessageCount(-100, 42)
	if got := manager.MessageCount(-200, 42); got != 0 {
		t.Fatalf("message count must not leak across chats, got %d", got)
	}
}

func TestAddWordIsIdempotentAndSorted(t *testing.T) {
	manager, _ := newTestManager(t)

	added, err := manager.AddWord("Spam")
	if err != nil || !added {
		t.Fatalf("expected first add to succeed, added=%v err=%v", added, err)
	}

	added, err = manager.AddWord("SPAM")
	if err != nil {
		t.Fatalf("duplicate add returned error: %v", err)
	}
	if added {
		t.Fatalf("duplicate add must report not added")
	}

	if _, err := manager.AddWord("casino"); err != nil {
		t.Fatalf("AddWord returned error: %v", err)
	}
	if _, err := manager.AddWord("bet"); err != nil {
		t.Fatalf("AddWord returned error: %v", err)
	}

	want := []string{"bet", "casino", "spam"}
	if got := manager.Words(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected sorted words %v, got %v", want, got)
	}
}

func TestDeleteWordOnAbsentWordIsSilentSuccess(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, err := manager.AddWord("spam"); err != nil {
		t.Fatalf("AddWord returned error: %v", err)
	}

	removed, err := manager.DeleteWord("missing")
	if err != nil {
		t.Fatalf("DeleteWord returned error: %v", err)
	}
	if removed {
		t.Fatalf("deleting an absent word must report not removed")
	}

	if got := manager.Words(); len(got) != 1 || got[0] != "spam" {
		t.Fatalf("word set changed unexpectedly: %v", got)
	}

	removed, err = manager.DeleteWord("SPAM")
	if err != nil || !removed {
		t.Fatalf("expected delete to succeed, removed=%v err=%v", removed, err)
	}
	if got := manager.Words(); len(got) != 0 {
		t.Fatalf("expected empty word set, got %v", got)
	}
}

func TestMatchWordFollowsWordSetMutations(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, hit := manager.MatchWord("free spam offer"); hit {
		t.Fatalf("empty word set must not match")
	}

	if _, err := manager.AddWord("spam"); err != nil {
		t.Fatalf("AddWord returned error: %v", err)
	}

	word, hit := manager.MatchWord("this is SPAM here")
	if !hit || word != "spam" {
		t.Fatalf("expected spam match, got word=%q hit=%v", word, hit)
	}

	if _, err := manager.DeleteWord("spam"); err != nil {
		t.Fatalf("DeleteWord returned error: %v", err)
	}

	if _, hit := manager.MatchWord("this is SPAM here"); hit {
		t.Fatalf("deleted word must not match")
	}
}

func TestClaimOwnerTransitions(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, claimed := manager.Owner(); claimed {
		t.Fatalf("expected unclaimed owner initially")
	}

	result, err := manager.ClaimOwner(7)
	if err != nil || result != ClaimAccepted {
		t.Fatalf("expected first claim accepted, got %v err=%v", result, err)
	}

	result, err = manager.ClaimOwner(7)
	if err != nil || result != ClaimAlreadyOwner {
		t.Fatalf("expected repeat claim idempotent, got %v err=%v", result, err)
	}

	result, err = manager.ClaimOwner(8)
	if err != nil || result != ClaimRejected {
		t.Fatalf("expected foreign claim rejected, got %v err=%v", result, err)
	}

	ownerID, claimed := manager.Owner()
	if !claimed || ownerID != 7 {
		t.Fatalf("expected owner 7, got %d (claimed=%v)", ownerID, claimed)
	}

	if _, err := manager.ClaimOwner(0); err == nil {
		t.Fatalf("expected error for zero user id")
	}
}

func TestFlushAndReloadRoundTrip(t *testing.T) {
	manager, storeManager := newTestManager(t)

	joined := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	manager.RecordJoin(-100, 42, joined)
	manager.IncrementMessageCount(-100, 42)
	if _, err := manager.AddWord("spam"); err != nil {
		t.Fatalf("AddWord returned error: %v", err)
	}
	if _, err := manager.ClaimOwner(7); err != nil {
		t.Fatalf("ClaimOwner returned error: %v", err)
	}

	if err := manager.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	hookLogger, _ := logtest.NewNullLogger()
	reloaded := NewManager(storeManager, logrus.NewEntry(hookLogger))
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload returned error: %v", err)
	}

	joinedAgain, ok := reloaded.JoinTime(-100, 42)
	if !ok || !joinedAgain.Equal(joined) {
		t.Fatalf("expected join time to survive reload, got %v (ok=%v)", joinedAgain, ok)
	}
	if got := reloaded.MessageCount(-100, 42); got != 1 {
		t.Fatalf("expected count 1 after reload, got %d", got)
	}
	if got := reloaded.Words(); len(got) != 1 || got[0] != "spam" {
		t.Fatalf("expected words to survive reload, got %v", got)
	}
	ownerID, claimed := reloaded.Owner()
	if !claimed || ownerID != 7 {
		t.Fatalf("expected owner to survive reload, got %d (claimed=%v)", ownerID, claimed)
	}

	word, hit := reloaded.MatchWord("SPAM inside")
	if !hit || word != "spam" {
		t.Fatalf("expected matcher rebuilt on load, got word=%q hit=%v", word, hit)
	}
}

func TestFlushWithNothingDirtyWritesNothing(t *testing.T) {
	manager, storeManager := newTestManager(t)

	if err := manager.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	err := storeManager.ForEachChat(func(chatID int64, value []byte) error {
		t.Fatalf("unexpected persisted chat %d", chatID)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachChat returned error: %v", err)
	}
}

func TestPruneStaleRemovesOnlyOldEntries(t *testing.T) {
	manager, _ := newTestManager(t)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	manager.RecordJoin(-100, 1, old)
	manager.IncrementMessageCount(-100, 1)
	manager.RecordJoin(-100, 2, recent)

	pruned := manager.PruneStale(30*24*time.Hour, now)
	if pruned != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", pruned)
	}

	if _, ok := manager.JoinTime(-100, 1); ok {
		t.Fatalf("expected stale member pruned")
	}
	if got := manager.MessageCount(-100, 1); got != 0 {
		t.Fatalf("expected stale member count cleared, got %d", got)
	}
	if _, ok := manager.JoinTime(-100, 2); !ok {
		t.Fatalf("expected recent member kept")
	}
}

func TestPruneStaleDisabledWithZeroHorizon(t *testing.T) {
	manager, _ := newTestManager(t)

	manager.RecordJoin(-100, 1, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))

	if pruned := manager.PruneStale(0, time.Now()); pruned != 0 {
		t.Fatalf("expected disabled sweep, pruned %d", pruned)
	}
	if _, ok := manager.JoinTime(-100, 1); !ok {
		t.Fatalf("expected entry preserved with disabled sweep")
	}
}

func TestRemoveMemberDropsBothMaps(t *testing.T) {
	manager, _ := newTestManager(t)

	manager.RecordJoin(-100, 42, time.Now().UTC())
	manager.IncrementMessageCount(-100, 42)

	manager.RemoveMember(-100, 42)

	if _, ok := manager.JoinTime(-100, 42); ok {
		t.Fatalf("expected join entry removed")
	}
	if got := manager.MessageCount(-100, 42); got != 0 {
		t.Fatalf("expected count entry removed, got %d", got)
	}
}

func TestStatsCountsTrackedState(t *testing.T) {
	manager, _ := newTestManager(t)

	manager.RecordJoin(-100, 1, time.Now().UTC())
	manager.RecordJoin(-100, 2, time.Now().UTC())
	manager.RecordJoin(-200, 3, time.Now().UTC())
	if _, err := manager.AddWord("spam"); err != nil {
		t.Fatalf("AddWord returned error: %v", err)
	}

	stats := manager.Stats()
	if stats.TrackedChats != 2 {
		t.Fatalf("expected 2 tracked chats, got %d", stats.TrackedChats)
	}
	if stats.TrackedMembers != 3 {
		t.Fatalf("expected 3 tracked members, got %d", stats.TrackedMembers)
	}
	if stats.Words != 1 {
		t.Fatalf("expected 1 word, got %d", stats.Words)
	}
	if stats.OwnerClaimed {
		t.Fatalf("expected owner unclaimed")
	}
}
