// Package state owns the bot's mutable moderation state: per-chat probation
// maps, the prohibited word set, and the claimed owner. All access goes
// through Manager accessors; nothing here is package-level.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/domain"
	"tg_antispam_bot/internal/logging"
	"tg_antispam_bot/internal/scan"
	"tg_antispam_bot/internal/store"
)

// ClaimResult describes the outcome of an ownership claim.
type ClaimResult int

const (
	// ClaimAccepted means the caller became the owner.
	ClaimAccepted ClaimResult = iota
	// ClaimAlreadyOwner means the caller already held ownership.
	ClaimAlreadyOwner
	// ClaimRejected means ownership is held by someone else.
	ClaimRejected
)

// Stats summarizes tracked state for diagnostics.
type Stats struct {
	TrackedChats   int
	TrackedMembers int
	Words          int
	OwnerClaimed   bool
}

// Manager is the single owner of moderation state. It keeps everything in
// memory, tracks which chats changed, and flushes dirty records to the store
// in one batch. Handlers run concurrently under the long-polling client, so
// every method takes the mutex.
type Manager struct {
	store  *store.Manager
	logger *logrus.Entry

	mu          sync.Mutex
	global      domain.GlobalState
	globalDirty bool
	chats       map[int64]*domain.ChatState
	dirty       map[int64]struct{}
	matcher     *scan.Matcher
}

// NewManager constructs a Manager over the given store.
func NewManager(st *store.Manager, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Manager{
		store:  st,
		logger: logger,
		chats:  make(map[int64]*domain.ChatState),
		dirty:  make(map[int64]struct{}),
	}
}

// Load reads the persisted global and per-chat state and builds the word
// matcher. Must be called once before the manager is used.
func (m *Manager) Load() error {
	if m == nil || m.store == nil {
		return errors.New("state manager is not initialized")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Get(store.KeyGlobal, &m.global); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load global state: %w", err)
	}
	sort.Strings(m.global.Words)

	if err := m.store.ForEachChat(func(chatID int64, value []byte) error {
		chat := domain.NewChatState()
		if err := json.Unmarshal(value, chat); err != nil {
			return fmt.Errorf("decode chat %d: %w", chatID, err)
		}
		chat.Normalize()
		m.chats[chatID] = chat
		return nil
	}); err != nil {
		return fmt.Errorf("load chat states: %w", err)
	}

	if err := m.rebuildMatcher(); err != nil {
		return err
	}

	m.logger.WithFields(logging.Fields{
		"event": "state_loaded",
		"chats": len(m.chats),
		"words": len(m.global.Words),
		"owner": m.global.OwnerID != 0,
	}).Info("loaded persisted state")

	return nil
}

// RecordJoin stores the member's join timestamp for the chat and restarts
// their probation by clearing any previous message count.
func (m *Manager) RecordJoin(chatID, userID int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat := m.chat(chatID)
	chat.JoinedAt[userID] = at.UTC()
	delete(chat.MessageCount, userID)
	m.markDirty(chatID)
}

// JoinTime returns the member's recorded join timestamp, if any.
func (m *Manager) JoinTime(chatID, userID int64) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.chat(chatID).JoinedAt[userID]
	return at, ok
}

// SetJoinTime records a synthesized join timestamp (assume-new policy).
func (m *Manager) SetJoinTime(chatID, userID int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chat(chatID).JoinedAt[userID] = at.UTC()
	m.markDirty(chatID)
}

// MessageCount returns the member's tracked message count.
func (m *Manager) MessageCount(chatID, userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.chat(chatID).MessageCount[userID]
}

// IncrementMessageCount adds one to the member's tracked message count.
func (m *Manager) IncrementMessageCount(chatID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chat(chatID).MessageCount[userID]++
	m.markDirty(chatID)
}

// RemoveMember drops the member's probation entries for the chat.
func (m *Manager) RemoveMember(chatID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat := m.chat(chatID)
	if _, tracked := chat.JoinedAt[userID]; !tracked {
		if _, counted := chat.MessageCount[userID]; !counted {
			return
		}
	}

	delete(chat.JoinedAt, userID)
	delete(chat.MessageCount, userID)
	m.markDirty(chatID)
}

// Words returns a sorted copy of the prohibited word set.
func (m *Manager) Words() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	words := make([]string, len(m.global.Words))
	copy(words, m.global.Words)
	return words
}

// AddWord inserts a lower-cased word into the prohibited set and rebuilds
// the matcher. Reports false when the word was already present.
func (m *Manager) AddWord(word string) (bool, error) {
	folded := scan.Fold(word)
	if folded == "" {
		return false, errors.New("word is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := sort.SearchStrings(m.global.Words, folded)
	if idx < len(m.global.Words) && m.global.Words[idx] == folded {
		return false, nil
	}

	m.global.Words = append(m.global.Words, "")
	copy(m.global.Words[idx+1:], m.global.Words[idx:])
	m.global.Words[idx] = folded
	m.globalDirty = true

	if err := m.rebuildMatcher(); err != nil {
		return false, err
	}

	return true, nil
}

// DeleteWord removes a lower-cased word from the prohibited set and rebuilds
// the matcher. Reports false when the word was absent.
func (m *Manager) DeleteWord(word string) (bool, error) {
	folded := scan.Fold(word)
	if folded == "" {
		return false, errors.New("word is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := sort.SearchStrings(m.global.Words, folded)
	if idx >= len(m.global.Words) || m.global.Words[idx] != folded {
		return false, nil
	}

	m.global.Words = append(m.global.Words[:idx], m.global.Words[idx+1:]...)
	m.globalDirty = true

	if err := m.rebuildMatcher(); err != nil {
		return false, err
	}

	return true, nil
}

// MatchWord reports the first prohibited word contained in text, if any.
func (m *Manager) MatchWord(text string) (string, bool) {
	m.mu.Lock()
	matcher := m.matcher
	m.mu.Unlock()

	return matcher.Match(text)
}

// Owner returns the claimed owner id and whether ownership is claimed.
func (m *Manager) Owner() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.global.OwnerID, m.global.OwnerID != 0
}

// ClaimOwner performs the Unclaimed -> Claimed ownership transition. The
// transition is idempotent for the current owner and rejected for anyone
// else once ownership is held.
func (m *Manager) ClaimOwner(userID int64) (ClaimResult, error) {
	if userID == 0 {
		return ClaimRejected, errors.New("user id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.global.OwnerID {
	case 0:
		m.global.OwnerID = userID
		m.globalDirty = true
		return ClaimAccepted, nil
	case userID:
		return ClaimAlreadyOwner, nil
	default:
		return ClaimRejected, nil
	}
}

// PruneStale removes probation entries whose join timestamp is older than
// the horizon and returns how many members were pruned. A zero or negative
// horizon disables the sweep.
func (m *Manager) PruneStale(horizon time.Duration, now time.Time) int {
	if horizon <= 0 {
		return 0
	}

	cutoff := now.UTC().Add(-horizon)

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for chatID, chat := range m.chats {
		for userID, joinedAt := range chat.JoinedAt {
			if joinedAt.Before(cutoff) {
				delete(chat.JoinedAt, userID)
				delete(chat.MessageCount, userID)
				pruned++
				m.markDirty(chatID)
			}
		}
	}

	return pruned
}

// Flush persists all dirty records in one batch and clears the dirty set.
func (m *Manager) Flush() error {
	if m == nil || m.store == nil {
		return errors.New("state manager is not initialized")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make(map[string]interface{}, len(m.dirty)+1)
	if m.globalDirty {
		entries[store.KeyGlobal] = m.global
	}
	for chatID := range m.dirty {
		entries[store.ChatKey(chatID)] = m.chats[chatID]
	}

	if len(entries) == 0 {
		return nil
	}

	if err := m.store.SetBatch(entries); err != nil {
		return fmt.Errorf("flush state: %w", err)
	}

	m.globalDirty = false
	m.dirty = make(map[int64]struct{})

	m.logger.WithFields(logging.Fields{
		"event":   "state_flushed",
		"records": len(entries),
	}).Debug("flushed dirty state")

	return nil
}

// Stats reports tracked state counts for diagnostics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := 0
	for _, chat := range m.chats {
		members += len(chat.JoinedAt)
	}

	return Stats{
		TrackedChats:   len(m.chats),
		TrackedMembers: members,
		Words:          len(m.global.Words),
		OwnerClaimed:   m.global.OwnerID != 0,
	}
}

// chat returns the cached state for chatID, creating it when absent.
// Callers must hold the mutex.
func (m *Manager) chat(chatID int64) *domain.ChatState {
	if chat, ok := m.chats[chatID]; ok {
		return chat
	}

	chat := domain.NewChatState()
	m.chats[chatID] = chat
	return chat
}

// markDirty flags a chat for the next flush. Callers must hold the mutex.
func (m *Manager) markDirty(chatID int64) {
	m.dirty[chatID] = struct{}{}
}

// rebuildMatcher recreates the word matcher from the current word set.
// Callers must hold the mutex.
func (m *Manager) rebuildMatcher() error {
	matcher, err := scan.NewMatcher(m.global.Words)
	if err != nil {
		return fmt.Errorf("rebuild matcher: %w", err)
	}

	m.matcher = matcher
	return nil
}
