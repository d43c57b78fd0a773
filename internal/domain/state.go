// Package domain defines the persisted state types and moderation policy
// constants shared across the bot.
package domain

import "time"

// ChatState tracks probation data for a single chat, keyed by Telegram
// user id. Entries exist only for members the bot saw joining (or, under
// the assume-new policy, members it had to synthesize a join time for).
type ChatState struct {
	JoinedAt     map[int64]time.Time `json:"joined_at"`
	MessageCount map[int64]int       `json:"message_count"`
}

// NewChatState returns a ChatState with initialized maps.
func NewChatState() *ChatState {
	return &ChatState{
		JoinedAt:     make(map[int64]time.Time),
		MessageCount: make(map[int64]int),
	}
}

// Normalize ensures both maps are non-nil after a JSON decode.
func (s *ChatState) Normalize() {
	if s.JoinedAt == nil {
		s.JoinedAt = make(map[int64]time.Time)
	}
	if s.MessageCount == nil {
		s.MessageCount = make(map[int64]int)
	}
}

// GlobalState holds process-wide moderation state: the prohibited word set
// (stored lower-cased and sorted) and the claimed owner, zero when unclaimed.
type GlobalState struct {
	Words   []string `json:"words"`
	OwnerID int64    `json:"owner_id"`
}
