// Package session holds per-session conversation history with sliding-window
// eviction and per-session mutual exclusion.
package session

import (
	"time"

	"github.com/memoralabs/memora/internal/token"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation entry. Messages are immutable once appended.
type Message struct {
	Role       string
	Text       string
	Timestamp  time.Time
	TokenCount int // approximate, derived from text length
	TokensUsed int // backend-reported usage; assistant messages only
}

// newMessage stamps a message with the current time and its token estimate.
func newMessage(role, text string, now time.Time) Message {
	return Message{
		Role:       role,
		Text:       text,
		Timestamp:  now,
		TokenCount: token.Estimate(text),
	}
}

// Session is one bounded conversational context. The Store serializes all
// access to it; callers only ever see snapshots.
type Session struct {
	ID           string
	Mode         string
	CreatedAt    time.Time
	LastActiveAt time.Time

	// messages[0] is the anchor greeting and is never evicted.
	messages []Message
}

// tokenSum returns the cumulative token estimate across all messages.
func (s *Session) tokenSum() int {
	sum := 0
	for _, m := range s.messages {
		sum += m.TokenCount
	}
	return sum
}
