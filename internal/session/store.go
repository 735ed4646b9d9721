package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxTokens is the default token ceiling for a session's history.
const DefaultMaxTokens = 2000

// DefaultMaxMessages is the default cap on non-anchor messages (10 turns).
const DefaultMaxMessages = 20

// DefaultGreeting anchors every session's history at position 0.
const DefaultGreeting = "Hello! I'm your AI assistant. How can I help you today?"

// Config bounds the store's sessions. Zero values select the defaults; a
// negative MaxMessages disables the count ceiling (token ceiling only).
type Config struct {
	MaxTokens   int
	MaxMessages int
	Greeting    string
}

// Store owns all sessions in the process. Operations against one session id
// are serialized by a per-session mutex; distinct sessions proceed fully in
// parallel. There is no global registry outside this object.
type Store struct {
	mu       sync.Mutex // guards the sessions map only
	sessions map[string]*entry

	maxTokens   int
	maxMessages int
	greeting    string
	now         func() time.Time
}

// entry pairs a session with the mutex that serializes access to it.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// NewStore creates an empty session store.
func NewStore(cfg Config) *Store {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	return &Store{
		sessions:    make(map[string]*entry),
		maxTokens:   cfg.MaxTokens,
		maxMessages: cfg.MaxMessages,
		greeting:    cfg.Greeting,
		now:         time.Now,
	}
}

// Snapshot is a read-only copy of a session's identity and history.
type Snapshot struct {
	ID           string
	Mode         string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Messages     []Message
}

// GetOrCreate returns a snapshot of the session with the given id, creating
// it first if needed. An empty id creates a session under a fresh id; an
// unknown id is treated as freshly created rather than an error, so clients
// can retry with a stale id. Mode is only applied at creation.
func (s *Store) GetOrCreate(id, mode string) Snapshot {
	e := s.lookupOrCreate(id, mode)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.LastActiveAt = s.now()
	return snapshotLocked(e.sess)
}

// History returns a read-only snapshot of the session's message sequence,
// creating the session if it does not exist.
func (s *Store) History(id string) []Message {
	e := s.lookupOrCreate(id, "")
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMessages(e.sess.messages)
}

// AppendTurn appends the user message and the assistant reply as one atomic
// unit, then applies eviction while the lock is still held. tokensUsed is
// the backend-reported usage attached to the assistant message.
func (s *Store) AppendTurn(id, userText, assistantText string, tokensUsed int) Snapshot {
	e := s.lookupOrCreate(id, "")
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	assistant := newMessage(RoleAssistant, assistantText, now)
	assistant.TokensUsed = tokensUsed

	e.sess.messages = append(e.sess.messages, newMessage(RoleUser, userText, now), assistant)
	e.sess.LastActiveAt = now
	s.evictLocked(e.sess)

	return snapshotLocked(e.sess)
}

// Clear resets the session's history to the single anchor greeting, keeping
// its id and mode. Clearing an unknown session creates it.
func (s *Store) Clear(id string) Snapshot {
	e := s.lookupOrCreate(id, "")
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	e.sess.messages = []Message{newMessage(RoleSystem, s.greeting, now)}
	e.sess.LastActiveAt = now
	return snapshotLocked(e.sess)
}

// Len returns the current message count for the session, zero for unknown
// ids (Len is a read-side probe and does not create sessions).
func (s *Store) Len(id string) int {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sess.messages)
}

// SweepIdle removes sessions idle for longer than maxIdle and returns how
// many were dropped. The surrounding service schedules this; the store only
// exposes the check.
func (s *Store) SweepIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		e.mu.Lock()
		idle := e.sess.LastActiveAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// ActiveSessions returns the ids of all live sessions.
func (s *Store) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) lookupOrCreate(id, mode string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if e, ok := s.sessions[id]; ok {
			return e
		}
	} else {
		id = uuid.New().String()
	}

	if mode == "" {
		mode = "assistant"
	}
	now := s.now()
	e := &entry{sess: &Session{
		ID:           id,
		Mode:         mode,
		CreatedAt:    now,
		LastActiveAt: now,
		messages:     []Message{newMessage(RoleSystem, s.greeting, now)},
	}}
	s.sessions[id] = e
	return e
}

// evictLocked drops the oldest non-anchor messages until both ceilings hold.
// Caller holds the session lock.
func (s *Store) evictLocked(sess *Session) {
	for len(sess.messages) > 1 {
		over := sess.tokenSum() > s.maxTokens ||
			(s.maxMessages > 0 && len(sess.messages)-1 > s.maxMessages)
		if !over {
			return
		}
		sess.messages = append(sess.messages[:1], sess.messages[2:]...)
	}
}

func snapshotLocked(sess *Session) Snapshot {
	return Snapshot{
		ID:           sess.ID,
		Mode:         sess.Mode,
		CreatedAt:    sess.CreatedAt,
		LastActiveAt: sess.LastActiveAt,
		Messages:     copyMessages(sess.messages),
	}
}

func copyMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
