// Package session keeps conversation history in process memory. A session
// is an append-only log of turns; prompts only ever see a window of it.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Role is the author of a turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
)

// Turn is one entry in a session. Ordinal starts at 0 and increases by one
// per turn.
type Turn struct {
	Ordinal   int       `json:"ordinal"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one conversation. Lock/Unlock serialize questions so the
// history stays a single linear timeline; reads never need that lock.
type Session struct {
	id string

	turnMu sync.Mutex

	mu        sync.RWMutex
	turns     []Turn
	createdAt time.Time
	lastUsed  time.Time
	now       func() time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Lock waits until no other question is being processed in this session.
func (s *Session) Lock() { s.turnMu.Lock() }

// Unlock releases the session for the next question.
func (s *Session) Unlock() { s.turnMu.Unlock() }

// Append adds a turn and returns it.
func (s *Session) Append(role Role, content string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := Turn{
		Ordinal:   len(s.turns),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	s.turns = append(s.turns, t)
	s.lastUsed = t.Timestamp
	return t
}

// Turns returns a copy of every turn in order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// Window returns a copy of the last n turns. n <= 0 returns all turns.
func (s *Session) Window(n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.turns) > n {
		start = len(s.turns) - n
	}
	return append([]Turn(nil), s.turns[start:]...)
}

// Len returns the number of turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// LastUsed returns when the session was last fetched, appended to or reset.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
}

func (s *Session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.lastUsed = s.now()
}

// Store holds every live session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewID returns a fresh random session ID.
func NewID() string { return uuid.New().String() }

// Get returns the session for id, creating it on first use. It counts as
// use of the session for Prune.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	s, ok := st.sessions[id]
	if ok {
		s.touch()
	}
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		s.touch()
		return s
	}
	now := st.now()
	s = &Session{id: id, createdAt: now, lastUsed: now, now: st.now}
	st.sessions[id] = s
	return s
}

// Lookup returns an existing session.
func (st *Store) Lookup(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Reset clears the turns of a session. It waits for an in-flight question
// in that session to finish. Resetting an unknown session is a no-op.
func (st *Store) Reset(id string) {
	s, err := st.Lookup(id)
	if err != nil {
		return
	}
	s.Lock()
	defer s.Unlock()
	s.clear()
}

// Delete drops a session entirely.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Prune drops sessions idle for longer than maxIdle and returns how many
// were dropped. A session with a question in flight is never dropped.
func (st *Store) Prune(maxIdle time.Duration) int {
	cutoff := st.now().Add(-maxIdle)

	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if !s.LastUsed().Before(cutoff) || !s.turnMu.TryLock() {
			continue
		}
		delete(st.sessions, id)
		s.turnMu.Unlock()
		n++
	}
	return n
}
