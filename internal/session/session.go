// Package session tracks one conversation per active telephony call.
package session

import (
	"sync"
	"time"

	"github.com/wolfman30/derma-voice-agent/internal/conversation"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// End reasons reported to hooks and archives.
const (
	ReasonCompleted       = "completed"
	ReasonFailed          = "failed"
	ReasonBusy            = "busy"
	ReasonConversationEnd = "conversation_end"
	ReasonIdle            = "idle"
)

// Turn is a single utterance in a call transcript.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-call state: the engine and the transcript so far.
type Session struct {
	CallID    string
	Engine    conversation.Engine
	CreatedAt time.Time

	turn sync.Mutex

	mu           sync.Mutex
	history      []Turn
	active       bool
	lastActivity time.Time
}

func newSession(callID string, engine conversation.Engine, now time.Time) *Session {
	return &Session{
		CallID:       callID,
		Engine:       engine,
		CreatedAt:    now,
		active:       true,
		lastActivity: now,
	}
}

// Lock serialises turns for this call. Webhook retries for the same call can
// arrive concurrently and the engines are not safe for concurrent use.
func (s *Session) Lock() { s.turn.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.turn.Unlock() }

// History returns a copy of the transcript.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Active reports whether the session has not been ended.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// LastActivity returns the time of the most recent turn or lookup.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turn)
	s.lastActivity = turn.Timestamp
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

func (s *Session) deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}
