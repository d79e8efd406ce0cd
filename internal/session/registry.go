package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/derma-voice-agent/internal/conversation"
	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// ErrSessionNotFound is returned for a call id with no active session.
var ErrSessionNotFound = errors.New("session: not found")

// Hooks observe session lifecycle events. Both fields are optional.
type Hooks struct {
	OnStart func()
	OnEnd   func(reason string)
}

// Option customises a Registry.
type Option func(*Registry)

// WithIdleTimeout sets how long a session may go untouched before Sweep ends it.
// Zero disables idle eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

// WithArchive hands transcripts of ended sessions to a.
func WithArchive(a Archive) Option {
	return func(r *Registry) { r.archive = a }
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(r *Registry) { r.hooks = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry maps call ids to live sessions.
type Registry struct {
	newEngine   func() conversation.Engine
	logger      *logging.Logger
	idleTimeout time.Duration
	archive     Archive
	hooks       Hooks
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry that builds one engine per new call.
func NewRegistry(newEngine func() conversation.Engine, logger *logging.Logger, opts ...Option) *Registry {
	if newEngine == nil {
		panic("session: engine constructor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{
		newEngine: newEngine,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the session for callID, creating it with a fresh engine
// when the call is unseen. created reports whether a new session was made.
func (r *Registry) GetOrCreate(callID string) (sess *Session, created bool) {
	now := r.now()

	r.mu.RLock()
	sess, ok := r.sessions[callID]
	if ok {
		sess.touch(now)
	}
	r.mu.RUnlock()
	if ok {
		return sess, false
	}

	r.mu.Lock()
	if sess, ok = r.sessions[callID]; ok {
		sess.touch(now)
		r.mu.Unlock()
		return sess, false
	}
	sess = newSession(callID, r.newEngine(), now)
	r.sessions[callID] = sess
	r.mu.Unlock()

	r.logger.Info("session started", "call_sid", callID)
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	return sess, true
}

// Get returns the active session for callID.
func (r *Registry) Get(callID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[callID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(r.now())
	return sess, nil
}

// RecordTurn appends to the call's transcript. It does nothing when the call
// has no session; callers check existence first.
func (r *Registry) RecordTurn(callID, role, text string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[callID]
	if !ok {
		return
	}
	sess.append(Turn{Role: role, Text: text, Timestamp: r.now()})
}

// End removes the session for callID and archives its transcript. It reports
// whether a session was removed.
func (r *Registry) End(ctx context.Context, callID, reason string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[callID]
	if ok {
		delete(r.sessions, callID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.finish(ctx, sess, reason)
	return true
}

// endIfIdle ends callID only if it is still idle at now. The idle check and
// the removal share the write lock.
func (r *Registry) endIfIdle(ctx context.Context, callID string, now time.Time) bool {
	r.mu.Lock()
	sess, ok := r.sessions[callID]
	if ok && now.Sub(sess.LastActivity()) > r.idleTimeout {
		delete(r.sessions, callID)
	} else {
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.finish(ctx, sess, ReasonIdle)
	return true
}

func (r *Registry) finish(ctx context.Context, sess *Session, reason string) {
	callID := sess.CallID
	sess.deactivate()
	history := sess.History()
	r.logger.Info("session ended", "call_sid", callID, "reason", reason, "turns", len(history))

	if r.archive != nil {
		summary := CallSummary{
			CallID:    callID,
			Reason:    reason,
			Turns:     len(history),
			StartedAt: sess.CreatedAt,
			EndedAt:   r.now(),
		}
		if err := r.archive.Save(ctx, summary, history); err != nil {
			r.logger.Warn("failed to archive call transcript", "call_sid", callID, "error", err)
		}
	}
	if r.hooks.OnEnd != nil {
		r.hooks.OnEnd(reason)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep ends every session idle for longer than the idle timeout and returns
// how many were ended.
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}

	r.mu.RLock()
	var stale []string
	for id, sess := range r.sessions {
		if now.Sub(sess.LastActivity()) > r.idleTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	ended := 0
	for _, id := range stale {
		if r.endIfIdle(ctx, id, now) {
			ended++
		}
	}
	return ended
}

// Run sweeps idle sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(ctx, r.now()); n > 0 {
				r.logger.Info("evicted idle sessions", "count", n)
			}
		}
	}
}
