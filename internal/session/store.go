// Package session manages customer sessions and their bounded
// conversation history on top of the key/value store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"

	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/kv"
)

const (
	sessionKeyPrefix      = "session:"
	conversationKeyPrefix = "conversation:"

	// DefaultTTL is how long an idle session survives.
	DefaultTTL = time.Hour
	// DefaultMaxHistory bounds the stored conversation length.
	DefaultMaxHistory = 50
)

// Store persists sessions and conversation history. Both expire together
// after the session TTL of inactivity; any touch or append refreshes the
// respective key's clock.
type Store struct {
	kv         kv.Store
	ttl        time.Duration
	maxHistory int
	now        func() time.Time

	// Per-session locks serialize read-modify-write cycles on the
	// conversation list.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a session store. Non-positive ttl or maxHistory fall
// back to the defaults.
func NewStore(store kv.Store, ttl time.Duration, maxHistory int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		kv:         store,
		ttl:        ttl,
		maxHistory: maxHistory,
		now:        time.Now,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Store) lock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *Store) dropLock(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, sessionID)
}

func sessionKey(id string) string      { return sessionKeyPrefix + id }
func conversationKey(id string) string { return conversationKeyPrefix + id }

// Create stores a new session under sessionID. userData may be nil.
func (s *Store) Create(ctx context.Context, sessionID string, userData map[string]string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, zerr.Wrap(domain.ErrInvalidInput, "empty session id")
	}

	now := s.now()
	sess := &domain.Session{
		SessionID:      sessionID,
		CreatedAt:      now,
		LastActivityAt: now,
		UserData:       userData,
	}
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session, or domain.ErrNotFound if it is absent or
// expired.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	raw, err := s.kv.Get(ctx, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnavailable, "decode session"), "session_id", sessionID)
	}
	return &sess, nil
}

// Touch updates LastActivityAt and restarts the TTL clock. It propagates
// domain.ErrNotFound for expired sessions so callers can distinguish
// "session died" from transient store trouble.
func (s *Store) Touch(ctx context.Context, sessionID string) (*domain.Session, error) {
	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.LastActivityAt = s.now()
	if err := s.put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetUserData merges the given entries into the session's user data.
func (s *Store) SetUserData(ctx context.Context, sessionID string, data map[string]string) error {
	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserData == nil {
		sess.UserData = make(map[string]string, len(data))
	}
	for k, v := range data {
		sess.UserData[k] = v
	}
	sess.LastActivityAt = s.now()
	return s.put(ctx, sess)
}

func (s *Store) put(ctx context.Context, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrUnavailable, "encode session"), "session_id", sess.SessionID)
	}
	return s.kv.Set(ctx, sessionKey(sess.SessionID), raw, s.ttl)
}

// AppendMessage adds one message to the session's conversation, trimming
// the oldest entries beyond the history bound. The conversation is stored
// newest-first so the trim always drops the oldest messages.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg domain.ConversationMessage) error {
	if msg.Content == "" {
		return zerr.Wrap(domain.ErrInvalidInput, "empty message content")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	msgs, err := s.readConversation(ctx, sessionID)
	if err != nil {
		return err
	}

	msgs = append([]domain.ConversationMessage{msg}, msgs...)
	if len(msgs) > s.maxHistory {
		msgs = msgs[:s.maxHistory]
	}
	return s.writeConversation(ctx, sessionID, msgs)
}

// History returns up to limit most recent messages in chronological
// order (oldest first). limit <= 0 means the full stored history. A
// session with no conversation yet yields an empty slice.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]domain.ConversationMessage, error) {
	msgs, err := s.readConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	// Reverse from stored newest-first to chronological.
	out := make([]domain.ConversationMessage, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out, nil
}

// MessageCount returns the stored conversation length.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	msgs, err := s.readConversation(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// ClearHistory removes the session's conversation but keeps the session
// itself alive. It reports whether any conversation existed.
func (s *Store) ClearHistory(ctx context.Context, sessionID string) (bool, error) {
	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	n, err := s.kv.Delete(ctx, conversationKey(sessionID))
	return n > 0, err
}

// Delete removes the session and its conversation.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	l := s.lock(sessionID)
	l.Lock()
	_, err := s.kv.Delete(ctx, sessionKey(sessionID), conversationKey(sessionID))
	l.Unlock()

	if err == nil {
		s.dropLock(sessionID)
	}
	return err
}

// ListActive returns the IDs of all live sessions.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	keys, err := s.kv.ListKeys(ctx, sessionKeyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, sessionKeyPrefix))
	}
	return ids, nil
}

// Reap drops the per-session lock entries of sessions that no longer
// exist, so sessions expiring by TTL do not pin a mutex forever. Locks
// are created on demand, so pruning is always safe for dead ids.
func (s *Store) Reap(ctx context.Context) {
	ids, err := s.ListActive(ctx)
	if err != nil {
		slog.Warn("session lock reap skipped", "error", err)
		return
	}
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true
	}

	s.mu.Lock()
	for id := range s.locks {
		if !live[id] {
			delete(s.locks, id)
		}
	}
	s.mu.Unlock()
}

func (s *Store) readConversation(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	raw, err := s.kv.Get(ctx, conversationKey(sessionID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []domain.ConversationMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnavailable, "decode conversation"), "session_id", sessionID)
	}
	return msgs, nil
}

func (s *Store) writeConversation(ctx context.Context, sessionID string, msgs []domain.ConversationMessage) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrUnavailable, "encode conversation"), "session_id", sessionID)
	}
	return s.kv.Set(ctx, conversationKey(sessionID), raw, s.ttl)
}
