package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsgraph/opsgraph/internal/catalog"
	"github.com/opsgraph/opsgraph/internal/oracle"
)

// Store owns the live sessions, keyed by session id. It replaces any
// process-wide conversation state: create on first turn, clear on
// reset, evict on idle expiry.
type Store struct {
	oracle  oracle.Oracle
	catalog *catalog.Catalog
	cfg     Config
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
	once sync.Once
}

// NewStore builds a session store. A non-positive ttl disables
// eviction.
func NewStore(orc oracle.Oracle, cat *catalog.Catalog, cfg Config, ttl time.Duration) *Store {
	s := &Store{
		oracle:   orc,
		catalog:  cat,
		cfg:      cfg,
		ttl:      ttl,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.evictLoop()
	}
	return s
}

// HandleTurn routes an utterance to its session, creating the session
// on first use. This is the produced interface consumed by the
// transport layer.
func (s *Store) HandleTurn(ctx context.Context, sessionID, utterance string) (string, error) {
	return s.get(sessionID).HandleTurn(ctx, utterance)
}

// Reset clears a session's conversation window. Unknown ids are a
// no-op: resetting a conversation that never happened is not an error.
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if ok {
		session.Reset()
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the eviction loop.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		session = newSession(id, s.oracle, s.catalog, s.cfg)
		s.sessions[id] = session
	}
	return session
}

func (s *Store) evictLoop() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		// TryLock skips sessions with a turn in flight; they are by
		// definition not idle.
		if !session.mu.TryLock() {
			continue
		}
		idle := session.lastActive.Before(cutoff)
		session.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			slog.Debug("evicted idle session", "session", id)
		}
	}
}
