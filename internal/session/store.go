// Package session keeps the live intake conversations hosted by the gateway.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cityalert/internal/config"
	"cityalert/internal/intake"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrSessionNotFound = errors.New("session: not found")

// Factory builds the engine for a new session id.
type Factory func(id string) *intake.Engine

// Session pairs an engine with the lock that serializes calls into it.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	engine *intake.Engine
}

// Do runs fn with exclusive access to the engine.
func (s *Session) Do(fn func(e *intake.Engine) intake.Reply) intake.Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.engine)
}

// Snapshot is a consistent read of a session.
type Snapshot struct {
	ID         string       `json:"id"`
	Phase      intake.Phase `json:"phase"`
	Draft      intake.Draft `json:"draft"`
	Transcript []Message    `json:"transcript"`
	CreatedAt  time.Time    `json:"created_at"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := s.engine.Transcript()
	msgs := make([]Message, 0, len(tr))
	for _, t := range tr {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Content})
	}
	return Snapshot{
		ID:         s.ID,
		Phase:      s.engine.Phase(),
		Draft:      s.engine.Draft(),
		Transcript: msgs,
		CreatedAt:  s.CreatedAt,
	}
}

// Store is a size-bounded registry; entries expire after the configured TTL
// since they were created or last touched.
type Store struct {
	lru     *expirable.LRU[string, *Session]
	factory Factory
	now     func() time.Time
}

func NewStore(cfg config.SessionConfig, factory Factory) *Store {
	size := cfg.MaxSessions
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	onEvict := func(id string, _ *Session) {
		slog.Debug("session evicted", "session_id", id)
	}
	return &Store{
		lru:     expirable.NewLRU[string, *Session](size, onEvict, ttl),
		factory: factory,
		now:     time.Now,
	}
}

// Create registers a new session and returns it with the greeting.
func (s *Store) Create(ctx context.Context) (*Session, intake.Reply) {
	id := uuid.NewString()
	sess := &Session{ID: id, CreatedAt: s.now(), engine: s.factory(id)}
	reply := sess.Do(func(e *intake.Engine) intake.Reply { return e.Start(ctx) })
	s.lru.Add(id, sess)
	slog.InfoContext(ctx, "session created", "session_id", id, "active", s.lru.Len())
	return sess, reply
}

// Get returns the session and refreshes its expiry.
func (s *Store) Get(id string) (*Session, error) {
	sess, ok := s.lru.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lru.Add(id, sess)
	return sess, nil
}

func (s *Store) Delete(id string) bool {
	return s.lru.Remove(id)
}

func (s *Store) Len() int {
	return s.lru.Len()
}
