// internal/store/memory.go
//
// In-memory session store.
// Sessions live only as long as the process, which is all a round needs.
//
// Characteristics:
//   - Stores *game.Session values keyed by ID in a map.
//   - Concurrency-safe via a mutex; Update holds the write lock while the
//     callback mutates a session, so moves on one session never interleave.
//   - Finished sessions older than the retention window are swept on Save.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/scramble/apps/go-server/internal/game"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for game sessions.
type Store interface {
	// Save persists or replaces a session.
	Save(ctx context.Context, s *game.Session) error

	// Update runs fn with exclusive access to the session.
	// fn's error is returned unchanged.
	Update(ctx context.Context, id string, fn func(s *game.Session) error) error
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu        sync.Mutex               // guards sessions
	sessions  map[string]*game.Session // keyed by Session.ID
	touched   map[string]time.Time     // last Save/Update per session
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore constructs a new in-memory Store. Sessions untouched for
// longer than retention are dropped; zero keeps everything.
func NewMemoryStore(retention time.Duration) Store {
	return &memory{
		sessions:  make(map[string]*game.Session),
		touched:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Save adds or replaces the session in the map.
func (m *memory) Save(ctx context.Context, s *game.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	m.sessions[s.ID] = s
	m.touched[s.ID] = now
	return nil
}

// Update runs fn under the write lock.
func (m *memory) Update(ctx context.Context, id string, fn func(s *game.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	m.touched[id] = m.now()
	return fn(s)
}

// sweep drops idle sessions. Caller holds the write lock.
func (m *memory) sweep(now time.Time) {
	if m.retention <= 0 {
		return
	}
	for id, at := range m.touched {
		if now.Sub(at) > m.retention {
			delete(m.sessions, id)
			delete(m.touched, id)
		}
	}
}
