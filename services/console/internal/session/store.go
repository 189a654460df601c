package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pumpconsole/pkg/domain"
)

// ErrNoSession is returned when an operation needs a stored session and
// none is present.
var ErrNoSession = errors.New("no session")

// Snapshot is the persisted user and session pair.
type Snapshot struct {
	User    domain.User    `json:"user"`
	Session domain.Session `json:"session"`
}

// Store persists the operator's user and session together.
type Store interface {
	Save(ctx context.Context, user domain.User, sess domain.Session) error
	// Load reports ok=false when either half is missing.
	Load(ctx context.Context) (Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, user domain.User, sess domain.Session) error {
	if err := validate(user, sess); err != nil {
		return err
	}
	s.mu.Lock()
	s.snap = &Snapshot{User: user, Session: sess}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Snapshot{}, false, nil
	}
	return *s.snap, true, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
	return nil
}

func validate(user domain.User, sess domain.Session) error {
	if strings.TrimSpace(user.ID) == "" && strings.TrimSpace(user.Email) == "" {
		return errors.New("session: user identity required")
	}
	if strings.TrimSpace(sess.AccessToken) == "" {
		return errors.New("session: access token required")
	}
	return nil
}
