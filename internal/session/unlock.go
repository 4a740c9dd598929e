// Package session remembers which viewers have passed the password
// challenge of a protected script. An unlock lasts for one viewing session.
package session

import (
	"context"
	"sync"
	"time"
)

// Unlock is the record kept for a viewer that passed a password challenge.
type Unlock struct {
	ScriptID   string    `json:"script_id"`
	Email      string    `json:"email,omitempty"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

type UnlockStore interface {
	Unlock(ctx context.Context, viewer string, unlock Unlock) error
	IsUnlocked(ctx context.Context, viewer, scriptID string) (bool, error)
	Revoke(ctx context.Context, viewer, scriptID string) error
	Ping(ctx context.Context) error
	Close() error
}

// MemoryStore keeps unlocks in process. Used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultUnlockTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]time.Time{},
	}
}

func (s *MemoryStore) Unlock(_ context.Context, viewer string, unlock Unlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[unlockKey(viewer, unlock.ScriptID)] = s.now().Add(s.ttl)
	return nil
}

func (s *MemoryStore) IsUnlocked(_ context.Context, viewer, scriptID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := unlockKey(viewer, scriptID)
	expires, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expires) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Revoke(_ context.Context, viewer, scriptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, unlockKey(viewer, scriptID))
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func unlockKey(viewer, scriptID string) string {
	return viewer + ":" + scriptID
}
