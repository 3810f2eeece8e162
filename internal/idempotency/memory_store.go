package idempotency

import (
	"context"
	"sync"
	"time"

	"product-import-service/internal/models"
)

type entry struct {
	result    *models.ImportResult
	expiresAt time.Time
}

type reservation struct {
	token     string
	expiresAt time.Time
}

// MemoryStore keeps results in process memory. Expired entries are dropped
// when read and by Sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]entry
	reserved map[string]reservation
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a store reading time from now
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries:  make(map[string]entry),
		reserved: make(map[string]reservation),
		now:      now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*models.ImportResult, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		// Another writer may have refreshed the entry in between
		if current, exists := s.entries[key]; exists && !s.now().Before(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return e.result.Clone(), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, result *models.ImportResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{
		result:    result.Clone(),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Reserve(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = DefaultLease
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if r, ok := s.reserved[key]; ok && now.Before(r.expiresAt) {
		return false, nil
	}
	s.reserved[key] = reservation{token: token, expiresAt: now.Add(lease)}
	return true, nil
}

func (s *MemoryStore) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reserved[key]; ok && r.token == token {
		delete(s.reserved, key)
	}
	return nil
}

// Sweep removes every expired entry and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	for key, r := range s.reserved {
		if !now.Before(r.expiresAt) {
			delete(s.reserved, key)
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Size returns the number of stored entries, expired ones included
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
