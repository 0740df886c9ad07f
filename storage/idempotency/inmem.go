package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemStore is a process-local store for tests and dev setups without Redis.
type InMemStore struct {
	mutex   sync.Mutex
	entries map[string]inMemEntry
}

type inMemEntry struct {
	applicationID string
	expiresAt     time.Time
}

func NewInMemStore() *InMemStore {
	return &InMemStore{entries: make(map[string]inMemEntry)}
}

func (s *InMemStore) PutIfAbsent(_ context.Context, key, applicationID string, ttl time.Duration) (string, bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	if entry, ok := s.entries[key]; ok && entry.expiresAt.After(now) {
		return entry.applicationID, false, nil
	}
	s.entries[key] = inMemEntry{applicationID: applicationID, expiresAt: now.Add(ttl)}
	return applicationID, true, nil
}
