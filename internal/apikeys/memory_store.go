package apikeys

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bi-platform/apikeys/internal/db/models"
)

// MemoryStore is an in-process KeyStore. All writes are serialized under one lock and every
// returned record is a copy.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*models.APIKey
	byHash map[string]string // key_hash -> id
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*models.APIKey),
		byHash: make(map[string]string),
	}
}

// Insert stores a copy of key under a fresh UUID.
func (s *MemoryStore) Insert(_ context.Context, key *models.APIKey) (*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[key.KeyHash]; exists {
		return nil, ErrDuplicateHash
	}

	rec := key.Clone()
	rec.ID = uuid.New().String()
	s.byID[rec.ID] = rec
	s.byHash[rec.KeyHash] = rec.ID
	return rec.Clone(), nil
}

func (s *MemoryStore) FindByHash(_ context.Context, hash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) ListByPrefix(_ context.Context, prefix string, limit int) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(limit, func(k *models.APIKey) bool { return k.KeyPrefix == prefix }), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(0, func(k *models.APIKey) bool { return k.UserID == userID }), nil
}

func (s *MemoryStore) ListActiveByUser(_ context.Context, userID string, now time.Time) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(0, func(k *models.APIKey) bool { return k.UserID == userID && k.IsActive(now) }), nil
}

// StampRevoked sets revoked_on and revoked_by_id. The check and the write happen under the same lock.
func (s *MemoryStore) StampRevoked(_ context.Context, key *models.APIKey, byID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[key.ID]
	if !ok {
		return ErrNotFound
	}
	if rec.RevokedOn != nil {
		return ErrAlreadyRevoked
	}
	t := now
	by := byID
	rec.RevokedOn = &t
	rec.RevokedByID = &by
	return nil
}

func (s *MemoryStore) StampLastUsed(_ context.Context, key *models.APIKey, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[key.ID]
	if !ok {
		return ErrNotFound
	}
	t := now
	rec.LastUsedOn = &t
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byHash, rec.KeyHash)
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) FindExpiring(_ context.Context, now time.Time, window time.Duration) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deadline := now.Add(window)
	return s.collect(0, func(k *models.APIKey) bool {
		return k.RevokedOn == nil &&
			k.ExpiryNotifiedOn == nil &&
			k.ExpiresOn != nil &&
			k.ExpiresOn.After(now) &&
			!k.ExpiresOn.After(deadline)
	}), nil
}

func (s *MemoryStore) MarkExpiryNotified(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	t := now
	rec.ExpiryNotifiedOn = &t
	return nil
}

// Snapshot returns copies of every stored record, newest first.
func (s *MemoryStore) Snapshot() []*models.APIKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(0, func(*models.APIKey) bool { return true })
}

// collect returns sorted copies of matching records; limit <= 0 means unbounded. Caller holds the lock.
func (s *MemoryStore) collect(limit int, match func(*models.APIKey) bool) []*models.APIKey {
	out := make([]*models.APIKey, 0)
	for _, k := range s.byID {
		if match(k) {
			out = append(out, k.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedOn.Equal(out[j].CreatedOn) {
			return out[i].CreatedOn.After(out[j].CreatedOn)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
