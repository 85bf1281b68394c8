// Package apikeys implements the API key lifecycle: creation, revocation and request-time
// authentication, over a pluggable KeyStore.
package apikeys

import (
	"context"
	"time"

	"github.com/bi-platform/apikeys/internal/db/models"
)

//go:generate mockgen -destination=mock_store_test.go -package=apikeys . KeyStore

// KeyStore persists API key records.
//
// Implementations must keep key_hash unique (Insert fails with ErrDuplicateHash) and must never
// clear revoked_on (StampRevoked fails with ErrAlreadyRevoked). Lookups return nil, nil when the
// record does not exist. Returned records are snapshots; mutating them does not change the store.
type KeyStore interface {
	// Insert assigns an id and persists the record, returning the stored snapshot.
	Insert(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	FindByHash(ctx context.Context, hash string) (*models.APIKey, error)
	FindByID(ctx context.Context, id string) (*models.APIKey, error)
	// ListByPrefix returns at most limit records whose key_prefix equals prefix, any status.
	ListByPrefix(ctx context.Context, prefix string, limit int) ([]*models.APIKey, error)
	// ListByUser returns every record owned by userID, including revoked and expired ones.
	ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
	// ListActiveByUser returns records owned by userID that are neither revoked nor expired at now.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.APIKey, error)
	StampRevoked(ctx context.Context, key *models.APIKey, byID string, now time.Time) error
	// StampLastUsed sets last_used_on. Concurrent stamps race; the last write wins.
	StampLastUsed(ctx context.Context, key *models.APIKey, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// ExpiryStore is the part of the store used by the expiry warning job.
type ExpiryStore interface {
	// FindExpiring returns unrevoked, not-yet-notified keys expiring in (now, now+window].
	FindExpiring(ctx context.Context, now time.Time, window time.Duration) ([]*models.APIKey, error)
	MarkExpiryNotified(ctx context.Context, id string, now time.Time) error
}
