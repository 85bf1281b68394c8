// Package models defines the database model types for the API key service.
// Each type corresponds to a database table and uses struct tags for both JSON serialization and sqlx row scanning.
// Models are pure data types; lifecycle rules belong in internal/apikeys, query logic belongs in the repositories layer.
package models

import "time"

// APIKey represents a stored API key record. The plaintext key is never part of it.
type APIKey struct {
	ID               string     `json:"id" db:"id"`
	UserID           string     `json:"user_id" db:"user_id"`
	Name             string     `json:"name" db:"name"` // Friendly name (e.g., "laptop")
	KeyHash          string     `json:"-" db:"key_hash"`
	KeyPrefix        string     `json:"key_prefix" db:"key_prefix"` // First 8 chars of the plaintext (e.g., "pst_Ab3x")
	WorkspaceName    string     `json:"workspace_name" db:"workspace_name"`
	CreatedOn        time.Time  `json:"created_on" db:"created_on"`
	CreatedByID      string     `json:"created_by_id" db:"created_by_id"`
	ExpiresOn        *time.Time `json:"expires_on,omitempty" db:"expires_on"`
	LastUsedOn       *time.Time `json:"last_used_on,omitempty" db:"last_used_on"`
	RevokedOn        *time.Time `json:"revoked_on,omitempty" db:"revoked_on"`
	RevokedByID      *string    `json:"revoked_by_id,omitempty" db:"revoked_by_id"`
	ExpiryNotifiedOn *time.Time `json:"-" db:"expiry_notified_on"` // Set when the expiry warning email was sent
}

// IsRevoked reports whether the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedOn != nil
}

// IsExpired reports whether the key has an expiry at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresOn != nil && !k.ExpiresOn.After(now)
}

// IsActive reports whether the key can still authenticate at now.
func (k *APIKey) IsActive(now time.Time) bool {
	return !k.IsRevoked() && !k.IsExpired(now)
}

// Clone returns a deep copy so callers can hand out snapshots without sharing pointer fields.
func (k *APIKey) Clone() *APIKey {
	if k == nil {
		return nil
	}
	c := *k
	c.ExpiresOn = cloneTime(k.ExpiresOn)
	c.LastUsedOn = cloneTime(k.LastUsedOn)
	c.RevokedOn = cloneTime(k.RevokedOn)
	c.ExpiryNotifiedOn = cloneTime(k.ExpiryNotifiedOn)
	if k.RevokedByID != nil {
		id := *k.RevokedByID
		c.RevokedByID = &id
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
