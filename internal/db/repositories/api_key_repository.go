// api_key_repository.go implements APIKeyRepository, the SQL KeyStore: prefix lookup for
// authentication, atomic revocation, last-used stamping and expiry-warning bookkeeping.
// Queries are written with ? placeholders and rebound for the connected driver, so the same
// repository serves PostgreSQL and SQLite.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/db/models"
)

var (
	_ apikeys.KeyStore    = (*APIKeyRepository)(nil)
	_ apikeys.ExpiryStore = (*APIKeyRepository)(nil)
)

const apiKeyColumns = `id, user_id, name, key_hash, key_prefix, workspace_name, created_on, created_by_id,
		expires_on, last_used_on, revoked_on, revoked_by_id, expiry_notified_on`

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sqlx.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sqlx.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Insert stores a new API key under a fresh UUID and returns the stored record.
func (r *APIKeyRepository) Insert(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	rec := key.Clone()
	rec.ID = uuid.New().String()
	rec.CreatedOn = dbTime(rec.CreatedOn)
	rec.ExpiresOn = dbTimePtr(rec.ExpiresOn)

	query := r.db.Rebind(`
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Name,
		rec.KeyHash,
		rec.KeyPrefix,
		rec.WorkspaceName,
		rec.CreatedOn,
		rec.CreatedByID,
		rec.ExpiresOn,
		rec.LastUsedOn,
		rec.RevokedOn,
		rec.RevokedByID,
		rec.ExpiryNotifiedOn,
	)
	if isUniqueViolation(err) {
		return nil, apikeys.ErrDuplicateHash
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert api key: %w", err)
	}

	return rec, nil
}

// FindByHash retrieves an API key by its exact hash
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return r.getOne(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = ?`, hash)
}

// FindByID retrieves an API key by ID
func (r *APIKeyRepository) FindByID(ctx context.Context, id string) (*models.APIKey, error) {
	return r.getOne(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id)
}

// ListByPrefix returns up to limit keys sharing a display prefix (for authentication)
func (r *APIKeyRepository) ListByPrefix(ctx context.Context, prefix string, limit int) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE key_prefix = ?
		ORDER BY created_on DESC
		LIMIT ?
	`
	return r.getMany(ctx, query, prefix, limit)
}

// ListByUser lists every API key owned by a user, including revoked and expired ones
func (r *APIKeyRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = ?
		ORDER BY created_on DESC
	`
	return r.getMany(ctx, query, userID)
}

// ListActiveByUser lists a user's keys that are neither revoked nor expired at now
func (r *APIKeyRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = ?
		  AND revoked_on IS NULL
		  AND (expires_on IS NULL OR expires_on > ?)
		ORDER BY created_on DESC
	`
	return r.getMany(ctx, query, userID, dbTime(now))
}

// StampRevoked marks a key revoked. The revoked_on IS NULL guard makes the check-and-set a single
// statement, so concurrent revocations of the same key produce exactly one winner.
func (r *APIKeyRepository) StampRevoked(ctx context.Context, key *models.APIKey, byID string, now time.Time) error {
	query := r.db.Rebind(`
		UPDATE api_keys
		SET revoked_on = ?, revoked_by_id = ?
		WHERE id = ? AND revoked_on IS NULL
	`)

	res, err := r.db.ExecContext(ctx, query, dbTime(now), byID, key.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if n > 0 {
		return nil
	}

	existing, err := r.FindByID(ctx, key.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return apikeys.ErrNotFound
	}
	return apikeys.ErrAlreadyRevoked
}

// StampLastUsed updates the last_used_on timestamp. Concurrent stamps race; the last write wins.
func (r *APIKeyRepository) StampLastUsed(ctx context.Context, key *models.APIKey, now time.Time) error {
	query := r.db.Rebind(`UPDATE api_keys SET last_used_on = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, dbTime(now), key.ID); err != nil {
		return fmt.Errorf("failed to update api key last_used_on: %w", err)
	}
	return nil
}

// Delete removes an API key record
func (r *APIKeyRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return requireOneRow(res)
}

// FindExpiring returns unrevoked keys expiring in (now, now+window] that have not yet had a
// warning sent, soonest first.
func (r *APIKeyRepository) FindExpiring(ctx context.Context, now time.Time, window time.Duration) ([]*models.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE expires_on IS NOT NULL
		  AND expires_on > ?
		  AND expires_on <= ?
		  AND revoked_on IS NULL
		  AND expiry_notified_on IS NULL
		ORDER BY expires_on ASC
	`
	return r.getMany(ctx, query, dbTime(now), dbTime(now.Add(window)))
}

// MarkExpiryNotified records that the expiry warning for a key has been sent
func (r *APIKeyRepository) MarkExpiryNotified(ctx context.Context, id string, now time.Time) error {
	query := r.db.Rebind(`UPDATE api_keys SET expiry_notified_on = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, dbTime(now), id)
	if err != nil {
		return fmt.Errorf("failed to mark expiry notification: %w", err)
	}
	return requireOneRow(res)
}

func (r *APIKeyRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.GetContext(ctx, &key, r.db.Rebind(query), args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}

func (r *APIKeyRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]*models.APIKey, error) {
	keys := make([]*models.APIKey, 0)
	if err := r.db.SelectContext(ctx, &keys, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apikeys.ErrNotFound
	}
	return nil
}

// isUniqueViolation recognises unique-constraint failures from both supported drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// dbTime normalises timestamps to UTC at microsecond precision, the finest both backends store,
// so values written and compared in SQLite order the same way as in PostgreSQL.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func dbTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := dbTime(*t)
	return &v
}
