package apikeys

import (
	"context"
	"fmt"

	"github.com/bi-platform/apikeys/internal/command"
	"github.com/bi-platform/apikeys/internal/db/models"
	"github.com/bi-platform/apikeys/internal/telemetry"
)

type revokeKeyCommand struct {
	svc       *Service
	principal Principal
	id        string

	key *models.APIKey // loaded by Validate
}

func (c *revokeKeyCommand) Name() string { return "apikey.revoke" }

func (c *revokeKeyCommand) Validate(ctx context.Context) error {
	key, err := c.svc.store.FindByID(ctx, c.id)
	if err != nil {
		return fmt.Errorf("failed to get api key: %w", err)
	}
	if key == nil {
		return ErrNotFound
	}
	if !c.principal.CanActOn(key.UserID) {
		return ErrForbidden
	}
	c.key = key
	return nil
}

func (c *revokeKeyCommand) Run(ctx context.Context) (*models.APIKey, error) {
	now := c.svc.now()
	if err := c.svc.store.StampRevoked(ctx, c.key, c.principal.ID, now); err != nil {
		return nil, err
	}

	revoked := c.key.Clone()
	by := c.principal.ID
	revoked.RevokedOn = &now
	revoked.RevokedByID = &by

	telemetry.APIKeysRevokedTotal.Inc()
	c.svc.logger.Info("api key revoked",
		"key_id", revoked.ID,
		"key_prefix", revoked.KeyPrefix,
		"user_id", revoked.UserID,
		"revoked_by", by,
	)
	return revoked, nil
}

// RevokeKey permanently disables a key. The record stays visible for audit. A second revocation
// fails with ErrAlreadyRevoked and changes nothing.
func (s *Service) RevokeKey(ctx context.Context, principal Principal, id string) (*models.APIKey, error) {
	return command.Execute[*models.APIKey](ctx, s.logger, &revokeKeyCommand{
		svc:       s,
		principal: principal,
		id:        id,
	})
}
