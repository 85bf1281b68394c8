package apikeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/bi-platform/apikeys/internal/command"
	"github.com/bi-platform/apikeys/internal/db/models"
	"github.com/bi-platform/apikeys/internal/telemetry"
)

// CreateKeyRequest describes a key to create. UserID defaults to the acting principal.
type CreateKeyRequest struct {
	UserID        string
	Name          string
	WorkspaceName string
	ExpiresOn     *time.Time
}

// CreatedKey carries the stored record and the plaintext. The plaintext exists only here.
type CreatedKey struct {
	Key       *models.APIKey
	Plaintext string
}

type createKeyCommand struct {
	svc       *Service
	principal Principal
	req       CreateKeyRequest
	now       time.Time
}

func (c *createKeyCommand) Name() string { return "apikey.create" }

func (c *createKeyCommand) Validate(ctx context.Context) error {
	return command.Check(ctx,
		func(context.Context) error {
			if c.req.Name == "" {
				return &MissingFieldError{Field: "name"}
			}
			return nil
		},
		func(context.Context) error {
			// labels end up in log lines and mail headers
			if hasControl(c.req.Name) {
				return &InvalidFieldError{Field: "name", Reason: "must not contain control characters"}
			}
			if hasControl(c.req.WorkspaceName) {
				return &InvalidFieldError{Field: "workspace_name", Reason: "must not contain control characters"}
			}
			return nil
		},
		func(context.Context) error {
			if c.req.ExpiresOn != nil && !c.req.ExpiresOn.After(c.now) {
				return ErrInvalidExpiry
			}
			return nil
		},
		func(context.Context) error {
			if !c.principal.CanActOn(c.req.UserID) {
				return ErrForbidden
			}
			return nil
		},
	)
}

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

func (c *createKeyCommand) Run(ctx context.Context) (*CreatedKey, error) {
	// A duplicate hash means the random source repeated itself; one fresh draw is allowed.
	for attempt := 1; attempt <= 2; attempt++ {
		generated, err := c.svc.codec.Generate()
		if err != nil {
			return nil, err
		}

		rec := &models.APIKey{
			UserID:        c.req.UserID,
			Name:          c.req.Name,
			KeyHash:       generated.Hash,
			KeyPrefix:     generated.Prefix,
			WorkspaceName: c.req.WorkspaceName,
			CreatedOn:     c.now,
			CreatedByID:   c.principal.ID,
			ExpiresOn:     c.req.ExpiresOn,
		}

		stored, err := c.svc.store.Insert(ctx, rec)
		if errors.Is(err, ErrDuplicateHash) {
			c.svc.logger.Warn("api key hash collision, regenerating", "attempt", attempt, "user_id", c.req.UserID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store api key: %w", err)
		}

		telemetry.APIKeysCreatedTotal.Inc()
		c.svc.logger.Info("api key created",
			"key_id", stored.ID,
			"key_prefix", stored.KeyPrefix,
			"user_id", stored.UserID,
			"created_by", stored.CreatedByID,
			"workspace", stored.WorkspaceName,
		)
		return &CreatedKey{Key: stored, Plaintext: generated.Plaintext}, nil
	}
	return nil, ErrCreateFailed
}

// CreateKey validates req, generates a key and stores its hash. The returned plaintext must be
// surfaced to the end user once and never logged.
func (s *Service) CreateKey(ctx context.Context, principal Principal, req CreateKeyRequest) (*CreatedKey, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.WorkspaceName = strings.TrimSpace(req.WorkspaceName)
	if req.WorkspaceName == "" {
		req.WorkspaceName = DefaultWorkspace
	}
	if req.UserID == "" {
		req.UserID = principal.ID
	}
	if req.ExpiresOn != nil {
		exp := req.ExpiresOn.UTC()
		req.ExpiresOn = &exp
	}

	return command.Execute[*CreatedKey](ctx, s.logger, &createKeyCommand{
		svc:       s,
		principal: principal,
		req:       req,
		now:       s.now(),
	})
}
