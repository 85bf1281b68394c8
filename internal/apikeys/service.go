package apikeys

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bi-platform/apikeys/internal/auth"
	"github.com/bi-platform/apikeys/internal/clock"
	"github.com/bi-platform/apikeys/internal/db/models"
)

// DefaultWorkspace is the workspace label given to keys created without one.
const DefaultWorkspace = "default"

// DefaultMaxPrefixCandidates bounds the bcrypt verifications per authentication attempt.
const DefaultMaxPrefixCandidates = 4

// Principal is the acting identity supplied by the host.
type Principal struct {
	ID      string
	IsAdmin bool
}

// CanActOn reports whether p may manage keys owned by userID.
func (p Principal) CanActOn(userID string) bool {
	return p.IsAdmin || (p.ID != "" && p.ID == userID)
}

// Codec is the subset of auth.KeyCodec the service depends on.
type Codec interface {
	Generate() (auth.GeneratedKey, error)
	Verify(candidate, storedHash string) bool
	ObserveStoredHash(storedHash string)
	DummyHash() string
}

// Service orchestrates the key lifecycle. It holds no mutable state and is safe for concurrent use.
type Service struct {
	store         KeyStore
	codec         Codec
	clock         clock.Clock
	logger        *slog.Logger
	maxCandidates int
}

// Option configures a Service.
type Option func(*Service)

// WithMaxPrefixCandidates sets how many records sharing a key prefix are verified per attempt.
func WithMaxPrefixCandidates(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCandidates = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires a Service. A nil clock uses clock.System.
func NewService(store KeyStore, codec Codec, clk clock.Clock, opts ...Option) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	s := &Service{
		store:         store,
		codec:         codec,
		clock:         clk,
		logger:        slog.Default(),
		maxCandidates: DefaultMaxPrefixCandidates,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "apikeys")
	return s
}

// Warm precomputes the codec's dummy hash so the first failed authentication is not slower than later ones.
func (s *Service) Warm() {
	_ = s.codec.DummyHash()
}

// GetKey returns a single key visible to principal.
func (s *Service) GetKey(ctx context.Context, principal Principal, id string) (*models.APIKey, error) {
	key, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	if key == nil {
		return nil, ErrNotFound
	}
	if !principal.CanActOn(key.UserID) {
		return nil, ErrForbidden
	}
	return key, nil
}

// ListKeys returns keys owned by userID (the principal itself when empty). With activeOnly, revoked
// and expired keys are left out.
func (s *Service) ListKeys(ctx context.Context, principal Principal, userID string, activeOnly bool) ([]*models.APIKey, error) {
	if userID == "" {
		userID = principal.ID
	}
	if !principal.CanActOn(userID) {
		return nil, ErrForbidden
	}

	var (
		keys []*models.APIKey
		err  error
	)
	if activeOnly {
		keys, err = s.store.ListActiveByUser(ctx, userID, s.clock.Now())
	} else {
		keys, err = s.store.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// DeleteKey removes a record outright. Admin only; revocation is the normal path.
func (s *Service) DeleteKey(ctx context.Context, principal Principal, id string) error {
	if !principal.IsAdmin {
		return ErrForbidden
	}
	key, err := s.store.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get api key: %w", err)
	}
	if key == nil {
		return ErrNotFound
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	s.logger.Warn("api key deleted",
		"key_id", key.ID,
		"key_prefix", key.KeyPrefix,
		"user_id", key.UserID,
		"deleted_by", principal.ID,
	)
	return nil
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}
