package apikeys

import (
	"context"
	"fmt"
	"time"

	"github.com/bi-platform/apikeys/internal/auth"
	"github.com/bi-platform/apikeys/internal/db/models"
	"github.com/bi-platform/apikeys/internal/telemetry"
)

// Outcome is the result class of an authentication attempt.
type Outcome int

const (
	OutcomeAuthenticated Outcome = iota
	OutcomeNoCredentials
	OutcomeInvalidCredentials
	OutcomeRevoked
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeNoCredentials:
		return "no_credentials"
	case OutcomeInvalidCredentials:
		return "invalid_credentials"
	case OutcomeRevoked:
		return "revoked"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AuthResult is the value returned by Authenticate. UserID, Workspace and KeyID are set only
// when Outcome is OutcomeAuthenticated.
type AuthResult struct {
	Outcome   Outcome
	UserID    string
	Workspace string
	KeyID     string
}

// OK reports whether the attempt authenticated.
func (r AuthResult) OK() bool {
	return r.Outcome == OutcomeAuthenticated
}

// Authenticate resolves an Authorization header value to a key owner.
//
// Rejections are reported through AuthResult.Outcome; the error is non-nil only when the store
// could not be read. Every rejection after a candidate was parsed costs at least one bcrypt
// verification so unknown, revoked and expired keys take the same time to refuse.
func (s *Service) Authenticate(ctx context.Context, header string) (AuthResult, error) {
	start := time.Now()
	res, err := s.authenticate(ctx, header)

	label := res.Outcome.String()
	if err != nil {
		label = "error"
	}
	telemetry.APIKeyAuthAttemptsTotal.WithLabelValues(label).Inc()
	telemetry.APIKeyAuthDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return res, err
}

func (s *Service) authenticate(ctx context.Context, header string) (AuthResult, error) {
	candidate := auth.ExtractAPIKeyFromHeader(header)
	if candidate == "" {
		return AuthResult{Outcome: OutcomeNoCredentials}, nil
	}

	stored, err := s.resolve(ctx, candidate)
	if err != nil {
		return AuthResult{}, err
	}
	if stored == nil {
		s.codec.Verify(candidate, s.codec.DummyHash())
		s.logger.Debug("api key rejected", "outcome", OutcomeInvalidCredentials.String(), "key_prefix", auth.PrefixOf(candidate))
		return AuthResult{Outcome: OutcomeInvalidCredentials}, nil
	}

	now := s.now()
	if stored.IsRevoked() {
		s.logger.Info("api key rejected", "outcome", OutcomeRevoked.String(), "key_id", stored.ID, "user_id", stored.UserID)
		return AuthResult{Outcome: OutcomeRevoked}, nil
	}
	if stored.IsExpired(now) {
		s.logger.Info("api key rejected", "outcome", OutcomeExpired.String(), "key_id", stored.ID, "user_id", stored.UserID)
		return AuthResult{Outcome: OutcomeExpired}, nil
	}

	if err := s.store.StampLastUsed(ctx, stored, now); err != nil {
		s.logger.Warn("failed to update api key last_used_on", "key_id", stored.ID, "error", err)
	}

	return AuthResult{
		Outcome:   OutcomeAuthenticated,
		UserID:    stored.UserID,
		Workspace: stored.WorkspaceName,
		KeyID:     stored.ID,
	}, nil
}

// resolve finds the record whose hash verifies against candidate, scanning at most
// maxCandidates records sharing its prefix. Returns nil when none match.
func (s *Service) resolve(ctx context.Context, candidate string) (*models.APIKey, error) {
	records, err := s.store.ListByPrefix(ctx, auth.PrefixOf(candidate), s.maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	for _, rec := range records {
		s.codec.ObserveStoredHash(rec.KeyHash)
		if s.codec.Verify(candidate, rec.KeyHash) {
			return rec, nil
		}
	}
	return nil, nil
}
