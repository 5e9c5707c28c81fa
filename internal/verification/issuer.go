package verification

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalog-api/internal/models"
	"catalog-api/internal/repository/scylla"
	"catalog-api/internal/util"
)

const codeBytes = 32

// CodeCache mirrors live codes with a TTL. Implemented by the Redis
// verification cache; nil-able for deployments without Redis.
type CodeCache interface {
	SetCode(ctx context.Context, code, accountID string, ttl time.Duration) error
	DeleteCode(ctx context.Context, code string) error
}

// Issuer creates verification requests. Issue persists the request before
// any notification attempt, so the code is checkable even when the email
// never leaves the building. Calling Issue again for the same account is
// the resend path; older codes stay in the history table.
type Issuer struct {
	repo   scylla.VerificationRepository
	cache  CodeCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewIssuer(repo scylla.VerificationRepository, cache CodeCache, ttl time.Duration, logger *zap.Logger) *Issuer {
	return &Issuer{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (i *Issuer) Issue(ctx context.Context, accountID string) (*models.VerificationRequest, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &models.VerificationRequest{
		AccountID: accountID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}

	if err := i.repo.CreateVerification(ctx, req); err != nil {
		return nil, err
	}

	// Cache miss just means the verify path falls through to Scylla.
	if i.cache != nil {
		if err := i.cache.SetCode(ctx, code, accountID, i.ttl); err != nil {
			i.logger.Warn("Failed to cache verification code",
				util.String("account_id", accountID),
				util.ErrorField(err))
		}
	}

	return req, nil
}

// generateCode returns 256 bits of randomness, URL-safe encoded.
func generateCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
