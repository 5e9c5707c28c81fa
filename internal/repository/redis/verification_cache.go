package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalog-api/internal/client"
	"catalog-api/internal/util"
)

const verificationPrefix = "verify:"

var ErrCodeNotCached = errors.New("verification code not cached")

// VerificationCache mirrors live verification codes with a TTL equal to the
// code validity window. The Scylla table is the source of truth; the cache
// serves the fast path on verify and falls through on miss.
type VerificationCache struct {
	client *client.RedisClient
}

func NewVerificationCache(client *client.RedisClient) *VerificationCache {
	return &VerificationCache{client: client}
}

func (c *VerificationCache) SetCode(ctx context.Context, code, accountID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := verificationPrefix + code
	if err := c.client.Set(ctx, key, accountID, ttl); err != nil {
		util.Error("Failed to cache verification code",
			zap.String("account_id", accountID),
			zap.Duration("ttl", ttl),
			zap.Error(err))
		return fmt.Errorf("failed to cache verification code: %w", err)
	}

	util.Debug("Verification code cached",
		zap.String("account_id", accountID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *VerificationCache) GetAccountID(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	accountID, err := c.client.Get(ctx, verificationPrefix+code)
	if err != nil {
		if err == client.ErrKeyNotFound {
			return "", ErrCodeNotCached
		}
		util.Error("Failed to read verification code from cache", zap.Error(err))
		return "", fmt.Errorf("failed to read verification code from cache: %w", err)
	}

	return accountID, nil
}

// DeleteCode drops a consumed code so the fast path cannot serve it again.
func (c *VerificationCache) DeleteCode(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, verificationPrefix+code); err != nil {
		util.Error("Failed to delete verification code from cache", zap.Error(err))
		return fmt.Errorf("failed to delete verification code from cache: %w", err)
	}
	return nil
}
