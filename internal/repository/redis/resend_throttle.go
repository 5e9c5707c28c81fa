package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"catalog-api/internal/client"
	"catalog-api/internal/util"
)

const resendPrefix = "verify_resend:"

// ResendThrottle limits how often a verification email can be re-requested
// per address. Allow claims the cooldown window atomically with SETNX.
type ResendThrottle struct {
	client   *client.RedisClient
	cooldown time.Duration
}

func NewResendThrottle(client *client.RedisClient, cooldown time.Duration) *ResendThrottle {
	return &ResendThrottle{
		client:   client,
		cooldown: cooldown,
	}
}

// Allow returns true when no resend happened within the cooldown window and
// claims the window for this caller.
func (t *ResendThrottle) Allow(ctx context.Context, emailLower string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := resendPrefix + emailLower
	claimed, err := t.client.SetNX(ctx, key, time.Now().Unix(), t.cooldown)
	if err != nil {
		util.Error("Failed to check resend throttle", zap.Error(err))
		return false, fmt.Errorf("failed to check resend throttle: %w", err)
	}

	if !claimed {
		util.Debug("Verification resend throttled",
			zap.Duration("cooldown", t.cooldown))
	}
	return claimed, nil
}
