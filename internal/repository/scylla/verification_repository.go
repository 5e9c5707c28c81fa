package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"catalog-api/internal/models"
	"catalog-api/internal/util"
)

type verificationRepository struct {
	client *ScyllaClient
}

func NewVerificationRepository(client *ScyllaClient, logger *zap.Logger) VerificationRepository {
	return &verificationRepository{
		client: client,
	}
}

// CreateVerification persists a verification request into both the
// per-account history table and the by-code lookup table. The request must
// be durable before any notification is attempted; callers rely on that
// ordering.
func (r *verificationRepository) CreateVerification(ctx context.Context, req *models.VerificationRequest) error {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	historyQuery := r.client.Prepared.CreateVerification.Bind(
		req.AccountID, req.CreatedAt, req.Code, req.ExpiresAt, req.ConsumedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(historyQuery, 2); err != nil {
		util.Error("Failed to create verification request",
			zap.String("account_id", req.AccountID),
			zap.Error(err))
		return fmt.Errorf("failed to create verification request: %w", err)
	}

	codeQuery := r.client.Prepared.CreateVerificationByCode.Bind(
		req.Code, req.AccountID, req.CreatedAt, req.ExpiresAt, req.ConsumedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(codeQuery, 2); err != nil {
		util.Error("Failed to index verification code",
			zap.String("account_id", req.AccountID),
			zap.Error(err))
		return fmt.Errorf("failed to index verification code: %w", err)
	}

	util.Info("Verification request created",
		zap.String("account_id", req.AccountID),
		zap.Time("expires_at", req.ExpiresAt))

	return nil
}

func (r *verificationRepository) GetVerificationByCode(ctx context.Context, code string) (*models.VerificationRequest, error) {
	req := &models.VerificationRequest{}

	query := r.client.Prepared.GetVerificationByCode.Bind(code).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&req.Code, &req.AccountID, &req.CreatedAt, &req.ExpiresAt, &req.ConsumedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get verification by code", zap.Error(err))
		return nil, fmt.Errorf("failed to get verification by code: %w", err)
	}

	return req, nil
}

// ConsumeVerification marks the code consumed with a lightweight
// transaction guarded on consumed_at being unset, so a code can only ever
// be redeemed once even under concurrent verification calls.
func (r *verificationRepository) ConsumeVerification(ctx context.Context, code string) (bool, error) {
	now := time.Now().UTC()

	var existing *time.Time
	applied, err := r.client.Session.Query(
		`UPDATE verification_by_code SET consumed_at = ? WHERE code = ? IF consumed_at = null`,
		now, code).WithContext(ctx).ScanCAS(&existing)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, ErrNotFound
		}
		util.Error("Failed to consume verification code", zap.Error(err))
		return false, fmt.Errorf("failed to consume verification code: %w", err)
	}
	if !applied {
		return false, nil
	}

	// Mirror into the per-account history table; the by-code row is the
	// arbiter, so this write is best-effort.
	req, err := r.GetVerificationByCode(ctx, code)
	if err == nil {
		err = r.client.Session.Query(
			`UPDATE verification_requests SET consumed_at = ? WHERE account_id = ? AND created_at = ?`,
			now, req.AccountID, req.CreatedAt).WithContext(ctx).Exec()
	}
	if err != nil {
		util.Warn("Failed to mirror verification consumption", zap.Error(err))
	}

	return true, nil
}

func (r *verificationRepository) ListVerificationsByAccount(ctx context.Context, accountID string) ([]*models.VerificationRequest, error) {
	iter := r.client.Prepared.ListVerificationsByAccount.Bind(accountID).WithContext(ctx).Iter()

	var requests []*models.VerificationRequest
	for {
		req := &models.VerificationRequest{}
		if !iter.Scan(&req.Code, &req.AccountID, &req.CreatedAt, &req.ExpiresAt, &req.ConsumedAt) {
			break
		}
		requests = append(requests, req)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list verification requests",
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list verification requests: %w", err)
	}

	return requests, nil
}
