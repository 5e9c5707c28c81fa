package scylla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalog-api/internal/bucketing"
	"catalog-api/internal/models"
	"catalog-api/internal/util"
)

type accountRepository struct {
	client    *ScyllaClient
	bucketing *bucketing.Manager
}

func NewAccountRepository(client *ScyllaClient, bm *bucketing.Manager, logger *zap.Logger) AccountRepository {
	return &accountRepository{
		client:    client,
		bucketing: bm,
	}
}

// CreateAccount persists a new account. The identity claim tables are
// written first with lightweight transactions; a lost claim means a
// concurrent registration won the race, and the caller receives
// ErrEmailTaken / ErrUsernameTaken rather than a generic failure.
func (r *accountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.AccountID == "" {
		account.AccountID = uuid.New().String()
	}
	account.AccountBucket = r.bucketing.GetAccountBucket(account.AccountID)

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	emailLower := strings.ToLower(account.EmailAddress)
	usernameLower := strings.ToLower(account.Username)

	// Claim the email address.
	var existingID string
	applied, err := r.client.Session.Query(
		`INSERT INTO accounts_by_email (email_lower, account_id) VALUES (?, ?) IF NOT EXISTS`,
		emailLower, account.AccountID).WithContext(ctx).ScanCAS(&existingID)
	if err != nil {
		return fmt.Errorf("failed to claim email address: %w", err)
	}
	if !applied {
		return ErrEmailTaken
	}

	// Claim the username.
	existingID = ""
	applied, err = r.client.Session.Query(
		`INSERT INTO accounts_by_username (username_lower, account_id) VALUES (?, ?) IF NOT EXISTS`,
		usernameLower, account.AccountID).WithContext(ctx).ScanCAS(&existingID)
	if err != nil || !applied {
		// Release the email claim so a retry is possible.
		r.releaseEmailClaim(ctx, emailLower, account.AccountID)
		if err != nil {
			return fmt.Errorf("failed to claim username: %w", err)
		}
		return ErrUsernameTaken
	}

	query := r.client.Prepared.CreateAccount.Bind(
		account.AccountBucket, account.AccountID, account.Username,
		account.EmailAddress, account.FullName,
		account.PasswordHash, account.PasswordSalt, account.PasswordIterations,
		account.IsVerified, account.VerifiedAt, account.CreatedAt, account.UpdatedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		r.releaseEmailClaim(ctx, emailLower, account.AccountID)
		r.releaseUsernameClaim(ctx, usernameLower, account.AccountID)
		util.Error("Failed to create account",
			zap.String("account_id", account.AccountID),
			zap.Error(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	util.Info("Account created",
		zap.String("account_id", account.AccountID),
		zap.String("username", account.Username),
		zap.Int("account_bucket", account.AccountBucket))

	return nil
}

func (r *accountRepository) releaseEmailClaim(ctx context.Context, emailLower, accountID string) {
	err := r.client.Session.Query(
		`DELETE FROM accounts_by_email WHERE email_lower = ? IF account_id = ?`,
		emailLower, accountID).WithContext(ctx).Exec()
	if err != nil {
		util.Warn("Failed to release email claim",
			zap.String("email_lower", emailLower),
			zap.Error(err))
	}
}

func (r *accountRepository) releaseUsernameClaim(ctx context.Context, usernameLower, accountID string) {
	err := r.client.Session.Query(
		`DELETE FROM accounts_by_username WHERE username_lower = ? IF account_id = ?`,
		usernameLower, accountID).WithContext(ctx).Exec()
	if err != nil {
		util.Warn("Failed to release username claim",
			zap.String("username_lower", usernameLower),
			zap.Error(err))
	}
}

func (r *accountRepository) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	bucket := r.bucketing.GetAccountBucket(accountID)
	account := &models.Account{}

	query := r.client.Prepared.GetAccountByID.Bind(bucket, accountID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&account.AccountBucket, &account.AccountID, &account.Username,
		&account.EmailAddress, &account.FullName,
		&account.PasswordHash, &account.PasswordSalt, &account.PasswordIterations,
		&account.IsVerified, &account.VerifiedAt, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get account by ID",
			zap.String("account_id", accountID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}

	return account, nil
}

func (r *accountRepository) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var accountID string
	query := r.client.Prepared.GetEmailClaim.Bind(strings.ToLower(email)).WithContext(ctx)

	err := r.client.ScanWithRetry(query, &accountID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up email claim: %w", err)
	}

	return r.GetAccountByID(ctx, accountID)
}

func (r *accountRepository) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var accountID string
	query := r.client.Prepared.GetUsernameClaim.Bind(strings.ToLower(username)).WithContext(ctx)

	err := r.client.ScanWithRetry(query, &accountID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up username claim: %w", err)
	}

	return r.GetAccountByID(ctx, accountID)
}

func (r *accountRepository) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	iter := r.client.Prepared.ListAccounts.WithContext(ctx).Iter()

	var accounts []*models.Account
	for {
		account := &models.Account{}
		if !iter.Scan(
			&account.AccountBucket, &account.AccountID, &account.Username,
			&account.EmailAddress, &account.FullName,
			&account.PasswordHash, &account.PasswordSalt, &account.PasswordIterations,
			&account.IsVerified, &account.VerifiedAt, &account.CreatedAt, &account.UpdatedAt) {
			break
		}
		accounts = append(accounts, account)
	}

	if err := iter.Close(); err != nil {
		util.Error("Failed to list accounts", zap.Error(err))
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) MarkVerified(ctx context.Context, accountID string) error {
	bucket := r.bucketing.GetAccountBucket(accountID)
	now := time.Now().UTC()

	query := r.client.Prepared.MarkVerified.Bind(now, now, bucket, accountID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark account verified",
			zap.String("account_id", accountID),
			zap.Error(err))
		return fmt.Errorf("failed to mark account verified: %w", err)
	}

	util.Info("Account verified",
		zap.String("account_id", accountID))

	return nil
}

func (r *accountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
