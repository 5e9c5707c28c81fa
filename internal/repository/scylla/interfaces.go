package scylla

import (
	"context"
	"errors"

	"catalog-api/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken and ErrUsernameTaken surface storage-level uniqueness
	// losses. The identity claim tables are the final arbiter under
	// concurrent registration; callers translate these into the same
	// field-level conflict shape as the pre-insert check.
	ErrEmailTaken    = errors.New("email address already claimed")
	ErrUsernameTaken = errors.New("username already claimed")
)

// AccountRepository is the persistence collaborator for accounts.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByID(ctx context.Context, accountID string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	MarkVerified(ctx context.Context, accountID string) error
	HealthCheck(ctx context.Context) error
}

// VerificationRepository is the persistence collaborator for verification
// requests.
type VerificationRepository interface {
	CreateVerification(ctx context.Context, req *models.VerificationRequest) error
	GetVerificationByCode(ctx context.Context, code string) (*models.VerificationRequest, error)
	// ConsumeVerification marks a code consumed exactly once. It returns
	// ErrNotFound for unknown codes and false when the code was already
	// consumed by a concurrent caller.
	ConsumeVerification(ctx context.Context, code string) (bool, error)
	ListVerificationsByAccount(ctx context.Context, accountID string) ([]*models.VerificationRequest, error)
}
