package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"catalog-api/internal/client"
	"catalog-api/internal/hashing"
	"catalog-api/internal/mailer"
	"catalog-api/internal/models"
	"catalog-api/internal/report"
	"catalog-api/internal/repository/scylla"
	"catalog-api/internal/util"
	"catalog-api/internal/verification"
)

const (
	fieldEmail    = "email_address"
	fieldUsername = "username"
	fieldPassword = "password"
	fieldFullName = "full_name"

	emailInUseMessage    = "This Email Address is already in use."
	usernameInUseMessage = "This Username is already in use."
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{2,31}$`)
)

// EventPublisher publishes account lifecycle events. Satisfied by the
// Kafka event producer; nil disables publishing.
type EventPublisher interface {
	Publish(ctx context.Context, event client.AccountEvent) error
}

// ResendLimiter throttles repeat verification emails per address.
type ResendLimiter interface {
	Allow(ctx context.Context, emailLower string) (bool, error)
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	EmailAddress string `json:"email_address"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	FullName     string `json:"full_name"`
}

// AccountService orchestrates registration and email verification.
type AccountService struct {
	accountRepo      scylla.AccountRepository
	verificationRepo scylla.VerificationRepository
	hasher           *hashing.Hasher
	issuer           *verification.Issuer
	dispatcher       *mailer.Dispatcher
	collector        report.Collector
	events           EventPublisher
	resendLimiter    ResendLimiter
	codeCache        verification.CodeCache
	logger           *zap.Logger
}

func NewAccountService(
	accountRepo scylla.AccountRepository,
	verificationRepo scylla.VerificationRepository,
	hasher *hashing.Hasher,
	issuer *verification.Issuer,
	dispatcher *mailer.Dispatcher,
	collector report.Collector,
	events EventPublisher,
	resendLimiter ResendLimiter,
	codeCache verification.CodeCache,
	logger *zap.Logger,
) *AccountService {
	if collector == nil {
		collector = report.Nop{}
	}
	return &AccountService{
		accountRepo:      accountRepo,
		verificationRepo: verificationRepo,
		hasher:           hasher,
		issuer:           issuer,
		dispatcher:       dispatcher,
		collector:        collector,
		events:           events,
		resendLimiter:    resendLimiter,
		codeCache:        codeCache,
		logger:           logger,
	}
}

// Register runs the full signup flow: validate, check identity uniqueness,
// hash, persist, issue a verification code, then attempt notification.
// Notification failure never fails the registration; the account and its
// verification request are already durable by then.
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.Account, error) {
	startTime := time.Now()

	// Validation short-circuits before any I/O.
	if fields := validateRegisterRequest(req); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	conflicts, err := s.checkIdentityConflicts(ctx, req.EmailAddress, req.Username)
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, &ConflictError{Fields: conflicts}
	}

	hashResult, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Username:           strings.TrimSpace(req.Username),
		EmailAddress:       strings.TrimSpace(req.EmailAddress),
		FullName:           strings.TrimSpace(req.FullName),
		PasswordHash:       hashResult.Hash,
		PasswordSalt:       hashResult.Salt,
		PasswordIterations: hashResult.Iterations,
	}

	// The claim tables are the final arbiter: a registration that slipped
	// past the pre-check comes back as the same conflict shape.
	if err := s.accountRepo.CreateAccount(ctx, account); err != nil {
		if conflict := translateClaimLoss(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	// The verification request is persisted before any notification
	// attempt, so a successful response always has a checkable code.
	request, err := s.issuer.Issue(ctx, account.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue verification request: %w", err)
	}

	outcome := s.dispatcher.SendVerification(ctx, account, request.Code)
	if !outcome.Delivered {
		s.collector.Capture(ctx, "email_transport_failed", outcome.Err)
		s.logger.Warn("Registration completed without verification email",
			util.String("account_id", account.AccountID),
			util.ErrorField(outcome.Err))
	}

	s.publishEvent(ctx, client.EventAccountCreated, account.AccountID)

	s.logger.Info("Account registered",
		util.String("account_id", account.AccountID),
		util.String("username", account.Username),
		util.Bool("verification_mail_delivered", outcome.Delivered),
		util.Duration("duration", time.Since(startTime)),
	)

	return account, nil
}

// checkIdentityConflicts runs the email and username lookups concurrently
// and joins both before deciding, so the caller sees every collision at
// once. A transient lookup failure fails the whole flow.
func (s *AccountService) checkIdentityConflicts(ctx context.Context, email, username string) (map[string]string, error) {
	var (
		emailTaken    bool
		usernameTaken bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := s.accountRepo.GetAccountByEmail(gctx, email)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil
			}
			return err
		}
		emailTaken = true
		return nil
	})

	g.Go(func() error {
		_, err := s.accountRepo.GetAccountByUsername(gctx, username)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return nil
			}
			return err
		}
		usernameTaken = true
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	conflicts := make(map[string]string)
	if emailTaken {
		conflicts[fieldEmail] = emailInUseMessage
	}
	if usernameTaken {
		conflicts[fieldUsername] = usernameInUseMessage
	}
	return conflicts, nil
}

// Verify redeems a verification code: exactly once, within its validity
// window. On success the owning account is marked verified.
func (s *AccountService) Verify(ctx context.Context, code string) (*models.Account, error) {
	if code == "" {
		return nil, &ValidationError{Fields: map[string]string{"code": "A verification code is required."}}
	}

	request, err := s.verificationRepo.GetVerificationByCode(ctx, code)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to look up verification code: %w", err)
	}

	if request.Consumed() {
		return nil, ErrCodeConsumed
	}
	if request.Expired(time.Now().UTC()) {
		return nil, ErrCodeExpired
	}

	consumed, err := s.verificationRepo.ConsumeVerification(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification code: %w", err)
	}
	if !consumed {
		// A concurrent verify won the race.
		return nil, ErrCodeConsumed
	}

	if err := s.accountRepo.MarkVerified(ctx, request.AccountID); err != nil {
		return nil, fmt.Errorf("failed to mark account verified: %w", err)
	}

	if s.codeCache != nil {
		if err := s.codeCache.DeleteCode(ctx, code); err != nil {
			s.logger.Warn("Failed to drop consumed code from cache", util.ErrorField(err))
		}
	}

	s.publishEvent(ctx, client.EventAccountVerified, request.AccountID)

	account, err := s.accountRepo.GetAccountByID(ctx, request.AccountID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

// ResendVerification issues a fresh code and re-sends the link. Unknown and
// already-verified addresses return silently, so the endpoint cannot be
// used to enumerate accounts.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !emailPattern.MatchString(email) {
		return &ValidationError{Fields: map[string]string{fieldEmail: "A valid Email Address is required."}}
	}

	if s.resendLimiter != nil {
		allowed, err := s.resendLimiter.Allow(ctx, strings.ToLower(email))
		if err != nil {
			return fmt.Errorf("failed to check resend throttle: %w", err)
		}
		if !allowed {
			return ErrResendThrottled
		}
	}

	account, err := s.accountRepo.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			s.logger.Debug("Verification resend for unknown address")
			return nil
		}
		return fmt.Errorf("failed to look up account for resend: %w", err)
	}

	if account.IsVerified {
		return nil
	}

	request, err := s.issuer.Issue(ctx, account.AccountID)
	if err != nil {
		return fmt.Errorf("failed to issue verification request: %w", err)
	}

	outcome := s.dispatcher.SendVerification(ctx, account, request.Code)
	if !outcome.Delivered {
		s.collector.Capture(ctx, "email_transport_failed", outcome.Err)
	}

	return nil
}

// ListAccounts returns every account.
func (s *AccountService) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.accountRepo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) HealthCheck(ctx context.Context) error {
	return s.accountRepo.HealthCheck(ctx)
}

func (s *AccountService) publishEvent(ctx context.Context, eventType, accountID string) {
	if s.events == nil {
		return
	}
	event := client.AccountEvent{
		Type:       eventType,
		AccountID:  accountID,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish account event",
			util.String("type", eventType),
			util.String("account_id", accountID),
			util.ErrorField(err))
	}
}

func translateClaimLoss(err error) *ConflictError {
	switch {
	case errors.Is(err, scylla.ErrEmailTaken):
		return &ConflictError{Fields: map[string]string{fieldEmail: emailInUseMessage}}
	case errors.Is(err, scylla.ErrUsernameTaken):
		return &ConflictError{Fields: map[string]string{fieldUsername: usernameInUseMessage}}
	default:
		return nil
	}
}

func validateRegisterRequest(req *RegisterRequest) map[string]string {
	fields := make(map[string]string)

	email := strings.TrimSpace(req.EmailAddress)
	switch {
	case email == "":
		fields[fieldEmail] = "An Email Address is required."
	case len(email) > 254 || !emailPattern.MatchString(email):
		fields[fieldEmail] = "A valid Email Address is required."
	}

	username := strings.TrimSpace(req.Username)
	switch {
	case username == "":
		fields[fieldUsername] = "A Username is required."
	case !usernamePattern.MatchString(username):
		fields[fieldUsername] = "Usernames must be 3-32 characters: letters, digits, '.', '_' or '-'."
	}

	switch {
	case req.Password == "":
		fields[fieldPassword] = "A Password is required."
	case len(req.Password) < 8:
		fields[fieldPassword] = "Passwords must be at least 8 characters."
	case len(req.Password) > 128:
		fields[fieldPassword] = "Passwords must be at most 128 characters."
	}

	if len(strings.TrimSpace(req.FullName)) > 100 {
		fields[fieldFullName] = "Names must be at most 100 characters."
	}

	return fields
}
