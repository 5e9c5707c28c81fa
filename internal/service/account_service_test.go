package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-api/internal/client"
	"catalog-api/internal/config"
	"catalog-api/internal/hashing"
	"catalog-api/internal/mailer"
	"catalog-api/internal/models"
	"catalog-api/internal/repository/scylla"
	"catalog-api/internal/verification"
)

// --- fakes ---

// fakeAccountStore enforces case-insensitive identity uniqueness at insert
// time, the same contract the claim tables provide.
type fakeAccountStore struct {
	mu         sync.Mutex
	byID       map[string]*models.Account
	byEmail    map[string]string
	byUsername map[string]string

	createCalls int
	lookupCalls int
	failLookups bool

	// hideFromLookups makes the read path miss while the insert path still
	// enforces claims, reproducing a lost registration race.
	hideFromLookups bool
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		byID:       make(map[string]*models.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (f *fakeAccountStore) CreateAccount(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++

	emailKey := strings.ToLower(account.EmailAddress)
	usernameKey := strings.ToLower(account.Username)
	if _, taken := f.byEmail[emailKey]; taken {
		return scylla.ErrEmailTaken
	}
	if _, taken := f.byUsername[usernameKey]; taken {
		return scylla.ErrUsernameTaken
	}

	if account.AccountID == "" {
		account.AccountID = uuid.New().String()
	}
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt

	f.byID[account.AccountID] = account
	f.byEmail[emailKey] = account.AccountID
	f.byUsername[usernameKey] = account.AccountID
	return nil
}

func (f *fakeAccountStore) GetAccountByID(ctx context.Context, accountID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if account, ok := f.byID[accountID]; ok {
		return account, nil
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeAccountStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.failLookups {
		return nil, errors.New("read timeout")
	}
	if f.hideFromLookups {
		return nil, scylla.ErrNotFound
	}
	if id, ok := f.byEmail[strings.ToLower(email)]; ok {
		return f.byID[id], nil
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeAccountStore) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupCalls++
	if f.failLookups {
		return nil, errors.New("read timeout")
	}
	if f.hideFromLookups {
		return nil, scylla.ErrNotFound
	}
	if id, ok := f.byUsername[strings.ToLower(username)]; ok {
		return f.byID[id], nil
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeAccountStore) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	accounts := make([]*models.Account, 0, len(f.byID))
	for _, account := range f.byID {
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (f *fakeAccountStore) MarkVerified(ctx context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.byID[accountID]
	if !ok {
		return scylla.ErrNotFound
	}
	now := time.Now().UTC()
	account.IsVerified = true
	account.VerifiedAt = &now
	return nil
}

func (f *fakeAccountStore) HealthCheck(ctx context.Context) error { return nil }

type fakeVerificationStore struct {
	mu     sync.Mutex
	byCode map[string]*models.VerificationRequest
}

func newFakeVerificationStore() *fakeVerificationStore {
	return &fakeVerificationStore{byCode: make(map[string]*models.VerificationRequest)}
}

func (f *fakeVerificationStore) CreateVerification(ctx context.Context, req *models.VerificationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *req
	f.byCode[req.Code] = &clone
	return nil
}

func (f *fakeVerificationStore) GetVerificationByCode(ctx context.Context, code string) (*models.VerificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.byCode[code]; ok {
		clone := *req
		return &clone, nil
	}
	return nil, scylla.ErrNotFound
}

func (f *fakeVerificationStore) ConsumeVerification(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.byCode[code]
	if !ok {
		return false, scylla.ErrNotFound
	}
	if req.ConsumedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	req.ConsumedAt = &now
	return true, nil
}

func (f *fakeVerificationStore) ListVerificationsByAccount(ctx context.Context, accountID string) ([]*models.VerificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.VerificationRequest
	for _, req := range f.byCode {
		if req.AccountID == accountID {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingCollector struct {
	mu       sync.Mutex
	captures []string
}

func (c *recordingCollector) Capture(ctx context.Context, category string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captures = append(c.captures, category)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []client.AccountEvent
}

func (e *recordingEvents) Publish(ctx context.Context, event client.AccountEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (l *stubLimiter) Allow(ctx context.Context, emailLower string) (bool, error) {
	return l.allowed, l.err
}

// --- harness ---

type serviceHarness struct {
	svc       *AccountService
	accounts  *fakeAccountStore
	verifs    *fakeVerificationStore
	sender    *recordingSender
	collector *recordingCollector
	events    *recordingEvents
	limiter   *stubLimiter
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	cfg := &config.Config{}
	cfg.Hashing.Iterations = 1000
	cfg.Hashing.SaltLength = 16
	cfg.Hashing.KeyLength = 32

	accounts := newFakeAccountStore()
	verifs := newFakeVerificationStore()
	sender := &recordingSender{}
	collector := &recordingCollector{}
	events := &recordingEvents{}
	limiter := &stubLimiter{allowed: true}

	logger := zap.NewNop()
	issuer := verification.NewIssuer(verifs, nil, 48*time.Hour, logger)
	dispatcher := mailer.NewDispatcher(sender, mailer.DispatcherConfig{
		BaseURL:  "http://localhost:3000",
		From:     "support@catalog.local",
		FromName: "Catalog API",
		Enabled:  true,
	}, logger)

	svc := NewAccountService(
		accounts,
		verifs,
		hashing.NewHasher(cfg),
		issuer,
		dispatcher,
		collector,
		events,
		limiter,
		nil,
		logger,
	)

	return &serviceHarness{
		svc:       svc,
		accounts:  accounts,
		verifs:    verifs,
		sender:    sender,
		collector: collector,
		events:    events,
		limiter:   limiter,
	}
}

func validRequest() *RegisterRequest {
	return &RegisterRequest{
		EmailAddress: "taylor@example.com",
		Username:     "taylor",
		Password:     "long enough password",
		FullName:     "Taylor Swift",
	}
}

// --- registration ---

func TestRegisterHappyPath(t *testing.T) {
	h := newServiceHarness(t)

	account, err := h.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, account.AccountID)
	assert.Equal(t, "taylor", account.Username)
	assert.Equal(t, "taylor@example.com", account.EmailAddress)
	assert.False(t, account.IsVerified)
	assert.NotEmpty(t, account.PasswordHash)
	assert.NotEmpty(t, account.PasswordSalt)
	assert.Equal(t, 1000, account.PasswordIterations)

	// A pending verification request exists and was mailed out.
	requests, err := h.verifs.ListVerificationsByAccount(context.Background(), account.AccountID)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Nil(t, requests[0].ConsumedAt)

	require.Equal(t, 1, h.sender.count())
	assert.Contains(t, h.sender.sent[0].HTMLBody, requests[0].Code)

	assert.Equal(t, []string{client.EventAccountCreated}, h.events.types())
	assert.Empty(t, h.collector.captures)
}

func TestRegisterSucceedsWhenMailFails(t *testing.T) {
	h := newServiceHarness(t)
	h.sender.err = errors.New("smtp relay unreachable")

	account, err := h.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	// Both the account and its verification request are durable even
	// though nothing was delivered.
	stored, err := h.accounts.GetAccountByID(context.Background(), account.AccountID)
	require.NoError(t, err)
	assert.Equal(t, account.AccountID, stored.AccountID)

	requests, err := h.verifs.ListVerificationsByAccount(context.Background(), account.AccountID)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	assert.Equal(t, []string{"email_transport_failed"}, h.collector.captures)
}

func TestRegisterValidationShortCircuits(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Register(context.Background(), &RegisterRequest{
		EmailAddress: "not-an-email",
		Username:     "x",
		Password:     "",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "email_address")
	assert.Contains(t, validationErr.Fields, "username")
	assert.Contains(t, validationErr.Fields, "password")

	// No storage traffic for invalid input.
	assert.Zero(t, h.accounts.lookupCalls)
	assert.Zero(t, h.accounts.createCalls)
	assert.Zero(t, h.sender.count())
}

func TestRegisterReportsBothConflicts(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = h.svc.Register(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityConflict)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "This Email Address is already in use.", conflictErr.Fields["email_address"])
	assert.Equal(t, "This Username is already in use.", conflictErr.Fields["username"])
}

func TestRegisterConflictIsCaseInsensitive(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.EmailAddress = "other@example.com"
	req.Username = "TAYLOR"
	_, err = h.svc.Register(context.Background(), req)
	require.Error(t, err)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Contains(t, conflictErr.Fields, "username")
	assert.NotContains(t, conflictErr.Fields, "email_address")
}

func TestRegisterLookupFailureFailsFlow(t *testing.T) {
	h := newServiceHarness(t)
	h.accounts.failLookups = true

	_, err := h.svc.Register(context.Background(), validRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdentityConflict)
	assert.Zero(t, h.accounts.createCalls)
}

func TestRegisterStorageClaimLossBecomesConflict(t *testing.T) {
	// Simulates the race where the pre-insert check passes but another
	// registration claims the identity before the insert lands.
	h := newServiceHarness(t)

	_, err := h.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)

	h.accounts.hideFromLookups = true

	_, err = h.svc.Register(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIdentityConflict)

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "This Email Address is already in use.", conflictErr.Fields["email_address"])
}

// --- verification ---

func registerAndGetCode(t *testing.T, h *serviceHarness) (*models.Account, string) {
	t.Helper()
	account, err := h.svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	requests, err := h.verifs.ListVerificationsByAccount(context.Background(), account.AccountID)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	// The code only travels in the email, so recover it from the store.
	var code string
	h.verifs.mu.Lock()
	for c, req := range h.verifs.byCode {
		if req.AccountID == account.AccountID {
			code = c
		}
	}
	h.verifs.mu.Unlock()
	require.NotEmpty(t, code)
	return account, code
}

func TestVerifyHappyPath(t *testing.T) {
	h := newServiceHarness(t)
	registered, code := registerAndGetCode(t, h)

	account, err := h.svc.Verify(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, registered.AccountID, account.AccountID)
	assert.True(t, account.IsVerified)
	require.NotNil(t, account.VerifiedAt)

	assert.Equal(t, []string{client.EventAccountCreated, client.EventAccountVerified}, h.events.types())
}

func TestVerifyIsSingleUse(t *testing.T) {
	h := newServiceHarness(t)
	_, code := registerAndGetCode(t, h)

	_, err := h.svc.Verify(context.Background(), code)
	require.NoError(t, err)

	_, err = h.svc.Verify(context.Background(), code)
	assert.ErrorIs(t, err, ErrCodeConsumed)
}

func TestVerifyUnknownCode(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Verify(context.Background(), "no-such-code")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestVerifyExpiredCode(t *testing.T) {
	h := newServiceHarness(t)
	_, code := registerAndGetCode(t, h)

	h.verifs.mu.Lock()
	req := h.verifs.byCode[code]
	req.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	h.verifs.mu.Unlock()

	_, err := h.svc.Verify(context.Background(), code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyEmptyCode(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// --- resend ---

func TestResendIssuesFreshCode(t *testing.T) {
	h := newServiceHarness(t)
	account, firstCode := registerAndGetCode(t, h)

	err := h.svc.ResendVerification(context.Background(), account.EmailAddress)
	require.NoError(t, err)

	requests, err := h.verifs.ListVerificationsByAccount(context.Background(), account.AccountID)
	require.NoError(t, err)
	assert.Len(t, requests, 2)
	assert.Equal(t, 2, h.sender.count())

	// The original code still redeems; history is additive.
	_, err = h.svc.Verify(context.Background(), firstCode)
	assert.NoError(t, err)
}

func TestResendUnknownAddressIsSilent(t *testing.T) {
	h := newServiceHarness(t)

	err := h.svc.ResendVerification(context.Background(), "stranger@example.com")
	assert.NoError(t, err)
	assert.Zero(t, h.sender.count())
}

func TestResendVerifiedAccountIsSilent(t *testing.T) {
	h := newServiceHarness(t)
	account, code := registerAndGetCode(t, h)

	_, err := h.svc.Verify(context.Background(), code)
	require.NoError(t, err)

	sentBefore := h.sender.count()
	err = h.svc.ResendVerification(context.Background(), account.EmailAddress)
	assert.NoError(t, err)
	assert.Equal(t, sentBefore, h.sender.count())
}

func TestResendThrottled(t *testing.T) {
	h := newServiceHarness(t)
	account, _ := registerAndGetCode(t, h)
	h.limiter.allowed = false

	err := h.svc.ResendVerification(context.Background(), account.EmailAddress)
	assert.ErrorIs(t, err, ErrResendThrottled)
}

func TestResendInvalidAddress(t *testing.T) {
	h := newServiceHarness(t)

	err := h.svc.ResendVerification(context.Background(), "not an email")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
